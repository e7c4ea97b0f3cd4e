package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/droidprobe/internal/channel"
	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/extraction"
	"github.com/nerrad567/droidprobe/internal/fieldspec"
)

// EventType identifies a session event.
type EventType string

// Session events.
const (
	EventDeviceAdded   EventType = "device_added"
	EventInfoUpdated   EventType = "info_updated"
	EventStatusChanged EventType = "status_changed"
	EventDeviceRemoved EventType = "device_removed"
)

// Event describes a change to one device.
type Event struct {
	Type    EventType          `json:"type"`
	Serial  string             `json:"serial"`
	Status  device.Status      `json:"status,omitempty"`
	Changed []string           `json:"changed,omitempty"`
	Result  *extraction.Result `json:"result,omitempty"`
	Time    time.Time          `json:"time"`
}

// Logger defines the logging interface used by the session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DefaultParallelism is the device limit ExtractAll uses when none is given.
const DefaultParallelism = 4

// Session tracks the devices attached to one adb server.
//
// Thread Safety: all methods are safe for concurrent use.
type Session struct {
	channel  channel.Channel
	registry *fieldspec.Registry
	schema   *device.Schema
	orch     *extraction.Orchestrator

	mu        sync.RWMutex
	devices   map[string]*device.Device
	listeners []func(Event)
	logger    Logger
}

// New creates a session. A nil orchestrator is built from ch and registry.
func New(ch channel.Channel, registry *fieldspec.Registry, schema *device.Schema, orch *extraction.Orchestrator) *Session {
	if orch == nil {
		orch = extraction.New(ch, registry)
	}
	return &Session{
		channel:  ch,
		registry: registry,
		schema:   schema,
		orch:     orch,
		devices:  make(map[string]*device.Device),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger.
func (s *Session) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Registry returns the session's field-spec registry.
func (s *Session) Registry() *fieldspec.Registry {
	return s.registry
}

// Schema returns the session's device schema.
func (s *Session) Schema() *device.Schema {
	return s.schema
}

// OnEvent registers fn to be called for every event. Listeners run on the
// goroutine that caused the event and must not block.
func (s *Session) OnEvent(fn func(Event)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Session) emit(ev Event) {
	ev.Time = time.Now().UTC()
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (s *Session) log() Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

// Scan lists the devices the adb server knows about, adds new ones, updates
// the status of known ones and forgets those no longer listed. It returns
// the current devices ordered by serial.
func (s *Session) Scan(ctx context.Context) ([]*device.Device, error) {
	out, err := s.channel.Run(ctx, "", []string{"devices", "-l"}, channel.Options{SplitLines: true})
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	listed := ParseDevices(out.Lines)

	var events []Event
	seen := make(map[string]bool, len(listed))

	s.mu.Lock()
	for _, l := range listed {
		seen[l.Serial] = true
		dev, ok := s.devices[l.Serial]
		if !ok {
			dev = device.New(l.Serial, s.schema)
			s.devices[l.Serial] = dev
			events = append(events, Event{Type: EventDeviceAdded, Serial: l.Serial, Status: l.Status})
		}
		dev.SetAttributes(l.Attributes)
		if dev.SetStatus(l.Status) && ok {
			events = append(events, Event{Type: EventStatusChanged, Serial: l.Serial, Status: l.Status})
		}
	}
	for serial := range s.devices {
		if !seen[serial] {
			delete(s.devices, serial)
			events = append(events, Event{Type: EventDeviceRemoved, Serial: serial})
		}
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.emit(ev)
	}
	s.log().Debug("device scan complete", "devices", len(listed), "events", len(events))
	return s.Devices(), nil
}

// Add registers serial without scanning. It returns the existing device if
// the serial is already known.
func (s *Session) Add(serial string) *device.Device {
	s.mu.Lock()
	dev, ok := s.devices[serial]
	if !ok {
		dev = device.New(serial, s.schema)
		s.devices[serial] = dev
	}
	s.mu.Unlock()

	if !ok {
		s.emit(Event{Type: EventDeviceAdded, Serial: serial, Status: dev.Status()})
	}
	return dev
}

// Device returns the device with the given serial or device.ErrDeviceNotFound.
func (s *Session) Device(serial string) (*device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dev, ok := s.devices[serial]
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, serial)
	}
	return dev, nil
}

// Devices returns all known devices ordered by serial.
func (s *Session) Devices() []*device.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*device.Device, 0, len(s.devices))
	for _, serial := range slices.Sorted(maps.Keys(s.devices)) {
		out = append(out, s.devices[serial])
	}
	return out
}

// Forget drops a device and everything extracted for it.
func (s *Session) Forget(serial string) bool {
	s.mu.Lock()
	_, ok := s.devices[serial]
	delete(s.devices, serial)
	s.mu.Unlock()

	if ok {
		s.emit(Event{Type: EventDeviceRemoved, Serial: serial})
	}
	return ok
}

// RefreshStatus queries a device's state and emits status_changed when it
// differs from the last known one.
func (s *Session) RefreshStatus(ctx context.Context, serial string) (device.Status, error) {
	dev, err := s.Device(serial)
	if err != nil {
		return device.StatusUnknown, err
	}
	before := dev.Status()
	status, err := dev.RefreshStatus(ctx, s.channel)
	if err != nil {
		return status, err
	}
	if status != before {
		s.emit(Event{Type: EventStatusChanged, Serial: serial, Status: status})
	}
	return status, nil
}

// Extract runs one extraction pass on a known device.
//
// A device that went offline during the pass is marked offline and a
// status_changed event is emitted before the error is returned.
func (s *Session) Extract(ctx context.Context, serial string, opts extraction.Options) (extraction.Result, error) {
	dev, err := s.Device(serial)
	if err != nil {
		return extraction.Result{Serial: serial}, err
	}

	res, err := s.orch.Extract(ctx, dev, opts)
	if len(res.Changed) > 0 {
		r := res
		s.emit(Event{Type: EventInfoUpdated, Serial: serial, Changed: res.Changed, Result: &r})
	}
	if errors.Is(err, channel.ErrDeviceOffline) && dev.SetStatus(device.StatusOffline) {
		s.emit(Event{Type: EventStatusChanged, Serial: serial, Status: device.StatusOffline})
	}
	return res, err
}

// ExtractAll extracts several devices in parallel, at most limit at a time
// (DefaultParallelism when limit <= 0). With no serials every online device
// is extracted.
//
// Each device's failure is independent: the results of devices that
// succeeded are returned together with the joined errors of those that did
// not. A fatal channel error cancels the remaining passes.
func (s *Session) ExtractAll(ctx context.Context, serials []string, opts extraction.Options, limit int) (map[string]extraction.Result, error) {
	if len(serials) == 0 {
		for _, dev := range s.Devices() {
			if dev.Status().Online() {
				serials = append(serials, dev.Serial())
			}
		}
	}
	if limit <= 0 {
		limit = DefaultParallelism
	}

	var (
		mu      sync.Mutex
		results = make(map[string]extraction.Result, len(serials))
		errs    []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, serial := range serials {
		g.Go(func() error {
			res, err := s.Extract(gctx, serial, opts)
			if channel.IsFatal(err) {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", serial, err))
				return nil
			}
			results[serial] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, errors.Join(errs...)
}

// Listed is one line of "adb devices -l".
type Listed struct {
	Serial     string
	Status     device.Status
	Attributes map[string]string
}

// ParseDevices parses the output of "adb devices -l":
//
//	List of devices attached
//	emulator-5554          device product:sdk_gphone64 model:sdk_gphone64 transport_id:1
//	R58M12345              unauthorized usb:1-1 transport_id:2
func ParseDevices(lines []string) []Listed {
	var out []Listed
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		l := Listed{Serial: fields[0], Status: device.ParseStatus(fields[1]), Attributes: make(map[string]string)}
		rest := fields[2:]
		if fields[1] == "no" && len(fields) > 2 && fields[2] == "permissions" {
			// "no permissions (user in plugdev group; ...)"
			l.Status = device.StatusUnauthorized
			rest = nil
		}
		for _, f := range rest {
			if k, v, ok := strings.Cut(f, ":"); ok {
				l.Attributes[k] = v
			}
		}
		out = append(out, l)
	}
	return out
}
