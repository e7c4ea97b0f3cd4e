package publish

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/extraction"
	"github.com/nerrad567/droidprobe/internal/infrastructure/influxdb"
	"github.com/nerrad567/droidprobe/internal/infrastructure/mqtt"
	"github.com/nerrad567/droidprobe/internal/session"
)

// WebSocket channels the Publisher broadcasts on.
const (
	ChannelDevices     = "devices"
	ChannelInfo        = "device.info"
	ChannelExtractions = "extractions"
)

const (
	storeTimeout       = 5 * time.Second
	remoteExtractLimit = 2 * time.Minute

	// DefaultSnapshotKeep is how many snapshots per device survive pruning.
	DefaultSnapshotKeep = 50
)

// MQTTPublisher is the subset of the MQTT client the Publisher uses.
type MQTTPublisher interface {
	PublishDeviceInfo(msg mqtt.InfoMessage) error
	PublishDeviceStatus(msg mqtt.StatusMessage) error
	ClearDevice(serial string) error
}

// PointWriter is the subset of the InfluxDB client the Publisher uses.
type PointWriter interface {
	WritePass(p influxdb.Pass)
	WriteFacts(serial string, facts map[string]float64, ts time.Time)
}

// SnapshotStore persists device records and snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *device.Snapshot) error
	UpsertDevice(ctx context.Context, rec *device.Record) error
	PruneSnapshots(ctx context.Context, serial string, keep int) (int64, error)
}

// WSHub broadcasts events to WebSocket clients.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// Session is what the Publisher needs from the device session.
type Session interface {
	Device(serial string) (*device.Device, error)
	Extract(ctx context.Context, serial string, opts extraction.Options) (extraction.Result, error)
}

// Sinks lists the outputs. Nil sinks are skipped.
type Sinks struct {
	MQTT   MQTTPublisher
	Points PointWriter
	Store  SnapshotStore
	Hub    WSHub

	// SnapshotKeep bounds stored snapshots per device. 0 means
	// DefaultSnapshotKeep, negative disables pruning.
	SnapshotKeep int
}

// Logger defines the logging interface used by the Publisher.
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

// Publisher fans device changes out to the configured sinks.
//
// Thread Safety: HandleEvent and ObservePass may be called concurrently.
type Publisher struct {
	session Session
	sinks   Sinks
	logger  Logger
}

// New creates a Publisher.
func New(sess Session, sinks Sinks) *Publisher {
	if sinks.SnapshotKeep == 0 {
		sinks.SnapshotKeep = DefaultSnapshotKeep
	}
	return &Publisher{session: sess, sinks: sinks, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// HandleEvent forwards one session event. It is meant to be registered
// with session.OnEvent.
func (p *Publisher) HandleEvent(ev session.Event) {
	switch ev.Type {
	case session.EventDeviceAdded, session.EventStatusChanged:
		p.publishStatus(ev)
	case session.EventInfoUpdated:
		p.publishInfo(ev)
	case session.EventDeviceRemoved:
		if p.sinks.MQTT != nil {
			if err := p.sinks.MQTT.ClearDevice(ev.Serial); err != nil {
				p.logger.Warn("clearing device topics failed", "serial", ev.Serial, "error", err)
			}
		}
	}

	if p.sinks.Hub != nil {
		channel := ChannelDevices
		if ev.Type == session.EventInfoUpdated {
			channel = ChannelInfo
		}
		p.sinks.Hub.Broadcast(channel, ev)
	}
}

func (p *Publisher) publishStatus(ev session.Event) {
	if p.sinks.MQTT != nil {
		msg := mqtt.StatusMessage{Serial: ev.Serial, Status: string(ev.Status), Timestamp: ev.Time}
		if err := p.sinks.MQTT.PublishDeviceStatus(msg); err != nil {
			p.logger.Warn("publishing device status failed", "serial", ev.Serial, "error", err)
		}
	}

	dev, err := p.session.Device(ev.Serial)
	if err != nil {
		return
	}
	p.upsert(dev)
}

func (p *Publisher) publishInfo(ev session.Event) {
	dev, err := p.session.Device(ev.Serial)
	if err != nil {
		p.logger.Debug("info update for unknown device", "serial", ev.Serial)
		return
	}
	fields := dev.Info().Snapshot()
	groups := dev.ExtractedGroups()
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if p.sinks.MQTT != nil {
		msg := mqtt.InfoMessage{
			Serial:    ev.Serial,
			Status:    string(dev.Status()),
			Groups:    groups,
			Fields:    fields,
			Timestamp: ts,
		}
		if err := p.sinks.MQTT.PublishDeviceInfo(msg); err != nil {
			p.logger.Warn("publishing device info failed", "serial", ev.Serial, "error", err)
		}
	}

	if p.sinks.Points != nil {
		if facts := Facts(fields); len(facts) > 0 {
			p.sinks.Points.WriteFacts(ev.Serial, facts, ts)
		}
	}

	if p.sinks.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		snap := &device.Snapshot{
			Serial:    ev.Serial,
			Status:    dev.Status(),
			Groups:    groups,
			Fields:    fields,
			CreatedAt: ts,
		}
		if err := p.sinks.Store.SaveSnapshot(ctx, snap); err != nil {
			p.logger.Error("saving snapshot failed", "serial", ev.Serial, "error", err)
		} else if p.sinks.SnapshotKeep > 0 {
			if n, err := p.sinks.Store.PruneSnapshots(ctx, ev.Serial, p.sinks.SnapshotKeep); err != nil {
				p.logger.Warn("pruning snapshots failed", "serial", ev.Serial, "error", err)
			} else if n > 0 {
				p.logger.Debug("pruned snapshots", "serial", ev.Serial, "deleted", n)
			}
		}
	}
	p.upsert(dev)
}

// upsert refreshes the stored device record from the live device.
func (p *Publisher) upsert(dev *device.Device) {
	if p.sinks.Store == nil {
		return
	}
	rec := &device.Record{
		Serial:     dev.Serial(),
		Status:     dev.Status(),
		Attributes: dev.Attributes(),
	}
	info := dev.Info()
	if v, ok := info.Get(device.KeyModel); ok {
		rec.Model = device.FormatValue(v)
	} else if m := rec.Attributes["model"]; m != "" {
		rec.Model = m
	}
	if v, ok := info.Get(device.KeyManufacturer); ok {
		rec.Manufacturer = device.FormatValue(v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := p.sinks.Store.UpsertDevice(ctx, rec); err != nil {
		p.logger.Error("saving device record failed", "serial", rec.Serial, "error", err)
	}
}

// ObservePass records one extraction pass. It is meant to be registered
// with extraction.Orchestrator.SetObserver.
func (p *Publisher) ObservePass(res extraction.Result, err error) {
	if p.sinks.Points != nil {
		p.sinks.Points.WritePass(influxdb.Pass{
			Serial:    res.Serial,
			OK:        err == nil,
			Commands:  res.Commands,
			CacheHits: res.CacheHits,
			Changed:   len(res.Changed),
			Failed:    len(res.Failed),
			Duration:  res.Duration,
			Time:      time.Now().UTC(),
		})
	}
	if p.sinks.Hub != nil {
		payload := map[string]any{"result": res}
		if err != nil {
			payload["error"] = err.Error()
		}
		p.sinks.Hub.Broadcast(ChannelExtractions, payload)
	}
}

// HandleExtractRequest runs a pass for a remote extract command. It is
// meant to be passed to mqtt.Client.SubscribeExtract.
func (p *Publisher) HandleExtractRequest(serial string, req mqtt.ExtractRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), remoteExtractLimit)
	defer cancel()

	p.logger.Info("remote extract request", "serial", serial, "groups", req.Groups, "force", req.Force)
	_, err := p.session.Extract(ctx, serial, extraction.Options{Groups: req.Groups, Force: req.Force})
	if errors.Is(err, device.ErrDeviceNotFound) {
		p.logger.Warn("remote extract for unknown device", "serial", serial)
	}
	return err
}
