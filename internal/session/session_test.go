package session

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/droidprobe/internal/channel"
	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/extraction"
	"github.com/nerrad567/droidprobe/internal/fieldspec"
)

const devicesOutput = `List of devices attached
emulator-5554          device product:sdk_gphone64 model:sdk_gphone64_x86_64 device:emu64x transport_id:1
R58M12345              unauthorized usb:1-1 transport_id:2

`

// fakeChannel serves "adb devices -l" from listing and answers per-serial
// commands from outputs, keyed by "serial|args".
type fakeChannel struct {
	mu      sync.Mutex
	listing string
	outputs map[string]string
	errs    map[string]error
	calls   map[string]int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		listing: devicesOutput,
		outputs: make(map[string]string),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeChannel) Run(ctx context.Context, serial string, args []string, opts channel.Options) (channel.Output, error) {
	key := serial + "|" + strings.Join(args, " ")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[serial]++
	if serial == "" {
		return channel.NewOutput(f.listing, opts), nil
	}
	if err, ok := f.errs[key]; ok {
		return channel.Output{}, err
	}
	if err, ok := f.errs[serial]; ok {
		return channel.Output{}, err
	}
	return channel.NewOutput(f.outputs[key], opts), nil
}

func (f *fakeChannel) setListing(s string) {
	f.mu.Lock()
	f.listing = s
	f.mu.Unlock()
}

func newSession(t *testing.T, ch channel.Channel) *Session {
	t.Helper()
	schema := device.DefaultSchema()
	reg, err := fieldspec.Default(schema)
	if err != nil {
		t.Fatalf("fieldspec.Default() error = %v", err)
	}
	return New(ch, reg, schema, nil)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func TestParseDevices(t *testing.T) {
	lines := channel.SplitLines(devicesOutput +
		"* daemon not running; starting now at tcp:5037\n" +
		"0123456789ABCDEF       no permissions (user in plugdev group; are your udev rules wrong?); see [http://developer.android.com/tools/device.html] usb:1-2\n" +
		"192.168.1.20:5555      offline transport_id:3\n")

	got := ParseDevices(lines)

	want := []Listed{
		{Serial: "emulator-5554", Status: device.StatusDevice, Attributes: map[string]string{
			"product": "sdk_gphone64", "model": "sdk_gphone64_x86_64", "device": "emu64x", "transport_id": "1",
		}},
		{Serial: "R58M12345", Status: device.StatusUnauthorized, Attributes: map[string]string{
			"usb": "1-1", "transport_id": "2",
		}},
		{Serial: "0123456789ABCDEF", Status: device.StatusUnauthorized, Attributes: map[string]string{}},
		{Serial: "192.168.1.20:5555", Status: device.StatusOffline, Attributes: map[string]string{"transport_id": "3"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseDevices() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestScan(t *testing.T) {
	ch := newFakeChannel()
	s := newSession(t, ch)
	rec := &recorder{}
	s.OnEvent(rec.record)

	devs, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(devs) != 2 || devs[0].Serial() != "R58M12345" || devs[1].Serial() != "emulator-5554" {
		t.Fatalf("Scan() devices = %v", devs)
	}
	if devs[1].Status() != device.StatusDevice || devs[0].Status() != device.StatusUnauthorized {
		t.Errorf("statuses = %s, %s", devs[0].Status(), devs[1].Status())
	}
	if devs[1].Attributes()["model"] != "sdk_gphone64_x86_64" {
		t.Errorf("attributes = %v", devs[1].Attributes())
	}

	// The unauthorised device is accepted and the emulator is unplugged.
	ch.setListing("List of devices attached\nR58M12345 device usb:1-1\n")
	devs, err = s.Scan(context.Background())
	if err != nil {
		t.Fatalf("second Scan() error = %v", err)
	}
	if len(devs) != 1 || devs[0].Status() != device.StatusDevice {
		t.Errorf("second Scan() devices = %v", devs)
	}
	if _, err := s.Device("emulator-5554"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("Device(removed) error = %v, want ErrDeviceNotFound", err)
	}

	want := []EventType{EventDeviceAdded, EventDeviceAdded, EventStatusChanged, EventDeviceRemoved}
	if got := rec.types(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestExtract(t *testing.T) {
	ch := newFakeChannel()
	ch.outputs["emulator-5554|shell getprop"] = "[ro.product.model]: [sdk_gphone64]\n"
	s := newSession(t, ch)
	rec := &recorder{}
	s.OnEvent(rec.record)

	if _, err := s.Extract(context.Background(), "emulator-5554", extraction.Options{}); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("Extract(unknown) error = %v, want ErrDeviceNotFound", err)
	}

	s.Add("emulator-5554")
	res, err := s.Extract(context.Background(), "emulator-5554", extraction.Options{Groups: []string{"device"}})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !reflect.DeepEqual(res.Changed, []string{device.KeyModel}) {
		t.Errorf("Changed = %v, want [model]", res.Changed)
	}

	want := []EventType{EventDeviceAdded, EventInfoUpdated}
	if got := rec.types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if ev := rec.events[1]; ev.Serial != "emulator-5554" || ev.Result == nil {
		t.Errorf("info_updated event = %+v", ev)
	}
}

func TestExtract_OfflineMarksDevice(t *testing.T) {
	ch := newFakeChannel()
	ch.errs["emulator-5554"] = &channel.CommandError{
		Serial: "emulator-5554", ExitCode: 1, Stderr: "error: device offline", Err: channel.ErrDeviceOffline,
	}
	s := newSession(t, ch)
	dev := s.Add("emulator-5554")
	dev.SetStatus(device.StatusDevice)
	rec := &recorder{}
	s.OnEvent(rec.record)

	_, err := s.Extract(context.Background(), "emulator-5554", extraction.Options{})
	if !errors.Is(err, channel.ErrDeviceOffline) {
		t.Fatalf("Extract() error = %v, want ErrDeviceOffline", err)
	}
	if dev.Status() != device.StatusOffline {
		t.Errorf("Status() = %s, want offline", dev.Status())
	}
	if got := rec.types(); !reflect.DeepEqual(got, []EventType{EventStatusChanged}) {
		t.Errorf("events = %v, want [status_changed]", got)
	}
}

func TestExtractAll(t *testing.T) {
	ch := newFakeChannel()
	ch.setListing("List of devices attached\nA device\nB device\nC device\nD unauthorized\n")
	ch.outputs["A|shell getprop"] = "[ro.product.model]: [Alpha]\n"
	ch.outputs["B|shell getprop"] = "[ro.product.model]: [Bravo]\n"
	ch.errs["C"] = &channel.CommandError{Serial: "C", ExitCode: 1, Stderr: "error: device 'C' not found", Err: channel.ErrDeviceOffline}
	s := newSession(t, ch)

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	results, err := s.ExtractAll(context.Background(), nil, extraction.Options{}, 2)
	if !errors.Is(err, channel.ErrDeviceOffline) {
		t.Errorf("ExtractAll() error = %v, want ErrDeviceOffline for C", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (A and B)", len(results))
	}

	for serial, want := range map[string]string{"A": "Alpha", "B": "Bravo"} {
		dev, _ := s.Device(serial)
		if got, _ := dev.Info().Get(device.KeyModel); got != want {
			t.Errorf("%s model = %#v, want %q", serial, got, want)
		}
	}
	if ch.calls["D"] != 0 {
		t.Errorf("unauthorized device D was extracted (%d calls)", ch.calls["D"])
	}
}

func TestExtractAll_FatalStops(t *testing.T) {
	ch := newFakeChannel()
	ch.errs["A"] = channel.ErrBinaryNotFound
	s := newSession(t, ch)
	s.Add("A")

	_, err := s.ExtractAll(context.Background(), []string{"A"}, extraction.Options{}, 1)
	if !errors.Is(err, channel.ErrBinaryNotFound) {
		t.Errorf("ExtractAll() error = %v, want ErrBinaryNotFound", err)
	}
}

func TestForgetAndRefreshStatus(t *testing.T) {
	ch := newFakeChannel()
	ch.outputs["A|get-state"] = "device\n"
	s := newSession(t, ch)
	s.Add("A")
	rec := &recorder{}
	s.OnEvent(rec.record)

	status, err := s.RefreshStatus(context.Background(), "A")
	if err != nil || status != device.StatusDevice {
		t.Fatalf("RefreshStatus() = %s, %v; want device", status, err)
	}
	if _, err := s.RefreshStatus(context.Background(), "A"); err != nil {
		t.Fatalf("second RefreshStatus() error = %v", err)
	}

	if !s.Forget("A") {
		t.Error("Forget(A) = false, want true")
	}
	if s.Forget("A") {
		t.Error("second Forget(A) = true, want false")
	}
	if len(s.Devices()) != 0 {
		t.Errorf("Devices() = %v, want none", s.Devices())
	}

	want := []EventType{EventStatusChanged, EventDeviceRemoved}
	if got := rec.types(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}
