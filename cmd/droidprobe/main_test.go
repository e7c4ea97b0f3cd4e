package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/droidprobe/internal/api"
	"github.com/nerrad567/droidprobe/internal/channel"
	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/extraction"
	"github.com/nerrad567/droidprobe/internal/fieldspec"
	"github.com/nerrad567/droidprobe/internal/infrastructure/config"
	"github.com/nerrad567/droidprobe/internal/infrastructure/database"
	"github.com/nerrad567/droidprobe/internal/infrastructure/logging"
	"github.com/nerrad567/droidprobe/migrations"
)

// fakeADB answers the commands the tests need. Anything else succeeds with
// no output.
const fakeADB = `#!/bin/sh
if [ "$1" = "-P" ]; then shift 2; fi
serial=""
if [ "$1" = "-s" ]; then serial="$2"; shift 2; fi
case "$serial|$*" in
  "|devices -l")
    echo "List of devices attached"
    echo "emulator-5554          device product:sdk_gphone64 model:sdk_gphone64_x86_64 transport_id:1"
    echo "R58M12345              unauthorized usb:1-1 transport_id:2"
    ;;
  "emulator-5554|shell getprop")
    echo "[ro.product.model]: [sdk_gphone64]"
    echo "[ro.product.manufacturer]: [Google]"
    ;;
  "emulator-5554|shell cat /proc/meminfo")
    echo "MemTotal:        2015436 kB"
    ;;
esac
exit 0
`

type testEnv struct {
	dir    string
	config string
}

// newTestEnv writes a fake adb and a config file using it.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake adb is a shell script")
	}
	dir := t.TempDir()
	adb := filepath.Join(dir, "adb")
	if err := os.WriteFile(adb, []byte(fakeADB), 0o755); err != nil {
		t.Fatalf("failed to write fake adb: %v", err)
	}
	return testEnv{dir: dir, config: writeConfig(t, dir, adb)}
}

func writeConfig(t *testing.T, dir, adb string) string {
	t.Helper()
	content := fmt.Sprintf(`
adb:
  binary: %q
database:
  path: %q
logging:
  level: error
  format: text
`, adb, filepath.Join(dir, "droidprobe.db"))

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func execute(t *testing.T, env testEnv, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx, append(args, "--config", env.config), &stdout, &stderr)
	return stdout.String(), err
}

// ─── Exit codes ────────────────────────────────────────────────────

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"binary missing", fmt.Errorf("%w: adb", channel.ErrBinaryNotFound), exitFatal},
		{"permission denied", fmt.Errorf("%w: adb", channel.ErrPermissionDenied), exitFatal},
		{"device offline", &channel.CommandError{Err: channel.ErrDeviceOffline}, exitError},
		{"joined fatal", errors.Join(errors.New("x"), channel.ErrBinaryNotFound), exitFatal},
		{"other", errors.New("boom"), exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestFatalHint(t *testing.T) {
	if hint := fatalHint(channel.ErrBinaryNotFound); !strings.Contains(hint, "DROIDPROBE_ADB_BINARY") {
		t.Errorf("fatalHint(ErrBinaryNotFound) = %q", hint)
	}
	if hint := fatalHint(errors.New("boom")); hint != "" {
		t.Errorf("fatalHint(other) = %q, want empty", hint)
	}
}

// ─── Configuration ─────────────────────────────────────────────────

func TestRun_InvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"devices", "--config", "/nonexistent/path/config.yaml"}, &stdout, &stderr)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if exitCode(err) != exitError {
		t.Errorf("exitCode = %d, want %d", exitCode(err), exitError)
	}
}

func TestRun_ConfigFromEnv(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv(configEnv, env.config)

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"devices"}, &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "emulator-5554") {
		t.Errorf("output missing device:\n%s", stdout.String())
	}
}

func TestRun_BinaryNotFound(t *testing.T) {
	dir := t.TempDir()
	env := testEnv{dir: dir, config: writeConfig(t, dir, filepath.Join(dir, "missing-adb"))}

	_, err := execute(t, env, "devices")
	if !errors.Is(err, channel.ErrBinaryNotFound) {
		t.Fatalf("error = %v, want ErrBinaryNotFound", err)
	}
	if exitCode(err) != exitFatal {
		t.Errorf("exitCode = %d, want %d", exitCode(err), exitFatal)
	}
}

// ─── devices ───────────────────────────────────────────────────────

func TestDevices(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, env, "devices")
	if err != nil {
		t.Fatalf("devices error = %v", err)
	}
	for _, want := range []string{"SERIAL", "emulator-5554", "sdk_gphone64_x86_64", "R58M12345", "unauthorized"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDevices_JSON(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, env, "devices", "--json")
	if err != nil {
		t.Fatalf("devices error = %v", err)
	}
	var rows []deviceRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Serial != "R58M12345" || rows[0].Status != "unauthorized" {
		t.Errorf("rows[0] = %+v", rows[0])
	}
}

// ─── info ──────────────────────────────────────────────────────────

func TestInfo_JSON(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, env, "info", "--groups", "device,memory", "--json")
	if err != nil {
		t.Fatalf("info error = %v", err)
	}
	var records []infoRecord
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1 (only the online device)", len(records))
	}
	rec := records[0]
	if rec.Serial != "emulator-5554" {
		t.Errorf("serial = %q, want %q", rec.Serial, "emulator-5554")
	}
	if rec.Fields[device.KeyModel] != "sdk_gphone64" {
		t.Errorf("model = %v, want sdk_gphone64", rec.Fields[device.KeyModel])
	}
	if rec.Fields[device.KeyRAMTotal] != "1968 MB" {
		t.Errorf("ram_total = %v, want 1968 MB", rec.Fields[device.KeyRAMTotal])
	}
}

func TestInfo_Dump(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, env, "info", "emulator-5554")
	if err != nil {
		t.Fatalf("info error = %v", err)
	}
	for _, want := range []string{"=== emulator-5554 (device) ===", "Model: sdk_gphone64", "Manufacturer: Google"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestInfo_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown serial", []string{"info", "nope"}, device.ErrDeviceNotFound},
		{"unknown group", []string{"info", "--groups", "radio"}, extraction.ErrUnknownGroup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := execute(t, env, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if exitCode(err) != exitError {
				t.Errorf("exitCode = %d, want %d", exitCode(err), exitError)
			}
		})
	}
}

// ─── fields ────────────────────────────────────────────────────────

const extraFields = `
commands:
  - source: uname
    args: [shell, uname, -r]
    fields:
      - field: kernel_version
        rules:
          - identity: true
        transforms:
          - method: strip
`

func TestFields(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, env, "fields", "--json")
	if err != nil {
		t.Fatalf("fields error = %v", err)
	}
	var summary []fieldspec.CommandSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	reg, err := fieldspec.Default(device.DefaultSchema())
	if err != nil {
		t.Fatalf("fieldspec.Default() error = %v", err)
	}
	if len(summary) != len(reg.Commands()) {
		t.Errorf("commands = %d, want %d", len(summary), len(reg.Commands()))
	}

	path := filepath.Join(env.dir, "fields.yaml")
	if err := os.WriteFile(path, []byte(extraFields), 0o600); err != nil {
		t.Fatalf("write fields file: %v", err)
	}
	out, err = execute(t, env, "fields", "--fields", path)
	if err != nil {
		t.Fatalf("fields --fields error = %v", err)
	}
	if !strings.Contains(out, "uname") || !strings.Contains(out, "kernel_version") {
		t.Errorf("merged catalogue missing uname:\n%s", out)
	}
}

// ─── history ───────────────────────────────────────────────────────

func TestHistory(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, env, "history", "emulator-5554")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(out, "no snapshots") {
		t.Errorf("output = %q, want no snapshots", out)
	}

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(env.dir, "droidprobe.db"), BusyTimeout: 1})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	repo := device.NewSQLiteRepository(db.DB)
	for i := range 3 {
		snap := &device.Snapshot{
			Serial:    "emulator-5554",
			Status:    device.StatusDevice,
			Groups:    []string{"battery"},
			Fields:    map[string]any{device.KeyBatteryLevel: 90 - i},
			CreatedAt: time.Date(2026, 3, 1, 12, i, 0, 0, time.UTC),
		}
		if err := repo.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
	}
	db.Close()

	out, err = execute(t, env, "history", "emulator-5554", "--limit", "2", "--json")
	if err != nil {
		t.Fatalf("history --json error = %v", err)
	}
	var snaps []device.Snapshot
	if err := json.Unmarshal([]byte(out), &snaps); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
	if got := snaps[0].Fields[device.KeyBatteryLevel]; got != float64(88) {
		t.Errorf("newest battery level = %v, want 88", got)
	}
}

func TestHistory_NoDatabasePath(t *testing.T) {
	a := &app{cfg: config.Default()}
	a.cfg.Database.Path = ""
	if _, err := a.openDatabase(context.Background()); !errors.Is(err, errNoDatabase) {
		t.Errorf("openDatabase() error = %v, want errNoDatabase", err)
	}
}

// ─── serve helpers ─────────────────────────────────────────────────

func TestSinks_DisabledStayNil(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	hub := api.NewHub(config.WebSocketConfig{MaxMessageSize: 1024, PingInterval: 30, PongTimeout: 10}, log)

	s := sinks(nil, nil, nil, hub)
	if s.Store != nil || s.MQTT != nil || s.Points != nil {
		t.Errorf("sinks = %+v, want only the hub", s)
	}
	if s.Hub == nil {
		t.Error("hub sink missing")
	}
}

func TestWatch(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")

	t.Run("fatal error stops", func(t *testing.T) {
		err := watch(context.Background(), log, time.Second, func(context.Context) error {
			return fmt.Errorf("listing devices: %w", channel.ErrBinaryNotFound)
		})
		if !errors.Is(err, channel.ErrBinaryNotFound) {
			t.Errorf("watch() error = %v, want ErrBinaryNotFound", err)
		}
	})

	t.Run("transient errors continue until cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		calls := 0
		err := watch(ctx, log, time.Millisecond, func(context.Context) error {
			calls++
			if calls == 2 {
				cancel()
				return ctx.Err()
			}
			return errors.New("device refresh failed")
		})
		if err != nil {
			t.Errorf("watch() error = %v, want nil", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})
}
