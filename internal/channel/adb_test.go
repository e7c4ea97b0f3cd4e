package channel

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"
)

const fakeADB = `#!/bin/sh
case "$*" in
  *"-s gone-1"*)
    echo "error: device 'gone-1' not found" >&2; exit 1;;
  *"-s offline-1"*)
    echo "error: device offline" >&2; exit 1;;
  *"cat /nonexistent"*)
    echo "cat: /nonexistent: No such file or directory" >&2; exit 1;;
  *"wait-for-device"*)
    exec sleep 10;;
  *)
    printf 'args:%s\r\nsecond\r\n' "$*";;
esac
`

// writeFakeADB installs a shell script standing in for adb.
func writeFakeADB(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake adb is a shell script")
	}
	path := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(path, []byte(fakeADB), 0o755); err != nil {
		t.Fatalf("writing fake adb: %v", err)
	}
	return path
}

func TestADB_Argv(t *testing.T) {
	tests := []struct {
		name   string
		port   int
		serial string
		args   []string
		want   []string
	}{
		{
			name: "server command",
			args: []string{"devices", "-l"},
			want: []string{"devices", "-l"},
		},
		{
			name:   "device command",
			serial: "emulator-5554",
			args:   []string{"shell", "getprop"},
			want:   []string{"-s", "emulator-5554", "shell", "getprop"},
		},
		{
			name:   "custom server port",
			port:   5038,
			serial: "R58M",
			args:   []string{"get-state"},
			want:   []string{"-P", "5038", "-s", "R58M", "get-state"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewADB(Config{ServerPort: tt.port})
			if got := a.argv(tt.serial, tt.args); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("argv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestADB_Run(t *testing.T) {
	a := NewADB(Config{Binary: writeFakeADB(t)})

	out, err := a.Run(context.Background(), "emulator-5554", []string{"shell", "getprop"}, Options{SplitLines: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantText := "args:-s emulator-5554 shell getprop\nsecond\n"
	if out.Text != wantText {
		t.Errorf("Text = %q, want %q", out.Text, wantText)
	}
	wantLines := []string{"args:-s emulator-5554 shell getprop", "second"}
	if !reflect.DeepEqual(out.Lines, wantLines) {
		t.Errorf("Lines = %q, want %q", out.Lines, wantLines)
	}
}

func TestADB_RunStream(t *testing.T) {
	var console bytes.Buffer
	a := NewADB(Config{Binary: writeFakeADB(t), Stdout: &console})

	out, err := a.Run(context.Background(), "", []string{"version"}, Options{Stream: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Text != "" {
		t.Errorf("Text = %q, want empty when streaming", out.Text)
	}
	if console.Len() == 0 {
		t.Error("expected streamed output on console writer")
	}
}

func TestADB_RunErrors(t *testing.T) {
	a := NewADB(Config{Binary: writeFakeADB(t)})

	tests := []struct {
		name    string
		serial  string
		args    []string
		wantErr error
	}{
		{name: "device offline", serial: "offline-1", args: []string{"shell", "getprop"}, wantErr: ErrDeviceOffline},
		{name: "device not found", serial: "gone-1", args: []string{"shell", "getprop"}, wantErr: ErrDeviceOffline},
		{name: "command failed", serial: "emulator-5554", args: []string{"shell", "cat /nonexistent"}, wantErr: ErrCommandFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Run(context.Background(), tt.serial, tt.args, Options{})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if IsFatal(err) {
				t.Errorf("IsFatal(%v) = true, want false", err)
			}

			var cmdErr *CommandError
			if !errors.As(err, &cmdErr) {
				t.Fatalf("error %T is not a *CommandError", err)
			}
			if cmdErr.ExitCode != 1 {
				t.Errorf("ExitCode = %d, want 1", cmdErr.ExitCode)
			}
		})
	}
}

func TestADB_BinaryNotFound(t *testing.T) {
	tests := []string{
		filepath.Join(t.TempDir(), "missing-adb"),
		"droidprobe-no-such-adb",
	}

	for _, binary := range tests {
		a := NewADB(Config{Binary: binary})
		_, err := a.Run(context.Background(), "", []string{"devices"}, Options{})
		if !errors.Is(err, ErrBinaryNotFound) {
			t.Errorf("Run(%s) error = %v, want ErrBinaryNotFound", binary, err)
		}
		if !IsFatal(err) {
			t.Errorf("IsFatal(%v) = false, want true", err)
		}
		if err := a.CheckBinary(); !errors.Is(err, ErrBinaryNotFound) {
			t.Errorf("CheckBinary(%s) error = %v, want ErrBinaryNotFound", binary, err)
		}
	}
}

func TestADB_PermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	path := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(path, []byte(fakeADB), 0o644); err != nil {
		t.Fatalf("writing fake adb: %v", err)
	}

	a := NewADB(Config{Binary: path})
	_, err := a.Run(context.Background(), "", []string{"devices"}, Options{})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Run() error = %v, want ErrPermissionDenied", err)
	}
	if !IsFatal(err) {
		t.Errorf("IsFatal(%v) = false, want true", err)
	}
}

func TestADB_WaitCancelled(t *testing.T) {
	a := NewADB(Config{Binary: writeFakeADB(t)})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := a.Wait(ctx, "emulator-5554")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
	if errors.Is(err, ErrDeviceOffline) || errors.Is(err, ErrCommandFailed) {
		t.Errorf("cancellation misclassified as device failure: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Wait() took %v after cancellation", elapsed)
	}
}
