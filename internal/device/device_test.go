package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/droidprobe/internal/channel"
)

// stateChannel answers get-state with a fixed output or error.
type stateChannel struct {
	text string
	err  error
}

func (c stateChannel) Run(_ context.Context, _ string, args []string, _ channel.Options) (channel.Output, error) {
	if len(args) != 1 || args[0] != "get-state" {
		return channel.Output{}, errors.New("unexpected command")
	}
	if c.err != nil {
		return channel.Output{}, c.err
	}
	return channel.Output{Text: c.text}, nil
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"device\n", StatusDevice},
		{"offline", StatusOffline},
		{"bootloader", StatusBootloader},
		{"recovery", StatusRecovery},
		{"sideload", StatusSideload},
		{"unauthorized", StatusUnauthorized},
		{"authorizing", StatusUnauthorized},
		{"host", StatusUnknown},
		{"", StatusUnknown},
	}
	for _, tt := range tests {
		if got := ParseStatus(tt.in); got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDevice_RefreshStatus(t *testing.T) {
	tests := []struct {
		name    string
		ch      stateChannel
		want    Status
		wantErr error
	}{
		{
			name: "online",
			ch:   stateChannel{text: "device\n"},
			want: StatusDevice,
		},
		{
			name: "unauthorized",
			ch: stateChannel{err: &channel.CommandError{
				Stderr: "error: device unauthorized.", Err: channel.ErrDeviceOffline,
			}},
			want: StatusUnauthorized,
		},
		{
			name: "not found",
			ch: stateChannel{err: &channel.CommandError{
				Stderr: "error: device 'abc' not found", Err: channel.ErrDeviceOffline,
			}},
			want: StatusOffline,
		},
		{
			name:    "binary missing",
			ch:      stateChannel{err: channel.ErrBinaryNotFound},
			want:    StatusUnknown,
			wantErr: channel.ErrBinaryNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New("abc", DefaultSchema())
			got, err := d.RefreshStatus(context.Background(), tt.ch)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RefreshStatus() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RefreshStatus() = %q, want %q", got, tt.want)
			}
			if d.Status() != tt.want {
				t.Errorf("Status() = %q, want %q", d.Status(), tt.want)
			}
		})
	}
}

func TestDevice_StatusReadHasNoSideEffects(t *testing.T) {
	d := New("abc", DefaultSchema())
	if d.Status() != StatusUnknown {
		t.Errorf("initial Status() = %q, want unknown", d.Status())
	}
	if !d.SetStatus(StatusDevice) {
		t.Error("SetStatus() = false on change")
	}
	if d.SetStatus(StatusDevice) {
		t.Error("SetStatus() = true without change")
	}
}

func TestDevice_ExtractedGroups(t *testing.T) {
	d := New("abc", DefaultSchema())
	d.MarkExtracted("cpu", "display")
	d.Cache().Put("k", "v")

	if !d.Extracted("cpu") || d.Extracted("gpu") {
		t.Error("Extracted() mismatch after MarkExtracted")
	}
	if got := d.ExtractedGroups(); len(got) != 2 || got[0] != "cpu" || got[1] != "display" {
		t.Errorf("ExtractedGroups() = %v", got)
	}

	d.Invalidate("cpu")
	if d.Extracted("cpu") || !d.Extracted("display") {
		t.Error("Invalidate(cpu) should only clear cpu")
	}
	if d.Cache().Len() != 0 {
		t.Error("Invalidate should clear the cache")
	}

	d.Invalidate()
	if len(d.ExtractedGroups()) != 0 {
		t.Error("Invalidate() should clear all groups")
	}
}

func TestDevice_Acquire(t *testing.T) {
	d := New("abc", DefaultSchema())

	release, err := d.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second Acquire() error = %v, want DeadlineExceeded", err)
	}

	release()
	release2, err := d.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release2()
}
