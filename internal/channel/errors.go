package channel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBinaryNotFound is returned when the adb executable cannot be located.
	ErrBinaryNotFound = errors.New("channel: adb binary not found")

	// ErrPermissionDenied is returned when the adb executable exists but cannot be executed.
	ErrPermissionDenied = errors.New("channel: permission denied executing adb")

	// ErrDeviceOffline is returned when the device is disconnected, offline or unauthorised.
	ErrDeviceOffline = errors.New("channel: device offline or unreachable")

	// ErrCommandFailed is returned when a command ran but exited non-zero.
	ErrCommandFailed = errors.New("channel: command failed")
)

// IsFatal reports whether err means the channel itself is unusable.
func IsFatal(err error) bool {
	return errors.Is(err, ErrBinaryNotFound) || errors.Is(err, ErrPermissionDenied)
}

// CommandError describes a failed adb invocation.
// It unwraps to one of the package sentinels.
type CommandError struct {
	Serial   string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Serial != "" {
		fmt.Fprintf(&b, " [%s]", e.Serial)
	}
	if len(e.Args) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Args, " "))
	}
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, ": exit %d", e.ExitCode)
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		fmt.Fprintf(&b, ": %s", msg)
	}
	return b.String()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// offlineMarkers are adb stderr fragments that mean the device is unusable
// rather than the command being wrong. Matched case-insensitively.
var offlineMarkers = []string{
	"device offline",
	"device unauthorized",
	"device still authorizing",
	"no devices/emulators found",
	"device not found",
	"error: closed",
	"protocol fault",
}

func isOfflineMessage(stderr string) bool {
	msg := strings.ToLower(stderr)
	for _, m := range offlineMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	// adb names the serial: "error: device 'emulator-5554' not found"
	return strings.Contains(msg, "error: device '") && strings.Contains(msg, "' not found")
}
