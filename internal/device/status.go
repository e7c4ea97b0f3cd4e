package device

import "strings"

// Status is the connection state adb reports for a device.
type Status string

// Status values as printed by "adb devices" and "adb get-state".
const (
	StatusDevice       Status = "device"
	StatusOffline      Status = "offline"
	StatusUnauthorized Status = "unauthorized"
	StatusRecovery     Status = "recovery"
	StatusSideload     Status = "sideload"
	StatusBootloader   Status = "bootloader"
	StatusUnknown      Status = "unknown"
)

// ParseStatus maps adb's state word to a Status.
func ParseStatus(s string) Status {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDevice, StatusOffline, StatusUnauthorized, StatusRecovery, StatusSideload, StatusBootloader:
		return st
	case "authorizing", "connecting":
		return StatusUnauthorized
	default:
		return StatusUnknown
	}
}

// Online reports whether shell commands can be issued.
func (s Status) Online() bool {
	return s == StatusDevice
}
