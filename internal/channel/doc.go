// Package channel is the command channel droidprobe talks to devices through.
//
// A Channel runs one argument vector against one device (identified by its
// serial) and returns the textual output. The ADB implementation shells out
// to the adb executable and sorts failures into four classes:
//
//   - ErrBinaryNotFound and ErrPermissionDenied are fatal: nothing can run.
//   - ErrDeviceOffline means the device went away or revoked authorisation;
//     the caller should abort its current workflow.
//   - ErrCommandFailed is local to the one command that failed.
//
// Context cancellation is returned unchanged (wrapped) so callers can tell an
// interrupt apart from a device failure. The channel enforces no timeouts of
// its own.
package channel
