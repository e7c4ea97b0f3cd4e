// droidprobe - Android device facts over adb
//
// droidprobe runs a fixed catalogue of adb commands against attached
// devices, parses the output through declarative field specs and assembles
// a categorised information record per device. It can print records once
// (devices, info) or serve them over HTTP, MQTT and InfluxDB (serve).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/droidprobe/internal/channel"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitFatal = 2 // adb is missing or cannot be executed
)

func main() {
	// Cancel on Ctrl+C and SIGTERM so serve shuts down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := fatalHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
	}
	os.Exit(exitCode(err))
}

// run executes the command line in args, separated from main for
// testability.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// exitCode maps an error from run to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case channel.IsFatal(err):
		return exitFatal
	default:
		return exitError
	}
}

// fatalHint explains how to fix a fatal channel error.
func fatalHint(err error) string {
	switch {
	case errors.Is(err, channel.ErrBinaryNotFound):
		return "adb was not found. Install the Android platform tools or set adb.binary (DROIDPROBE_ADB_BINARY)."
	case errors.Is(err, channel.ErrPermissionDenied):
		return "adb could not be executed. Check the permissions of the adb binary."
	default:
		return ""
	}
}
