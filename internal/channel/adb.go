package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// Config holds the settings for the adb channel.
type Config struct {
	// Binary is the adb executable name or path. Defaults to "adb".
	Binary string

	// ServerPort is passed as -P when non-zero.
	ServerPort int

	// Stdout receives streamed output. Defaults to os.Stdout.
	Stdout io.Writer
}

// ADB is a Channel backed by the adb executable.
//
// Thread Safety:
//   - Run may be called concurrently; each call is its own process.
type ADB struct {
	binary string
	port   int
	stdout io.Writer
	logger Logger
}

// NewADB creates an adb channel.
func NewADB(cfg Config) *ADB {
	if cfg.Binary == "" {
		cfg.Binary = "adb"
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	return &ADB{
		binary: cfg.Binary,
		port:   cfg.ServerPort,
		stdout: cfg.Stdout,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the channel.
func (a *ADB) SetLogger(logger Logger) {
	if logger != nil {
		a.logger = logger
	}
}

// Binary returns the configured adb executable.
func (a *ADB) Binary() string {
	return a.binary
}

// CheckBinary verifies the adb executable can be found and run.
// It returns ErrBinaryNotFound or ErrPermissionDenied otherwise.
func (a *ADB) CheckBinary() error {
	path, err := exec.LookPath(a.binary)
	if err != nil {
		return a.classifyStart(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return a.classifyStart(err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	}
	return nil
}

// Run executes "adb [-P port] [-s serial] args..." and returns its output.
func (a *ADB) Run(ctx context.Context, serial string, args []string, opts Options) (Output, error) {
	argv := a.argv(serial, args)
	cmd := exec.CommandContext(ctx, a.binary, argv...)

	var stdout, stderr bytes.Buffer
	if opts.Stream {
		cmd.Stdout = a.stdout
	} else {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	a.logger.Debug("adb command",
		"serial", serial,
		"args", args,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)

	if err != nil {
		return Output{}, a.classify(ctx, serial, args, err, stderr.String())
	}

	// adb prints some device errors on stderr but exits 0 (older releases).
	if stdout.Len() == 0 && isOfflineMessage(stderr.String()) {
		return Output{}, &CommandError{Serial: serial, Args: args, Stderr: stderr.String(), Err: ErrDeviceOffline}
	}

	return NewOutput(stdout.String(), opts), nil
}

// Wait blocks until the device is attached and online ("wait-for-device").
// It returns the context error if ctx is cancelled first.
func (a *ADB) Wait(ctx context.Context, serial string) error {
	_, err := a.Run(ctx, serial, []string{"wait-for-device"}, Options{})
	return err
}

func (a *ADB) argv(serial string, args []string) []string {
	argv := make([]string, 0, len(args)+4)
	if a.port != 0 {
		argv = append(argv, "-P", strconv.Itoa(a.port))
	}
	if serial != "" {
		argv = append(argv, "-s", serial)
	}
	return append(argv, args...)
}

func (a *ADB) classify(ctx context.Context, serial string, args []string, err error, stderr string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("channel: adb %v interrupted: %w", args, ctxErr)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return a.classifyStart(err)
	}

	cmdErr := &CommandError{
		Serial:   serial,
		Args:     args,
		ExitCode: exitErr.ExitCode(),
		Stderr:   stderr,
		Err:      ErrCommandFailed,
	}
	if isOfflineMessage(stderr) {
		cmdErr.Err = ErrDeviceOffline
	}
	return cmdErr
}

func (a *ADB) classifyStart(err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, a.binary, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, a.binary, err)
	default:
		return fmt.Errorf("channel: starting %s: %w", a.binary, err)
	}
}
