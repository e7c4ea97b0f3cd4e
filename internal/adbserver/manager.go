package adbserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/droidprobe/internal/infrastructure/config"
)

// Status represents the current state of the adb server process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

const (
	outputBufferSize       = 4096
	healthCheckTimeout     = 5 * time.Second
	maxConsecutiveFailures = 3
	killWaitTimeout        = 5 * time.Second
)

// Config holds settings for a supervised adb server.
type Config struct {
	// Binary is the adb executable.
	Binary string

	// Port is passed as -P when non-zero.
	Port int

	// RestartOnFailure enables automatic restart when the server exits unexpectedly.
	RestartOnFailure bool

	// RestartDelay is the base delay before the first restart. Later
	// attempts double it up to MaxRestartDelay.
	RestartDelay time.Duration

	// MaxRestartDelay caps the backoff.
	MaxRestartDelay time.Duration

	// StableThreshold is how long the server must stay up before the
	// restart counter resets.
	StableThreshold time.Duration

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// HealthCheckInterval is how often the server is probed.
	HealthCheckInterval time.Duration

	// HealthCheckFunc replaces the default "adb start-server" probe.
	HealthCheckFunc func(ctx context.Context) error

	// OnStart is called when the server starts successfully.
	OnStart func()

	// OnStop is called when the server stops, with the exit error if any.
	OnStop func(err error)

	// OnRestart is called before each restart attempt.
	OnRestart func(attempt int)
}

// FromConfig builds a Config from the adb section of the application config.
func FromConfig(cfg config.ADBConfig) Config {
	return Config{
		Binary:              cfg.Binary,
		Port:                cfg.ServerPort,
		RestartOnFailure:    cfg.Server.RestartOnFailure,
		RestartDelay:        time.Duration(cfg.Server.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts:  cfg.Server.MaxRestartAttempts,
		HealthCheckInterval: cfg.Server.HealthCheckInterval,
	}
}

// Logger defines the logging interface for the manager.
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

// Manager owns the lifecycle of one adb server process.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool

	done chan struct{}
}

// NewManager creates a manager. Zero durations take defaults.
func NewManager(cfg Config) *Manager {
	if cfg.Binary == "" {
		cfg.Binary = "adb"
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 2 * time.Second
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = 2 * time.Minute
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = 2 * time.Minute
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 5 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Args returns the argument list used to run the server in the foreground.
func (m *Manager) Args() []string {
	return append(m.portArgs(), "server", "nodaemon")
}

func (m *Manager) portArgs() []string {
	if m.config.Port == 0 {
		return nil
	}
	return []string{"-P", strconv.Itoa(m.config.Port)}
}

// HealthCheck runs "adb start-server" against the supervised port. With a
// server already listening this returns immediately.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.config.HealthCheckFunc != nil {
		return m.config.HealthCheckFunc(ctx)
	}
	args := append(m.portArgs(), "start-server")
	out, err := exec.CommandContext(ctx, m.config.Binary, args...).CombinedOutput() //nolint:gosec // binary comes from config
	if err != nil {
		return fmt.Errorf("%w: %w: %s", ErrUnhealthy, err, out)
	}
	return nil
}

// Start launches the server and begins monitoring it.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.restartCount = 0
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.startProcess(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		done := m.done
		m.done = nil
		m.mu.Unlock()
		close(done)
		return err
	}

	go m.monitor(ctx)
	return nil
}

func (m *Manager) startProcess(ctx context.Context) error {
	args := m.Args()
	m.logger.Info("starting adb server", "binary", m.config.Binary, "args", args)

	cmd := exec.CommandContext(ctx, m.config.Binary, args...) //nolint:gosec // binary comes from config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting adb server: %w", err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	go m.captureOutput("stdout", stdout)
	go m.captureOutput("stderr", stderr)

	m.logger.Info("adb server started", "pid", cmd.Process.Pid, "port", m.config.Port)

	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return nil
}

func (m *Manager) captureOutput(stream string, r io.Reader) {
	buf := make([]byte, outputBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			m.logger.Debug("adb server output", "stream", stream, "output", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// waitForExitOrHealthFailure blocks until the server exits, the context
// ends, or the health check fails maxConsecutiveFailures times in a row.
// In the last case the server is killed.
func (m *Manager) waitForExitOrHealthFailure(ctx context.Context, cmd *exec.Cmd) error {
	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case err := <-exitCh:
			return err

		case <-ctx.Done():
			return <-exitCh

		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			err := m.HealthCheck(checkCtx)
			cancel()

			if err == nil {
				if failures > 0 {
					m.logger.Info("adb server health recovered", "previous_failures", failures)
				}
				failures = 0
				continue
			}

			failures++
			m.logger.Warn("adb server health check failed", "error", err, "consecutive_failures", failures)
			if failures < maxConsecutiveFailures {
				continue
			}

			m.logger.Error("adb server unresponsive, killing", "failures", failures)
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
			select {
			case <-exitCh:
				return fmt.Errorf("%w: killed after %d failed health checks", ErrUnhealthy, failures)
			case <-time.After(killWaitTimeout):
				return fmt.Errorf("%w: process did not exit after kill", ErrUnhealthy)
			}
		}
	}
}

func (m *Manager) monitor(ctx context.Context) {
	m.mu.RLock()
	done := m.done
	m.mu.RUnlock()
	defer close(done)

	for {
		m.mu.RLock()
		cmd := m.cmd
		m.mu.RUnlock()
		if cmd == nil {
			return
		}

		err := m.waitForExitOrHealthFailure(ctx, cmd)

		m.mu.Lock()
		stopRequested := m.stopRequested
		uptime := time.Since(m.startTime)
		m.mu.Unlock()

		if stopRequested || ctx.Err() != nil {
			m.logger.Info("adb server stopped")
			m.mu.Lock()
			m.status = StatusStopped
			m.mu.Unlock()
			if m.config.OnStop != nil {
				m.config.OnStop(nil)
			}
			return
		}

		m.logger.Warn("adb server exited unexpectedly", "error", err, "uptime", uptime)

		m.mu.Lock()
		if err == nil {
			err = errors.New("adbserver: exited with status 0")
		}
		m.lastError = err
		m.status = StatusFailed
		if uptime >= m.config.StableThreshold {
			m.restartCount = 0
		}
		m.mu.Unlock()

		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}

		if !m.config.RestartOnFailure {
			m.logger.Info("restart disabled, not restarting adb server")
			return
		}

		m.mu.Lock()
		m.restartCount++
		attempt := m.restartCount
		m.mu.Unlock()

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("max adb server restart attempts reached", "attempts", attempt-1)
			return
		}

		delay := m.calculateBackoffDelay(attempt)
		m.logger.Info("restarting adb server", "attempt", attempt, "delay", delay)
		if m.config.OnRestart != nil {
			m.config.OnRestart(attempt)
		}

		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.status = StatusStopped
			m.mu.Unlock()
			return
		case <-time.After(delay):
		}

		m.mu.RLock()
		stopRequested = m.stopRequested
		m.mu.RUnlock()
		if stopRequested {
			m.mu.Lock()
			m.status = StatusStopped
			m.mu.Unlock()
			return
		}

		if err := m.startProcess(ctx); err != nil {
			m.logger.Error("failed to restart adb server", "error", err)
			m.mu.Lock()
			m.lastError = err
			m.cmd = nil
			m.mu.Unlock()
			return
		}
	}
}

// calculateBackoffDelay doubles RestartDelay per attempt, capped at MaxRestartDelay.
func (m *Manager) calculateBackoffDelay(attempt int) time.Duration {
	delay := m.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.MaxRestartDelay {
			return m.config.MaxRestartDelay
		}
	}
	return delay
}

// Stop terminates the server: SIGTERM to its process group, then SIGKILL
// after GracefulTimeout. It waits for the monitor to finish.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	running := m.status == StatusRunning || m.status == StatusStarting
	m.mu.Unlock()

	if done == nil {
		return nil
	}
	if !running || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping adb server", "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to send SIGTERM to adb server", "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL", "timeout", m.config.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing adb server: %w", err)
	}
	<-done
	return nil
}

// Status returns the current status of the server.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning reports whether the server process is up.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error that last ended the server.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns the number of restarts since the last stable run.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// PID returns the server process ID, or 0 if not running.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats is a point-in-time view of the supervised server.
type Stats struct {
	Status       Status        `json:"status"`
	Port         int           `json:"port,omitempty"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the server.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Status:       m.status,
		Port:         m.config.Port,
		RestartCount: m.restartCount,
	}
	if m.status == StatusRunning {
		if m.cmd != nil && m.cmd.Process != nil {
			stats.PID = m.cmd.Process.Pid
		}
		stats.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}
	return stats
}
