package adbserver

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the server is up.
	ErrAlreadyRunning = errors.New("adbserver: already running")

	// ErrUnhealthy is returned by the default health check when
	// "adb start-server" fails.
	ErrUnhealthy = errors.New("adbserver: server not responding")
)
