// Package adbserver supervises a foreground adb server process.
//
// adb normally forks its own server on first use. When droidprobe runs as a
// long-lived service it is more predictable to own that process: the
// Manager starts "adb -P <port> server nodaemon", probes it with
// "adb start-server", restarts it with exponential backoff when it dies or
// stops answering, and shuts it down with SIGTERM followed by SIGKILL.
//
// Example usage:
//
//	mgr := adbserver.NewManager(adbserver.FromConfig(cfg.ADB))
//	mgr.SetLogger(log)
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package adbserver
