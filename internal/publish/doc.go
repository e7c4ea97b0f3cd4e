// Package publish forwards device changes to droidprobe's outputs.
//
// A Publisher listens to session events and extraction passes and fans
// them out to whichever sinks are configured: retained MQTT topics,
// InfluxDB points, SQLite snapshots and WebSocket clients. Every sink is
// optional and a failing sink never affects the others or the pass that
// triggered it.
//
// The Publisher also answers remote extract commands received over MQTT by
// running a pass through the session.
package publish
