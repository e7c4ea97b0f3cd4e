// Package api implements the HTTP REST API and WebSocket server for droidprobe.
//
// This package provides:
//   - REST endpoints to list attached devices, trigger scans and extraction
//     passes, and read information records, text dumps and stored snapshots
//   - WebSocket hub for real-time device events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Runtime metrics as JSON and Prometheus exposition
//
// # Architecture
//
// The server is a thin layer over a session.Session. Handlers translate
// HTTP requests into session calls and map domain errors onto status codes:
// an unknown serial is 404, an unknown group is 400, an offline device is
// 409 and a missing or unusable adb binary is 503.
//
// # WebSocket
//
// Clients subscribe to the devices, device.info and extractions channels
// (or "*"). A devices subscription is first sent the current device list.
// Clients may also send {"type":"extract","payload":{"serial":...}} and get
// the pass result as the response.
//
// # Graceful Degradation
//
// Snapshot history needs the SQLite repository and answers 503 without it.
// Everything else works with only the session.
package api
