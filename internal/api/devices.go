package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/droidprobe/internal/channel"
	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/extraction"
)

// DeviceSummary is a device as listed by the API.
type DeviceSummary struct {
	Serial        string            `json:"serial"`
	Status        device.Status     `json:"status"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Groups        []string          `json:"groups"`
	FieldCount    int               `json:"field_count"`
	LastExtracted *time.Time        `json:"last_extracted,omitempty"`
}

// DeviceDetail is a device with its full information record.
type DeviceDetail struct {
	DeviceSummary
	Fields map[string]any `json:"fields"`
}

// ExtractRequest is the body of an extract call. All fields are optional.
type ExtractRequest struct {
	Serials []string `json:"serials,omitempty"`
	Groups  []string `json:"groups,omitempty"`
	Force   bool     `json:"force,omitempty"`
}

func summarize(dev *device.Device) DeviceSummary {
	sum := DeviceSummary{
		Serial:     dev.Serial(),
		Status:     dev.Status(),
		Attributes: dev.Attributes(),
		Groups:     dev.ExtractedGroups(),
		FieldCount: dev.Info().Len(),
	}
	if t := dev.LastExtracted(); !t.IsZero() {
		t = t.UTC()
		sum.LastExtracted = &t
	}
	return sum
}

func summarizeAll(devices []*device.Device) []DeviceSummary {
	out := make([]DeviceSummary, 0, len(devices))
	for _, dev := range devices {
		out = append(out, summarize(dev))
	}
	return out
}

// handleListDevices returns the devices the session knows about.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := summarizeAll(s.session.Devices())
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleScan asks adb for the attached devices and returns the result.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	found, err := s.session.Scan(r.Context())
	if err != nil {
		s.writeChannelError(w, err, "failed to scan devices")
		return
	}
	devices := summarizeAll(found)
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a device's information record.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, DeviceDetail{
		DeviceSummary: summarize(dev),
		Fields:        dev.Info().Snapshot(),
	})
}

// handleDeviceDump returns the human-readable dump as text/plain.
func (s *Server) handleDeviceDump(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	io.WriteString(w, device.Dump(s.session.Schema(), dev.Info()))
}

// handleExtract runs one extraction pass on a device.
//
// Commands that fail are reported in the result's "failed" list and do not
// fail the request.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	req, ok := decodeExtractRequest(w, r)
	if !ok {
		return
	}

	res, err := s.session.Extract(r.Context(), serial, extraction.Options{Groups: req.Groups, Force: req.Force})
	if err != nil {
		s.writeChannelError(w, err, "extraction failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExtractAll extracts several devices in parallel. With no serials
// every online device is extracted.
func (s *Server) handleExtractAll(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeExtractRequest(w, r)
	if !ok {
		return
	}

	results, err := s.session.ExtractAll(r.Context(), req.Serials, extraction.Options{Groups: req.Groups, Force: req.Force}, s.parallel)
	if channel.IsFatal(err) {
		s.writeChannelError(w, err, "extraction failed")
		return
	}
	body := map[string]any{"results": results, "count": len(results)}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

// handleRefreshStatus re-queries a device's connection state.
func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	status, err := s.session.RefreshStatus(r.Context(), serial)
	if err != nil {
		s.writeChannelError(w, err, "failed to refresh status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"serial": serial, "status": status})
}

// handleListSnapshots returns stored snapshots for a serial, newest first.
//
// Query parameters:
//   - limit: maximum number of snapshots (default 20)
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "snapshot history is not enabled")
		return
	}
	serial := chi.URLParam(r, "serial")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	snaps, err := s.repo.ListSnapshots(r.Context(), serial, limit)
	if err != nil {
		s.logger.Error("listing snapshots failed", "serial", serial, "error", err)
		writeInternalError(w, "failed to list snapshots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"serial": serial, "snapshots": snaps, "count": len(snaps)})
}

// handleListFields returns the field catalogue: each command and the fields
// it feeds.
func (s *Server) handleListFields(w http.ResponseWriter, _ *http.Request) {
	commands := s.session.Registry().Summary()
	writeJSON(w, http.StatusOK, map[string]any{"commands": commands, "count": len(commands)})
}

func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	dev, err := s.session.Device(chi.URLParam(r, "serial"))
	if err != nil {
		writeNotFound(w, "device not found")
		return nil, false
	}
	return dev, true
}

// decodeExtractRequest reads an optional JSON body. An empty body is a
// request for every group.
func decodeExtractRequest(w http.ResponseWriter, r *http.Request) (ExtractRequest, bool) {
	var req ExtractRequest
	if r.Body == nil {
		return req, true
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return req, false
	}
	return req, true
}
