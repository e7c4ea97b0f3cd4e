package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/droidprobe/internal/channel"
	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/extraction"
)

// Error is the body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
)

// classifyError maps a session or channel error to a response. Errors that
// are not the caller's fault report internal true and fall back to message.
func classifyError(err error, message string) (e Error, internal bool) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return Error{http.StatusNotFound, ErrCodeNotFound, "device not found"}, false
	case errors.Is(err, extraction.ErrUnknownGroup):
		return Error{http.StatusBadRequest, ErrCodeBadRequest, err.Error()}, false
	case errors.Is(err, channel.ErrDeviceOffline):
		return Error{http.StatusConflict, ErrCodeConflict, "device offline or unauthorised"}, false
	case channel.IsFatal(err):
		return Error{http.StatusServiceUnavailable, ErrCodeUnavailable, "adb is not available"}, true
	default:
		return Error{http.StatusInternalServerError, ErrCodeInternal, message}, true
	}
}

// writeChannelError writes the response for err, logging it under message
// when it is not a client error.
func (s *Server) writeChannelError(w http.ResponseWriter, err error, message string) {
	e, internal := classifyError(err, message)
	if internal {
		s.logger.Error(message, "error", err)
	}
	writeJSON(w, e.Status, e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // the client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
