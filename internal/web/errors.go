package web

// errors.go turns engine errors into JSON error responses.
//
// The technical error is logged with the request ID; the client receives
// the message, suggested action and support code from core.MapError.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/adminjobs/internal/core"
	"github.com/JonMunkholm/adminjobs/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
// Code is machine-readable; Message and Action are for people.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for an engine error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrMissingTenant):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnknownEntity),
		errors.Is(err, core.ErrJobNotFound),
		errors.Is(err, core.ErrArtifactNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrQueueFull), errors.Is(err, core.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrExportNotReady), errors.Is(err, core.ErrInvalidTransition):
		return http.StatusConflict
	case core.IsRejected(err),
		errors.Is(err, core.ErrInvalidFilters),
		errors.Is(err, core.ErrInvalidFormat),
		errors.Is(err, core.ErrInvalidStrategy),
		errors.Is(err, core.ErrEmptyUpload):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// writeJSON encodes v with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
