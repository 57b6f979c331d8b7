// Package httputil keeps JSON responses and error bodies consistent across
// handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nadmax/nexcoach/internal/apperr"
)

func WriteJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to encode response", "error", err)
	}
}

func WriteJSONError(w http.ResponseWriter, message string, status int) {
	WriteJSON(w, map[string]string{"error": message}, status)
}

// StatusFor maps an error kind to its HTTP status. Unclassified errors are
// internal errors.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the full error chain as detail. Client errors
// replace message with their cause.
func WriteError(w http.ResponseWriter, message string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		slog.Default().Error(message, "error", err)
	}

	detail := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Err != nil && status != http.StatusInternalServerError {
		message = ae.Err.Error()
	}

	WriteJSON(w, map[string]string{"error": message, "detail": detail}, status)
}
