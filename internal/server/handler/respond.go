// Package handler provides the HTTP handlers for the review service.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/revuhq/revu/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps a use-case error onto the wire, preferring the
// ServiceError message over the raw error chain so internals stay internal.
func writeServiceError(w http.ResponseWriter, err error) {
	message := err.Error()
	var svcErr *core.ServiceError
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	}
	writeError(w, core.StatusCode(err), message)
}
