// Package server exposes the HTTP API handlers.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	status StatusSource
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(status StatusSource) *Handlers {
	return &Handlers{status: status}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err), slog.String("component", "http"))
	}
}
