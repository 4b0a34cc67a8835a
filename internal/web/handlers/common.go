package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// StatusReporter reports recognizer initialisation without starting it.
type StatusReporter interface {
	Status() string
}

// HealthHandler serves the health endpoint.
type HealthHandler struct {
	recognizers StatusReporter
}

// NewHealthHandler creates a health handler. recognizers may be nil when the
// server runs as a bare proxy.
func NewHealthHandler(recognizers StatusReporter) *HealthHandler {
	return &HealthHandler{recognizers: recognizers}
}

// Get handles the health check endpoint.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if h.recognizers != nil {
		body["recognizer"] = h.recognizers.Status()
	} else {
		body["recognizer"] = "disabled"
	}
	respondJSON(w, http.StatusOK, body)
}
