package endpoints

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackzampolin/critic/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// StartedAt is the server start time, used for uptime reporting.
	StartedAt time.Time
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&StatusEndpoint{StartedAt: cfg.StartedAt},

		// Review flows
		&ReviewEndpoint{},
		&ReviewSarifEndpoint{},
		&ExplainEndpoint{},
		&AnalyzeEndpoint{},

		// Call history endpoints
		&ListCallsEndpoint{},
		&GetCallEndpoint{},

		// Introspection endpoints
		&ProvidersEndpoint{},
		&PromptsEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeEnvelope writes a pre-rendered wire envelope.
func writeEnvelope(w http.ResponseWriter, status int, envelope json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(envelope)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
