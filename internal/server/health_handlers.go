package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"
)

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Library   string                 `json:"library"`
	Tracks    int                    `json:"trackCount"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// handleHealthCheck returns basic liveness plus library accessibility.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Library:   "ok",
		Tracks:    s.lib.Index().Size(),
		Details:   make(map[string]interface{}),
	}

	if _, err := os.Stat(s.cfg.Library.Path); err != nil {
		health.Status = "unhealthy"
		health.Library = "error"
		health.Details["library_error"] = err.Error()
	}

	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(health)
}
