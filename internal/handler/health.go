package handler

import (
	"net/http"

	natsclient "github.com/capitalize-ai/chat-orchestrator/internal/nats"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient *natsclient.Client
	backend    string
}

// NewHealthHandler creates a new health handler. natsClient may be nil when
// transcripts are kept in memory.
func NewHealthHandler(natsClient *natsclient.Client, backend string) *HealthHandler {
	return &HealthHandler{
		natsClient: natsClient,
		backend:    backend,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.natsClient != nil && !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ready",
		"backend": h.backend,
	})
}
