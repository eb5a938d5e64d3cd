package handlers

import (
	"net/http"
	"time"
)

// StreamClientCounter reports how many live-stream clients are connected.
type StreamClientCounter interface {
	GetClientCount() int
}

// HealthHandler reports liveness.
type HealthHandler struct {
	service string
	streams StreamClientCounter
	now     func() time.Time
}

// NewHealthHandler creates a health handler reporting the given service label.
func NewHealthHandler(service string) *HealthHandler {
	return &HealthHandler{service: service, now: time.Now}
}

// SetStreamClients adds the live-stream client count to health responses.
func (h *HealthHandler) SetStreamClients(streams StreamClientCounter) {
	h.streams = streams
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":    "healthy",
		"service":   h.service,
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	}
	if h.streams != nil {
		body["stream_clients"] = h.streams.GetClientCount()
	}
	respondWithJSON(w, http.StatusOK, body)
}
