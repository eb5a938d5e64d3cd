package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/internal/domain/providers"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/observability"
)

const heartbeatInterval = 30 * time.Second

// SSEHandler streams accepted detections to dashboards
type SSEHandler struct {
	eventBus  providers.EventBus
	clients   map[string]map[chan *entities.DetectionRecord]bool // channel -> clients
	mu        sync.RWMutex
	heartbeat time.Duration
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(eventBus providers.EventBus) *SSEHandler {
	return &SSEHandler{
		eventBus:  eventBus,
		clients:   make(map[string]map[chan *entities.DetectionRecord]bool),
		heartbeat: heartbeatInterval,
	}
}

// StreamDetections handles GET /detections/stream?camera_id=X
//
// Without camera_id every accepted detection is streamed.
func (h *SSEHandler) StreamDetections(w http.ResponseWriter, r *http.Request) {
	cameraID := r.URL.Query().Get("camera_id")
	channel := providers.EventChannelDetections
	if cameraID != "" {
		channel = providers.GetCameraChannel(cameraID)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx)

	eventChan, err := h.eventBus.Subscribe(ctx, channel)
	if err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("failed to subscribe")
		respondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := make(chan *entities.DetectionRecord, 10)
	h.registerClient(channel, clientChan)
	defer h.unregisterClient(channel, clientChan)

	h.sendEvent(w, "connected", map[string]interface{}{
		"camera_id": cameraID,
		"timestamp": time.Now(),
	})
	flusher.Flush()

	go h.forwardEvents(ctx, eventChan, clientChan)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Str("channel", channel).Msg("client disconnected from detection stream")
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case record := <-clientChan:
			if record == nil {
				continue
			}
			h.sendEvent(w, "detection", record)
			flusher.Flush()
		}
	}
}

// forwardEvents copies bus events to the client channel, dropping when the client lags.
func (h *SSEHandler) forwardEvents(ctx context.Context, eventChan <-chan *entities.DetectionRecord, clientChan chan<- *entities.DetectionRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-eventChan:
			if !ok {
				return
			}
			select {
			case clientChan <- record:
			default:
			}
		}
	}
}

func (h *SSEHandler) registerClient(channel string, clientChan chan *entities.DetectionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[channel] == nil {
		h.clients[channel] = make(map[chan *entities.DetectionRecord]bool)
	}
	h.clients[channel][clientChan] = true
	observability.GetLogger().Debug().
		Str("channel", channel).
		Int("total", len(h.clients[channel])).
		Msg("stream client registered")
}

func (h *SSEHandler) unregisterClient(channel string, clientChan chan *entities.DetectionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, exists := h.clients[channel]; exists {
		delete(clients, clientChan)
		if len(clients) == 0 {
			delete(h.clients, channel)
		}
	}
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		observability.GetLogger().Warn().Err(err).Msg("failed to marshal event data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}

// GetClientCount returns the number of connected clients
func (h *SSEHandler) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
