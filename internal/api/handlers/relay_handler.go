package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
)

const defaultDetectionLimit = 50

// RelayService defines the relay operations used by the handler.
type RelayService interface {
	HandleDetection(ctx context.Context, event *entities.DetectionEvent) (*entities.RelayResult, error)
	HandleManualQuery(ctx context.Context, query *entities.ManualQuery) (*entities.RelayResult, error)
	RecentDetections(limit int) ([]*entities.DetectionRecord, int)
	Conversations() []entities.SessionBinding
	ClearConversation(cameraID string) bool
}

// RelayHandler serves detection, chat and history endpoints.
type RelayHandler struct {
	service RelayService
}

// NewRelayHandler creates a new relay handler.
func NewRelayHandler(service RelayService) *RelayHandler {
	return &RelayHandler{service: service}
}

type difyResponse struct {
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
	MessageID      string `json:"message_id"`
}

// FaceEvent handles POST /face-event
func (h *RelayHandler) FaceEvent(w http.ResponseWriter, r *http.Request) {
	var event entities.DetectionEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.HandleDetection(r.Context(), &event)
	if err != nil {
		respondWithFailure(w, err)
		return
	}

	if result.Debounced {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"debounced": true,
			"message":   "Event debounced",
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"detection":     result.Detection,
		"dify_response": toDifyResponse(result.Reply),
	})
}

// Chat handles POST /chat
func (h *RelayHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var query entities.ManualQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.HandleManualQuery(r.Context(), &query)
	if err != nil {
		respondWithFailure(w, err)
		return
	}

	reply := toDifyResponse(result.Reply)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"conversation_id": reply.ConversationID,
		"answer":          reply.Answer,
		"message_id":      reply.MessageID,
	})
}

// ListDetections handles GET /detections?limit=N
func (h *RelayHandler) ListDetections(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultDetectionLimit
	}

	detections, total := h.service.RecentDetections(limit)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"total":      total,
		"detections": detections,
	})
}

// ListConversations handles GET /conversations
func (h *RelayHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations := h.service.Conversations()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":         len(conversations),
		"conversations": conversations,
	})
}

// ClearConversation handles DELETE /conversations/{camera_id}
func (h *RelayHandler) ClearConversation(w http.ResponseWriter, r *http.Request) {
	cameraID := r.PathValue("camera_id")
	if cameraID == "" {
		respondWithError(w, http.StatusBadRequest, "camera_id is required")
		return
	}

	h.service.ClearConversation(cameraID)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Conversation cleared for %s", cameraID),
	})
}

func toDifyResponse(reply *entities.ChatReply) difyResponse {
	if reply == nil {
		return difyResponse{}
	}
	return difyResponse{
		ConversationID: reply.ConversationID,
		Answer:         reply.Answer,
		MessageID:      reply.MessageID,
	}
}
