package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultSourceID keys the debounce gate, detection log and session registry
	// when an event carries no camera id.
	DefaultSourceID = "default"

	// DefaultConfidence applies when an event omits its confidence.
	DefaultConfidence = 1.0

	// TimestampLayout renders detection times everywhere they leave the process.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// DetectionEvent is an inbound face-detection notification.
type DetectionEvent struct {
	Event          string                 `json:"event,omitempty"`
	Name           string                 `json:"name"`
	Confidence     *float64               `json:"confidence,omitempty"`
	CameraID       string                 `json:"camera_id,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// SourceID returns the camera id or DefaultSourceID.
func (e *DetectionEvent) SourceID() string {
	if e.CameraID == "" {
		return DefaultSourceID
	}
	return e.CameraID
}

// EffectiveConfidence returns the confidence or DefaultConfidence when absent.
func (e *DetectionEvent) EffectiveConfidence() float64 {
	if e.Confidence == nil {
		return DefaultConfidence
	}
	return *e.Confidence
}

// DebounceKey identifies a (source, subject) pair.
type DebounceKey struct {
	SourceID string
	Subject  string
}

// String renders the key for logs.
func (k DebounceKey) String() string {
	return k.SourceID + "-" + k.Subject
}

// DebounceKey derives the event's debounce key.
func (e *DetectionEvent) DebounceKey() DebounceKey {
	return DebounceKey{SourceID: e.SourceID(), Subject: e.Name}
}

// DetectionRecord is an accepted detection. Records are never mutated once logged.
type DetectionRecord struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Confidence float64                `json:"confidence"`
	CameraID   string                 `json:"camera_id"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewDetectionRecord stamps an accepted event with a server-assigned id and time.
func NewDetectionRecord(event *DetectionEvent, acceptedAt time.Time) *DetectionRecord {
	var metadata map[string]interface{}
	if len(event.Metadata) > 0 {
		metadata = make(map[string]interface{}, len(event.Metadata))
		for k, v := range event.Metadata {
			metadata[k] = v
		}
	}

	return &DetectionRecord{
		ID:         uuid.New().String(),
		Name:       event.Name,
		Confidence: event.EffectiveConfidence(),
		CameraID:   event.SourceID(),
		Timestamp:  acceptedAt.UTC().Truncate(time.Millisecond),
		Metadata:   metadata,
	}
}

// MarshalJSON writes Timestamp with millisecond precision.
func (r DetectionRecord) MarshalJSON() ([]byte, error) {
	type record DetectionRecord
	return json.Marshal(struct {
		record
		Timestamp string `json:"timestamp"`
	}{
		record:    record(r),
		Timestamp: r.Timestamp.UTC().Format(TimestampLayout),
	})
}

// SessionBinding maps a source to its current conversation.
type SessionBinding struct {
	CameraID       string `json:"camera_id"`
	ConversationID string `json:"conversation_id"`
}
