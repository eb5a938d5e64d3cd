package providers

import (
	"context"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to detection events
type EventBus interface {
	// Publish publishes a detection to all subscribers
	Publish(ctx context.Context, channel string, record *entities.DetectionRecord) error

	// Subscribe subscribes to detections on a channel until ctx is done
	Subscribe(ctx context.Context, channel string) (<-chan *entities.DetectionRecord, error)

	// Unsubscribe drops every subscriber on a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannel constants for different event types
const (
	// EventChannelDetections carries every accepted detection
	EventChannelDetections = "detections:accepted"

	// EventChannelCameraPrefix is the prefix for per-camera channels
	EventChannelCameraPrefix = "detections:camera:"
)

// GetCameraChannel returns the channel name for a specific camera
func GetCameraChannel(cameraID string) string {
	return EventChannelCameraPrefix + cameraID
}
