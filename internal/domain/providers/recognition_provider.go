package providers

import (
	"context"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
)

// RecognitionProvider forwards frames to the face recognition backend.
type RecognitionProvider interface {
	// Recognize returns the backend's response verbatim. Non-success statuses
	// come back as an EXTERNAL *errors.AppError with the status and body intact.
	Recognize(ctx context.Context, frame *entities.Frame) (*entities.RecognitionResult, error)
}
