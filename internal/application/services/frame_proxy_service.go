package services

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/internal/domain/providers"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/attendance-relay/pkg/errors"
)

// FrameProxyService forwards browser frames to the recognition backend so the
// backend credential never leaves the server.
type FrameProxyService struct {
	recognizer providers.RecognitionProvider
}

// NewFrameProxyService creates a new frame proxy service
func NewFrameProxyService(recognizer providers.RecognitionProvider) *FrameProxyService {
	return &FrameProxyService{recognizer: recognizer}
}

// ForwardFrame applies parameter defaults and forwards the image.
func (s *FrameProxyService) ForwardFrame(ctx context.Context, image []byte, detProbThreshold, facePlugins string) (*entities.RecognitionResult, error) {
	if len(image) == 0 {
		return nil, apperrors.NewValidationError("file is required")
	}

	ctx, span := observability.StartSpan(ctx, "relay.ForwardFrame")
	defer span.End()

	frame := &entities.Frame{
		Image:            image,
		DetProbThreshold: orDefault(detProbThreshold, entities.DefaultDetProbThreshold),
		FacePlugins:      orDefault(facePlugins, entities.DefaultFacePlugins),
	}
	observability.SetSpanAttributes(span,
		attribute.Int("frame.bytes", len(image)),
		attribute.String("frame.det_prob_threshold", frame.DetProbThreshold),
		attribute.String("frame.face_plugins", frame.FacePlugins),
	)

	logger := observability.LoggerFromContext(ctx)
	logger.Debug().Int("bytes", len(image)).Msg("forwarding frame to compreface")

	result, err := s.recognizer.Recognize(ctx, frame)
	if err != nil {
		observability.RecordError(span, err)
		logger.Error().Err(err).Msg("recognition failed")
		return nil, err
	}
	return result, nil
}
