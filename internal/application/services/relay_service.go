package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/internal/domain/providers"
	"github.com/zatekoja/attendance-relay/internal/domain/repositories"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/attendance-relay/pkg/errors"
)

const (
	// outboundDefaultCamera names the location in the AI query when the event has no camera.
	outboundDefaultCamera = "entrance"
	detectionDefaultUser  = "camera-01"
	manualDefaultUser     = "manual"
)

// RelayService decides whether a detection is forwarded and which
// conversation it belongs to, then relays it to the AI backend.
type RelayService struct {
	gate       repositories.DebounceGate
	detections repositories.DetectionRepository
	sessions   repositories.SessionRepository
	chat       providers.ChatProvider
	eventBus   providers.EventBus
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewRelayService creates a new relay service
func NewRelayService(
	gate repositories.DebounceGate,
	detections repositories.DetectionRepository,
	sessions repositories.SessionRepository,
	chat providers.ChatProvider,
) *RelayService {
	return &RelayService{
		gate:       gate,
		detections: detections,
		sessions:   sessions,
		chat:       chat,
		now:        time.Now,
	}
}

// SetEventBus sets the bus accepted detections are published on
func (s *RelayService) SetEventBus(eventBus providers.EventBus) {
	s.eventBus = eventBus
}

// SetMetrics sets the metrics sink
func (s *RelayService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// SetClock overrides the time source.
func (s *RelayService) SetClock(now func() time.Time) {
	s.now = now
}

// HandleDetection relays a face detection.
//
// A debounced event returns a result with Debounced set and touches nothing
// else. Once accepted, the detection stays in the log even if the AI call
// fails; in that case the result carries the record and the error is the
// upstream failure.
func (s *RelayService) HandleDetection(ctx context.Context, event *entities.DetectionEvent) (*entities.RelayResult, error) {
	if event == nil || event.Name == "" {
		return nil, apperrors.NewValidationError("name is required")
	}

	ctx, span := observability.StartSpan(ctx, "relay.HandleDetection")
	defer span.End()

	logger := observability.LoggerFromContext(ctx)
	sourceID := event.SourceID()
	observability.SetSpanAttributes(span,
		attribute.String("relay.camera_id", sourceID),
		attribute.String("relay.subject", event.Name),
	)

	now := s.now()
	key := event.DebounceKey()
	if accepted, since := s.gate.Admit(key, now); !accepted {
		observability.RecordDetection(ctx, s.metrics, sourceID, true)
		observability.SetSpanAttributes(span, attribute.Bool("relay.debounced", true))
		logger.Debug().
			Str("key", key.String()).
			Int64("since_ms", since.Milliseconds()).
			Msg("detection debounced")
		return &entities.RelayResult{Debounced: true}, nil
	}

	record := entities.NewDetectionRecord(event, now)
	s.detections.Append(record)
	observability.RecordDetection(ctx, s.metrics, sourceID, false)
	logger.Info().
		Str("detection_id", record.ID).
		Str("name", record.Name).
		Str("camera_id", record.CameraID).
		Float64("confidence", record.Confidence).
		Str("event", event.Event).
		Msg("detection accepted")

	s.publish(ctx, record)

	req := &entities.ChatRequest{
		Inputs:         detectionInputs(event, record),
		Query:          detectionQuery(event),
		ResponseMode:   entities.ResponseModeBlocking,
		User:           orDefault(event.CameraID, detectionDefaultUser),
		ConversationID: s.resolveConversation(event.ConversationID, sourceID),
	}

	reply, err := s.send(ctx, sourceID, req)
	if err != nil {
		observability.RecordError(span, err)
		return &entities.RelayResult{Detection: record}, err
	}

	return &entities.RelayResult{Detection: record, Reply: reply}, nil
}

// HandleManualQuery sends operator text to the AI backend. Manual queries are
// never debounced or logged as detections.
func (s *RelayService) HandleManualQuery(ctx context.Context, query *entities.ManualQuery) (*entities.RelayResult, error) {
	if query == nil || query.Query == "" {
		return nil, apperrors.NewValidationError("query is required")
	}

	ctx, span := observability.StartSpan(ctx, "relay.HandleManualQuery")
	defer span.End()

	sourceID := orDefault(query.CameraID, entities.DefaultSourceID)
	req := &entities.ChatRequest{
		Inputs:         map[string]interface{}{},
		Query:          query.Query,
		ResponseMode:   entities.ResponseModeBlocking,
		User:           orDefault(query.CameraID, manualDefaultUser),
		ConversationID: s.resolveConversation(query.ConversationID, sourceID),
	}

	reply, err := s.send(ctx, sourceID, req)
	if err != nil {
		observability.RecordError(span, err)
		return &entities.RelayResult{}, err
	}
	return &entities.RelayResult{Reply: reply}, nil
}

// RecentDetections returns up to limit of the latest detections and the log size.
func (s *RelayService) RecentDetections(limit int) ([]*entities.DetectionRecord, int) {
	return s.detections.Recent(limit)
}

// Conversations lists the current camera to conversation bindings.
func (s *RelayService) Conversations() []entities.SessionBinding {
	return s.sessions.List()
}

// ClearConversation forgets the conversation bound to cameraID so the next
// detection starts a new one.
func (s *RelayService) ClearConversation(cameraID string) bool {
	return s.sessions.Delete(cameraID)
}

func (s *RelayService) resolveConversation(explicit, sourceID string) string {
	if explicit != "" {
		return explicit
	}
	if id, ok := s.sessions.Get(sourceID); ok {
		return id
	}
	return ""
}

// send calls the AI backend without holding any store lock and records the
// returned conversation afterwards.
func (s *RelayService) send(ctx context.Context, sourceID string, req *entities.ChatRequest) (*entities.ChatReply, error) {
	logger := observability.LoggerFromContext(ctx)
	logger.Info().
		Str("camera_id", sourceID).
		Str("conversation_id", req.ConversationID).
		Str("query_preview", observability.Preview(req.Query, 60)).
		Msg("sending to dify")

	reply, err := s.chat.SendMessage(ctx, req)
	if err != nil {
		event := logger.Error().Err(err).Str("camera_id", sourceID)
		if appErr, ok := apperrors.As(err); ok && appErr.Body != nil {
			event = event.Bytes("upstream_body", appErr.Body)
		}
		event.Msg("dify request failed")
		return nil, err
	}

	if reply.ConversationID != "" {
		s.sessions.Set(sourceID, reply.ConversationID)
	}

	logger.Info().
		Str("camera_id", sourceID).
		Str("conversation_id", reply.ConversationID).
		Str("answer_preview", observability.Preview(reply.Answer, 60)).
		Msg("dify answered")
	return reply, nil
}

func (s *RelayService) publish(ctx context.Context, record *entities.DetectionRecord) {
	if s.eventBus == nil {
		return
	}
	for _, channel := range []string{providers.EventChannelDetections, providers.GetCameraChannel(record.CameraID)} {
		if err := s.eventBus.Publish(ctx, channel, record); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).
				Str("channel", channel).
				Msg("failed to publish detection")
		}
	}
}

func detectionQuery(event *entities.DetectionEvent) string {
	return fmt.Sprintf(
		"Student %s has been detected at %s with %.1f%% confidence. Please provide their information and status.",
		event.Name,
		orDefault(event.CameraID, outboundDefaultCamera),
		event.EffectiveConfidence()*100,
	)
}

// detectionInputs builds the structured payload. Caller metadata is merged
// last and wins on key collisions.
func detectionInputs(event *entities.DetectionEvent, record *entities.DetectionRecord) map[string]interface{} {
	inputs := map[string]interface{}{
		"person_name": event.Name,
		"confidence":  event.EffectiveConfidence(),
		"camera_id":   orDefault(event.CameraID, outboundDefaultCamera),
		"timestamp":   record.Timestamp.Format(entities.TimestampLayout),
	}
	for k, v := range event.Metadata {
		inputs[k] = v
	}
	return inputs
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
