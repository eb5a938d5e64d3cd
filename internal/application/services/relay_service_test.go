package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/attendance-relay/internal/adapters/events"
	"github.com/zatekoja/attendance-relay/internal/adapters/memory"
	"github.com/zatekoja/attendance-relay/internal/application/services"
	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/internal/domain/providers"
	apperrors "github.com/zatekoja/attendance-relay/pkg/errors"
)

// Mocks

type MockChatProvider struct {
	mock.Mock
}

func (m *MockChatProvider) SendMessage(ctx context.Context, req *entities.ChatRequest) (*entities.ChatReply, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ChatReply), args.Error(1)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type relayFixture struct {
	service  *services.RelayService
	chat     *MockChatProvider
	log      *memory.DetectionLog
	sessions *memory.SessionRegistry
	clock    *fakeClock
}

func newRelayFixture() *relayFixture {
	f := &relayFixture{
		chat:     new(MockChatProvider),
		log:      memory.NewDetectionLog(0),
		sessions: memory.NewSessionRegistry(),
		clock:    &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
	}
	f.service = services.NewRelayService(memory.NewDebounceGate(3*time.Second), f.log, f.sessions, f.chat)
	f.service.SetClock(f.clock.Now)
	return f
}

func confidence(v float64) *float64 { return &v }

// Tests

func TestRelayService_HandleDetection(t *testing.T) {
	t.Run("relays accepted detection and stores conversation", func(t *testing.T) {
		f := newRelayFixture()

		f.chat.On("SendMessage", mock.Anything, mock.MatchedBy(func(req *entities.ChatRequest) bool {
			return req.ConversationID == "" &&
				req.User == "cam1" &&
				req.ResponseMode == "blocking" &&
				req.Query == "Student Abaan has been detected at cam1 with 97.0% confidence. Please provide their information and status." &&
				req.Inputs["person_name"] == "Abaan" &&
				req.Inputs["camera_id"] == "cam1" &&
				req.Inputs["confidence"] == 0.97 &&
				req.Inputs["timestamp"] == "2026-03-02T08:00:00.000Z"
		})).Return(&entities.ChatReply{ConversationID: "conv-1", Answer: "Welcome", MessageID: "msg-1"}, nil).Once()

		result, err := f.service.HandleDetection(context.Background(), &entities.DetectionEvent{
			Event:      "face_detected",
			Name:       "Abaan",
			Confidence: confidence(0.97),
			CameraID:   "cam1",
		})

		require.NoError(t, err)
		assert.False(t, result.Debounced)
		require.NotNil(t, result.Detection)
		assert.Equal(t, "Abaan", result.Detection.Name)
		assert.Equal(t, "cam1", result.Detection.CameraID)
		assert.NotEmpty(t, result.Detection.ID)
		assert.Equal(t, "conv-1", result.Reply.ConversationID)
		assert.Equal(t, 1, f.log.Len())

		conv, ok := f.sessions.Get("cam1")
		assert.True(t, ok)
		assert.Equal(t, "conv-1", conv)
		f.chat.AssertExpectations(t)
	})

	t.Run("rejects missing name", func(t *testing.T) {
		f := newRelayFixture()

		result, err := f.service.HandleDetection(context.Background(), &entities.DetectionEvent{CameraID: "cam1"})

		assert.Nil(t, result)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		assert.Equal(t, 0, f.log.Len())
		f.chat.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
	})

	t.Run("accepts any non-empty name", func(t *testing.T) {
		f := newRelayFixture()
		f.chat.On("SendMessage", mock.Anything, mock.Anything).
			Return(&entities.ChatReply{ConversationID: "conv-1"}, nil).Once()

		result, err := f.service.HandleDetection(context.Background(), &entities.DetectionEvent{Name: "   ", CameraID: "cam1"})

		require.NoError(t, err)
		assert.Equal(t, "   ", result.Detection.Name)
		assert.Equal(t, 1, f.log.Len())
	})

	t.Run("record and outbound inputs share one timestamp rendering", func(t *testing.T) {
		f := newRelayFixture()
		f.clock.now = time.Date(2026, 3, 2, 8, 0, 0, 123456789, time.UTC)

		var sent *entities.ChatRequest
		f.chat.On("SendMessage", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { sent = args.Get(1).(*entities.ChatRequest) }).
			Return(&entities.ChatReply{ConversationID: "conv-1"}, nil).Once()

		result, err := f.service.HandleDetection(context.Background(), &entities.DetectionEvent{Name: "Abaan", CameraID: "cam1"})
		require.NoError(t, err)

		raw, err := json.Marshal(result.Detection)
		require.NoError(t, err)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &body))

		assert.Equal(t, "2026-03-02T08:00:00.123Z", body["timestamp"])
		assert.Equal(t, body["timestamp"], sent.Inputs["timestamp"])
	})

	t.Run("debounces repeat within window without side effects", func(t *testing.T) {
		f := newRelayFixture()
		f.chat.On("SendMessage", mock.Anything, mock.Anything).
			Return(&entities.ChatReply{ConversationID: "conv-1"}, nil).Once()

		event := &entities.DetectionEvent{Name: "Abaan", CameraID: "cam1"}
		_, err := f.service.HandleDetection(context.Background(), event)
		require.NoError(t, err)

		f.sessions.Delete("cam1")
		f.clock.Advance(time.Second)

		result, err := f.service.HandleDetection(context.Background(), event)

		require.NoError(t, err)
		assert.True(t, result.Debounced)
		assert.Nil(t, result.Detection)
		assert.Equal(t, 1, f.log.Len())
		_, ok := f.sessions.Get("cam1")
		assert.False(t, ok, "debounced event must not touch the registry")
		f.chat.AssertNumberOfCalls(t, "SendMessage", 1)
	})

	t.Run("accepts again once the window has elapsed", func(t *testing.T) {
		f := newRelayFixture()
		f.chat.On("SendMessage", mock.Anything, mock.Anything).
			Return(&entities.ChatReply{ConversationID: "conv-1"}, nil)

		event := &entities.DetectionEvent{Name: "Abaan", CameraID: "cam1"}
		_, err := f.service.HandleDetection(context.Background(), event)
		require.NoError(t, err)

		f.clock.Advance(3 * time.Second)
		result, err := f.service.HandleDetection(context.Background(), event)

		require.NoError(t, err)
		assert.False(t, result.Debounced)
		assert.Equal(t, 2, f.log.Len())
	})

	t.Run("applies defaults for missing camera and confidence", func(t *testing.T) {
		f := newRelayFixture()
		f.chat.On("SendMessage", mock.Anything, mock.MatchedBy(func(req *entities.ChatRequest) bool {
			return req.User == "camera-01" &&
				req.Inputs["camera_id"] == "entrance" &&
				req.Inputs["confidence"] == 1.0 &&
				req.Query == "Student Zara has been detected at entrance with 100.0% confidence. Please provide their information and status."
		})).Return(&entities.ChatReply{ConversationID: "conv-d"}, nil).Once()

		result, err := f.service.HandleDetection(context.Background(), &entities.DetectionEvent{Name: "Zara"})

		require.NoError(t, err)
		assert.Equal(t, "default", result.Detection.CameraID)
		assert.Equal(t, 1.0, result.Detection.Confidence)
		conv, _ := f.sessions.Get("default")
		assert.Equal(t, "conv-d", conv)
		f.chat.AssertExpectations(t)
	})

	t.Run("metadata is merged last and overrides fixed inputs", func(t *testing.T) {
		f := newRelayFixture()
		f.chat.On("SendMessage", mock.Anything, mock.MatchedBy(func(req *entities.ChatRequest) bool {
			return req.Inputs["age"] == 18.0 &&
				req.Inputs["gender"] == "M" &&
				req.Inputs["camera_id"] == "override"
		})).Return(&entities.ChatReply{}, nil).Once()

		_, err := f.service.HandleDetection(context.Background(), &entities.DetectionEvent{
			Name:     "Abaan",
			CameraID: "cam1",
			Metadata: map[string]interface{}{"age": 18.0, "gender": "M", "camera_id": "override"},
		})

		require.NoError(t, err)
		f.chat.AssertExpectations(t)
	})
}

func TestRelayService_ConversationResolution(t *testing.T) {
	t.Run("reuses stored conversation for the same source", func(t *testing.T) {
		f := newRelayFixture()
		f.sessions.Set("cam1", "conv-stored")
		f.chat.On("SendMessage", mock.Anything, mock.MatchedBy(func(req *entities.ChatRequest) bool {
			return req.ConversationID == "conv-stored"
		})).Return(&entities.ChatReply{ConversationID: "conv-stored"}, nil).Once()

		_, err := f.service.HandleDetection(context.Background(), &entities.DetectionEvent{Name: "Abaan", CameraID: "cam1"})

		require.NoError(t, err)
		f.chat.AssertExpectations(t)
	})

	t.Run("explicit conversation wins but registry takes backend answer", func(t *testing.T) {
		f := newRelayFixture()
		f.sessions.Set("cam1", "conv-stored")
		f.chat.On("SendMessage", mock.Anything, mock.MatchedBy(func(req *entities.ChatRequest) bool {
			return req.ConversationID == "conv-explicit"
		})).Return(&entities.ChatReply{ConversationID: "conv-new"}, nil).Once()

		_, err := f.service.HandleDetection(context.Background(), &entities.DetectionEvent{
			Name:           "Abaan",
			CameraID:       "cam1",
			ConversationID: "conv-explicit",
		})

		require.NoError(t, err)
		conv, _ := f.sessions.Get("cam1")
		assert.Equal(t, "conv-new", conv)
		f.chat.AssertExpectations(t)
	})

	t.Run("follow-up detection uses conversation from previous reply", func(t *testing.T) {
		f := newRelayFixture()
		f.chat.On("SendMessage", mock.Anything, mock.MatchedBy(func(req *entities.ChatRequest) bool {
			return req.ConversationID == ""
		})).Return(&entities.ChatReply{ConversationID: "conv-1"}, nil).Once()
		f.chat.On("SendMessage", mock.Anything, mock.MatchedBy(func(req *entities.ChatRequest) bool {
			return req.ConversationID == "conv-1"
		})).Return(&entities.ChatReply{ConversationID: "conv-1"}, nil).Once()

		_, err := f.service.HandleDetection(context.Background(), &entities.DetectionEvent{Name: "Abaan", CameraID: "cam1"})
		require.NoError(t, err)
		_, err = f.service.HandleDetection(context.Background(), &entities.DetectionEvent{Name: "Zara", CameraID: "cam1"})
		require.NoError(t, err)

		f.chat.AssertExpectations(t)
	})

	t.Run("cleared conversation is not reused", func(t *testing.T) {
		f := newRelayFixture()
		f.sessions.Set("cam1", "conv-old")

		assert.True(t, f.service.ClearConversation("cam1"))
		_, ok := f.sessions.Get("cam1")
		assert.False(t, ok)
		assert.Empty(t, f.service.Conversations())
	})
}

func TestRelayService_UpstreamFailureKeepsDetection(t *testing.T) {
	f := newRelayFixture()
	f.sessions.Set("cam1", "conv-stored")
	upstream := apperrors.NewUpstreamError("Dify API error", http.StatusUnauthorized, []byte(`{"msg":"bad key"}`))
	f.chat.On("SendMessage", mock.Anything, mock.Anything).Return(nil, upstream).Once()

	result, err := f.service.HandleDetection(context.Background(), &entities.DetectionEvent{Name: "Abaan", CameraID: "cam1"})

	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, `{"msg":"bad key"}`, string(appErr.Body))
	require.NotNil(t, result)
	assert.NotNil(t, result.Detection)
	assert.Nil(t, result.Reply)
	assert.Equal(t, 1, f.log.Len(), "detection recorded before the call is not rolled back")

	conv, _ := f.sessions.Get("cam1")
	assert.Equal(t, "conv-stored", conv)
}

func TestRelayService_HandleManualQuery(t *testing.T) {
	t.Run("bypasses debounce and log", func(t *testing.T) {
		f := newRelayFixture()
		f.sessions.Set("cam1", "conv-1")
		f.chat.On("SendMessage", mock.Anything, mock.MatchedBy(func(req *entities.ChatRequest) bool {
			return req.Query == "Who is in today?" &&
				req.ConversationID == "conv-1" &&
				req.User == "cam1" &&
				len(req.Inputs) == 0
		})).Return(&entities.ChatReply{ConversationID: "conv-2", Answer: "Abaan"}, nil).Twice()

		for i := 0; i < 2; i++ {
			result, err := f.service.HandleManualQuery(context.Background(), &entities.ManualQuery{
				Query:    "Who is in today?",
				CameraID: "cam1",
			})
			require.NoError(t, err)
			assert.Equal(t, "Abaan", result.Reply.Answer)
			f.sessions.Set("cam1", "conv-1")
		}

		assert.Equal(t, 0, f.log.Len())
		f.chat.AssertExpectations(t)
	})

	t.Run("defaults user to manual and source to default", func(t *testing.T) {
		f := newRelayFixture()
		f.chat.On("SendMessage", mock.Anything, mock.MatchedBy(func(req *entities.ChatRequest) bool {
			return req.User == "manual"
		})).Return(&entities.ChatReply{ConversationID: "conv-m"}, nil).Once()

		_, err := f.service.HandleManualQuery(context.Background(), &entities.ManualQuery{Query: "hi"})

		require.NoError(t, err)
		conv, _ := f.sessions.Get("default")
		assert.Equal(t, "conv-m", conv)
	})

	t.Run("rejects empty query", func(t *testing.T) {
		f := newRelayFixture()

		_, err := f.service.HandleManualQuery(context.Background(), &entities.ManualQuery{})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}

func TestRelayService_ConcurrentDuplicatesRelayOnce(t *testing.T) {
	f := newRelayFixture()
	f.chat.On("SendMessage", mock.Anything, mock.Anything).Return(&entities.ChatReply{ConversationID: "c"}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.service.HandleDetection(context.Background(), &entities.DetectionEvent{Name: "Abaan", CameraID: "cam1"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.log.Len())
	f.chat.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestRelayService_PublishesAcceptedDetections(t *testing.T) {
	f := newRelayFixture()
	bus := events.NewMemoryEventBus()
	defer bus.Close()
	f.service.SetEventBus(bus)
	f.chat.On("SendMessage", mock.Anything, mock.Anything).Return(&entities.ChatReply{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	all, err := bus.Subscribe(ctx, providers.EventChannelDetections)
	require.NoError(t, err)
	cam, err := bus.Subscribe(ctx, providers.GetCameraChannel("cam1"))
	require.NoError(t, err)

	result, err := f.service.HandleDetection(context.Background(), &entities.DetectionEvent{Name: "Abaan", CameraID: "cam1"})
	require.NoError(t, err)

	for _, ch := range []<-chan *entities.DetectionRecord{all, cam} {
		select {
		case rec := <-ch:
			assert.Equal(t, result.Detection.ID, rec.ID)
		case <-time.After(time.Second):
			t.Fatal("detection was not published")
		}
	}
}
