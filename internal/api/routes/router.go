package routes

import (
	"net/http"

	"github.com/zatekoja/attendance-relay/internal/api/handlers"
	"github.com/zatekoja/attendance-relay/internal/api/middleware"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	relayHandler  *handlers.RelayHandler
	frameHandler  *handlers.FrameHandler
	healthHandler *handlers.HealthHandler
	sseHandler    *handlers.SSEHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router. sseHandler may be nil to disable the
// detection stream.
func NewRouter(
	relayHandler *handlers.RelayHandler,
	frameHandler *handlers.FrameHandler,
	healthHandler *handlers.HealthHandler,
	sseHandler *handlers.SSEHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		relayHandler:   relayHandler,
		frameHandler:   frameHandler,
		healthHandler:  healthHandler,
		sseHandler:     sseHandler,
		allowedOrigins: allowedOrigins,
		metrics:        metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)

	// Detection relay
	r.mux.HandleFunc("POST /face-event", r.relayHandler.FaceEvent)
	r.mux.HandleFunc("POST /chat", r.relayHandler.Chat)
	r.mux.HandleFunc("GET /detections", r.relayHandler.ListDetections)

	// Session bindings
	r.mux.HandleFunc("GET /conversations", r.relayHandler.ListConversations)
	r.mux.HandleFunc("DELETE /conversations/{camera_id}", r.relayHandler.ClearConversation)

	// Recognition proxy
	r.mux.HandleFunc("POST /recognize-frame", r.frameHandler.RecognizeFrame)

	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /detections/stream", r.sseHandler.StreamDetections)
	}

	// Apply middleware in reverse order (last middleware wraps first).
	// CORS is outermost so preflights and error responses carry its headers.
	var handler http.Handler = r.mux
	handler = middleware.RecoveryMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.ResponseOptimization(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
