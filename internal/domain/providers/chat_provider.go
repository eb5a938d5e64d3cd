package providers

import (
	"context"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
)

// ChatProvider sends messages to the conversational AI backend.
//
// A non-success answer is reported as an *errors.AppError of type EXTERNAL
// carrying the backend's status code and raw body.
type ChatProvider interface {
	SendMessage(ctx context.Context, req *entities.ChatRequest) (*entities.ChatReply, error)
}
