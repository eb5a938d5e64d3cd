package repositories

import "github.com/zatekoja/attendance-relay/internal/domain/entities"

// SessionRepository binds a source id to its latest conversation id.
type SessionRepository interface {
	Get(sourceID string) (string, bool)
	Set(sourceID, conversationID string)
	Delete(sourceID string) bool
	List() []entities.SessionBinding
}
