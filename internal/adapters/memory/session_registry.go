package memory

import (
	"sort"
	"sync"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/internal/domain/repositories"
)

// SessionRegistry is a last-writer-wins map of source id to conversation id.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

var _ repositories.SessionRepository = (*SessionRegistry)(nil)

// Get returns the conversation bound to sourceID.
func (r *SessionRegistry) Get(sourceID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.sessions[sourceID]
	return id, ok
}

// Set overwrites the binding for sourceID.
func (r *SessionRegistry) Set(sourceID, conversationID string) {
	r.mu.Lock()
	r.sessions[sourceID] = conversationID
	r.mu.Unlock()
}

// Delete removes the binding and reports whether one existed.
func (r *SessionRegistry) Delete(sourceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[sourceID]
	delete(r.sessions, sourceID)
	return ok
}

// List returns all bindings ordered by camera id.
func (r *SessionRegistry) List() []entities.SessionBinding {
	r.mu.RLock()
	bindings := make([]entities.SessionBinding, 0, len(r.sessions))
	for camera, conv := range r.sessions {
		bindings = append(bindings, entities.SessionBinding{CameraID: camera, ConversationID: conv})
	}
	r.mu.RUnlock()

	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].CameraID < bindings[j].CameraID
	})
	return bindings
}
