package memory

import (
	"sync"
	"time"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/internal/domain/repositories"
)

// DebounceGate keeps the last accepted time per (source, subject) key.
type DebounceGate struct {
	window time.Duration

	mu       sync.Mutex
	accepted map[entities.DebounceKey]time.Time
}

// NewDebounceGate creates a gate with the given window.
func NewDebounceGate(window time.Duration) *DebounceGate {
	return &DebounceGate{
		window:   window,
		accepted: make(map[entities.DebounceKey]time.Time),
	}
}

var _ repositories.DebounceGate = (*DebounceGate)(nil)

// Window returns the configured debounce window.
func (g *DebounceGate) Window() time.Duration {
	return g.window
}

// ShouldAccept reports whether key may pass at now. Checking never records.
func (g *DebounceGate) ShouldAccept(key entities.DebounceKey, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, blocked := g.blockedLocked(key, now)
	return !blocked
}

// Record marks key as accepted at now.
func (g *DebounceGate) Record(key entities.DebounceKey, now time.Time) {
	g.mu.Lock()
	g.accepted[key] = now
	g.mu.Unlock()
}

// Admit checks and records under a single lock so that concurrent events for
// the same key cannot both pass.
func (g *DebounceGate) Admit(key entities.DebounceKey, now time.Time) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if since, blocked := g.blockedLocked(key, now); blocked {
		return false, since
	}
	g.accepted[key] = now
	return true, 0
}

// Sweep drops keys that can no longer block anything.
func (g *DebounceGate) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, last := range g.accepted {
		if now.Sub(last) >= g.window {
			delete(g.accepted, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (g *DebounceGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.accepted)
}

func (g *DebounceGate) blockedLocked(key entities.DebounceKey, now time.Time) (time.Duration, bool) {
	last, ok := g.accepted[key]
	if !ok {
		return 0, false
	}
	since := now.Sub(last)
	return since, since < g.window
}
