package repositories

import (
	"time"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
)

// DebounceGate suppresses repeat notifications for the same key within a window.
type DebounceGate interface {
	// ShouldAccept reports whether an event for key arriving at now is outside
	// the window of the last recorded acceptance. It does not record anything.
	ShouldAccept(key entities.DebounceKey, now time.Time) bool

	// Record marks key as accepted at now.
	Record(key entities.DebounceKey, now time.Time)

	// Admit performs ShouldAccept and Record as one atomic step and returns the
	// time since the previous acceptance when the event is rejected.
	Admit(key entities.DebounceKey, now time.Time) (accepted bool, sinceLast time.Duration)

	// Sweep forgets keys whose last acceptance is at least one window old.
	Sweep(now time.Time) int
}
