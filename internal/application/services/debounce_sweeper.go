package services

import (
	"context"
	"time"

	"github.com/zatekoja/attendance-relay/internal/domain/repositories"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/observability"
)

// DebounceSweeper periodically forgets debounce keys that are older than the
// window and therefore can no longer reject anything.
type DebounceSweeper struct {
	gate repositories.DebounceGate
	now  func() time.Time
}

// NewDebounceSweeper creates a new sweeper
func NewDebounceSweeper(gate repositories.DebounceGate) *DebounceSweeper {
	return &DebounceSweeper{gate: gate, now: time.Now}
}

// SweepOnce removes stale keys and returns how many were dropped.
func (s *DebounceSweeper) SweepOnce() int {
	return s.gate.Sweep(s.now())
}

// StartPeriodicSweep sweeps on every tick until ctx is cancelled
func (s *DebounceSweeper) StartPeriodicSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.SweepOnce(); removed > 0 {
				observability.GetLogger().Debug().Int("removed", removed).Msg("swept debounce keys")
			}
		}
	}
}
