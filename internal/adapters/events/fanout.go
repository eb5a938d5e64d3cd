package events

import (
	"sync"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/observability"
)

const subscriberBuffer = 100

// fanout tracks local subscriber channels per bus channel. Slow subscribers
// lose events rather than stalling the publisher.
type fanout struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.DetectionRecord]struct{}
}

func newFanout() *fanout {
	return &fanout{subscribers: make(map[string]map[chan *entities.DetectionRecord]struct{})}
}

func (f *fanout) add(channel string) (chan *entities.DetectionRecord, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribers[channel] == nil {
		f.subscribers[channel] = make(map[chan *entities.DetectionRecord]struct{})
	}
	ch := make(chan *entities.DetectionRecord, subscriberBuffer)
	f.subscribers[channel][ch] = struct{}{}
	return ch, len(f.subscribers[channel])
}

// remove closes ch and reports how many subscribers remain on channel.
func (f *fanout) remove(channel string, ch chan *entities.DetectionRecord) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.subscribers[channel]
	if !ok {
		return 0
	}
	if _, ok := subs[ch]; !ok {
		return len(subs)
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(f.subscribers, channel)
	}
	return len(subs)
}

func (f *fanout) broadcast(channel string, record *entities.DetectionRecord) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for sub := range f.subscribers[channel] {
		select {
		case sub <- record:
		default:
			observability.GetLogger().Warn().
				Str("channel", channel).
				Str("detection_id", record.ID).
				Msg("subscriber channel full, skipping detection")
		}
	}
}

func (f *fanout) closeChannel(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subscribers[channel] {
		close(sub)
	}
	delete(f.subscribers, channel)
}

func (f *fanout) count(channel string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers[channel])
}

func (f *fanout) channels() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.subscribers))
	for channel := range f.subscribers {
		out = append(out, channel)
	}
	return out
}
