package events

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/internal/domain/providers"
)

// ErrBusClosed is returned by operations on a closed bus.
var ErrBusClosed = errors.New("event bus closed")

// MemoryEventBus delivers detections to subscribers in the same process.
type MemoryEventBus struct {
	fanout *fanout
	closed atomic.Bool
}

// NewMemoryEventBus creates an in-process event bus
func NewMemoryEventBus() providers.EventBus {
	return &MemoryEventBus{fanout: newFanout()}
}

// Publish delivers record to the current subscribers of channel
func (b *MemoryEventBus) Publish(ctx context.Context, channel string, record *entities.DetectionRecord) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	b.fanout.broadcast(channel, record)
	return nil
}

// Subscribe returns a channel that receives detections until ctx is done
func (b *MemoryEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.DetectionRecord, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	ch, _ := b.fanout.add(channel)

	go func() {
		<-ctx.Done()
		b.fanout.remove(channel, ch)
	}()

	return ch, nil
}

// Unsubscribe closes every subscriber of channel
func (b *MemoryEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.fanout.closeChannel(channel)
	return nil
}

// Close closes all subscriptions
func (b *MemoryEventBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, channel := range b.fanout.channels() {
		b.fanout.closeChannel(channel)
	}
	return nil
}
