package memory

import (
	"sync"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/internal/domain/repositories"
)

// DetectionLog is an append-only, optionally bounded, record of accepted detections.
// A capacity of zero keeps every record for the life of the process.
type DetectionLog struct {
	capacity int

	mu      sync.RWMutex
	records []*entities.DetectionRecord
}

// NewDetectionLog creates a log. capacity <= 0 means unbounded.
func NewDetectionLog(capacity int) *DetectionLog {
	if capacity < 0 {
		capacity = 0
	}
	return &DetectionLog{capacity: capacity}
}

var _ repositories.DetectionRepository = (*DetectionLog)(nil)

// Append adds a record, evicting the oldest one when the log is full.
func (l *DetectionLog) Append(record *entities.DetectionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.capacity > 0 && len(l.records) >= l.capacity {
		// shift in place so the backing array does not grow without bound
		copy(l.records, l.records[1:])
		l.records[len(l.records)-1] = record
		return
	}
	l.records = append(l.records, record)
}

// Recent returns the last min(limit, total) records in append order.
func (l *DetectionLog) Recent(limit int) ([]*entities.DetectionRecord, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := len(l.records)
	if limit > total {
		limit = total
	}
	if limit < 0 {
		limit = 0
	}

	out := make([]*entities.DetectionRecord, limit)
	copy(out, l.records[total-limit:])
	return out, total
}

// Len returns the number of retained records.
func (l *DetectionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
