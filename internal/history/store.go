// Package history keeps a bounded in-memory window of recent records
// per device. The ingestion path is the only writer; reads may happen
// concurrently from API handlers.
package history

import (
	"sync"

	"github.com/scalewatch/scalewatch/internal/domain"
)

// Bounds on the store and on read requests.
const (
	DefaultCap   = 2000
	DefaultLimit = 200
	MaxLimit     = 5000
)

// Store is a per-device FIFO of recent UplinkRecords. Entries are kept
// in insertion order; out-of-order delivery is not corrected. Once a
// device's sequence exceeds the cap the oldest entries are evicted.
type Store struct {
	mu      sync.RWMutex
	cap     int
	devices map[string][]*domain.UplinkRecord
}

// NewStore creates a store with the given per-device cap (DefaultCap
// when cap <= 0).
func NewStore(cap int) *Store {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Store{cap: cap, devices: make(map[string][]*domain.UplinkRecord)}
}

// Append pushes a record onto its device's sequence, evicting from the
// front when over cap.
func (s *Store) Append(rec *domain.UplinkRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := append(s.devices[rec.DeviceID], rec)
	if over := len(seq) - s.cap; over > 0 {
		seq = append([]*domain.UplinkRecord(nil), seq[over:]...)
	}
	s.devices[rec.DeviceID] = seq
}

// HandleUplink makes the store an ingestion sink.
func (s *Store) HandleUplink(rec *domain.UplinkRecord) error {
	s.Append(rec)
	return nil
}

// Recent returns the most recent min(limit, length) records for a
// device in insertion order. The limit is clamped to [1, MaxLimit]; an
// unknown device yields an empty slice, never an error.
func (s *Store) Recent(deviceID string, limit int) []*domain.UplinkRecord {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.devices[deviceID]
	if len(seq) > limit {
		seq = seq[len(seq)-limit:]
	}
	out := make([]*domain.UplinkRecord, len(seq))
	copy(out, seq)
	return out
}

// Len returns the current sequence length for a device.
func (s *Store) Len(deviceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices[deviceID])
}
