// Package bus fans each normalized record out to live subscribers.
// Delivery is at-most-once: there is no backlog, a subscriber that
// joins after a record was published never sees it, and a subscriber
// whose channel is full has that record dropped rather than stalling
// ingestion.
package bus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/scalewatch/scalewatch/internal/domain"
	"github.com/scalewatch/scalewatch/internal/infra/metrics"
)

// DefaultBuffer is the per-subscriber channel depth.
const DefaultBuffer = 64

// Subscriber is one live consumer of the record stream. Receive from C
// until it is closed, then discard the subscriber.
type Subscriber struct {
	ID string
	C  <-chan *domain.UplinkRecord

	ch   chan *domain.UplinkRecord
	once sync.Once
}

// Bus broadcasts records to all current subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string]*Subscriber)}
}

// Subscribe registers a consumer with the given channel depth
// (DefaultBuffer when depth <= 0).
func (b *Bus) Subscribe(depth int) *Subscriber {
	if depth <= 0 {
		depth = DefaultBuffer
	}
	ch := make(chan *domain.UplinkRecord, depth)
	sub := &Subscriber{ID: uuid.NewString(), C: ch, ch: ch}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()

	metrics.BusSubscribers.Inc()
	return sub
}

// Unsubscribe removes a consumer and closes its channel. Safe to call
// more than once. The close happens under the write lock so it can
// never race a send in Publish.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	sub.once.Do(func() { close(sub.ch) })
	metrics.BusSubscribers.Dec()
}

// Publish delivers the record to every subscriber without blocking.
// A full subscriber channel drops the record for that subscriber only.
// Sends happen under the read lock: they are non-blocking, and the lock
// keeps Unsubscribe from closing a channel mid-broadcast.
func (b *Bus) Publish(rec *domain.UplinkRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		select {
		case s.ch <- rec:
		default:
			metrics.BusDropped.Inc()
		}
	}
}

// HandleUplink makes the bus an ingestion sink.
func (b *Bus) HandleUplink(rec *domain.UplinkRecord) error {
	b.Publish(rec)
	return nil
}

// Len returns the current subscriber count.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
