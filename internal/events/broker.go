// Package events fans run progress out to live subscribers
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies the kind of event
type Type string

const (
	TypeStatus   Type = "status"
	TypeProgress Type = "progress"
	TypeDone     Type = "done"
)

// Event is a single run notification
type Event struct {
	Seq       uint64    `json:"seq"`
	RunID     string    `json:"run_id"`
	Type      Type      `json:"type"`
	Status    string    `json:"status,omitempty"`
	Completed int       `json:"completed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Chunk     int       `json:"chunk,omitempty"`
	Time      time.Time `json:"time"`
}

const subscriberBuffer = 64

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Broker delivers events to subscribers of a run. Publishing never blocks:
// events for a subscriber whose buffer is full are dropped.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
	seq  atomic.Uint64
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers for events of one run. The returned channel is closed
// when unsubscribe is called, ctx is done, or the run is closed.
func (b *Broker) Subscribe(ctx context.Context, runID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[*subscriber]struct{})
	}
	b.subs[runID][sub] = struct{}{}
	b.mu.Unlock()

	remove := func() {
		b.mu.Lock()
		if set, ok := b.subs[runID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, runID)
			}
		}
		b.mu.Unlock()
		sub.close()
	}

	stop := context.AfterFunc(ctx, remove)
	unsubscribe := func() {
		stop()
		remove()
	}

	return sub.ch, unsubscribe
}

// Publish stamps e with a sequence number and time and delivers it
func (b *Broker) Publish(e Event) {
	e.Seq = b.seq.Add(1)
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[e.RunID] {
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Close ends every subscription of a run
func (b *Broker) Close(runID string) {
	b.mu.Lock()
	set := b.subs[runID]
	delete(b.subs, runID)
	b.mu.Unlock()

	for sub := range set {
		sub.close()
	}
}

// Subscribers returns the number of live subscriptions for a run
func (b *Broker) Subscribers(runID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[runID])
}
