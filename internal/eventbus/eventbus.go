// Package eventbus is the in-process, best-effort fan-out over domain
// events (spec §4.6). It is intentionally separate from the authoritative,
// never-dropping append-only log kept by internal/store: the bus exists for
// liveness (so a dashboard or CLI watcher sees near-real-time activity),
// not durability. Grounded on the teacher's GlassBoxEventBus
// (internal/transparency/event_bus.go), simplified from its batching and
// category-filter design down to the spec's bounded, drop-oldest,
// per-subscriber queue.
package eventbus

import (
	"sync"

	"github.com/terminal-coder/tc/internal/domain"
)

// Filter narrows which events a subscriber receives. A nil Kinds set or nil
// Subject predicate matches everything.
type Filter struct {
	Kinds   map[domain.EventKind]bool
	Subject func(subject string) bool
}

func (f Filter) matches(ev domain.Event) bool {
	if f.Kinds != nil && !f.Kinds[ev.Kind] {
		return false
	}
	if f.Subject != nil && !f.Subject(ev.Subject) {
		return false
	}
	return true
}

type subscriber struct {
	id     uint64
	ch     chan domain.Event
	filter Filter
}

// Bus is a bounded, drop-oldest publish/subscribe fan-out.
type Bus struct {
	mu        sync.Mutex
	subs      map[uint64]*subscriber
	nextID    uint64
	bufferLen int
}

// New creates a Bus whose per-subscriber channel holds at most bufferLen
// events before the oldest undelivered event is dropped.
func New(bufferLen int) *Bus {
	if bufferLen < 1 {
		bufferLen = 1
	}
	return &Bus{subs: make(map[uint64]*subscriber), bufferLen: bufferLen}
}

// Subscription is a live registration; call Close to stop receiving events
// and release the channel.
type Subscription struct {
	bus *Bus
	id  uint64
	ch  chan domain.Event
}

// Events returns the channel events are delivered on.
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.id]; ok {
		delete(s.bus.subs, s.id)
		close(s.ch)
	}
}

// Subscribe registers a new subscriber matching filter.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{
		id:     b.nextID,
		ch:     make(chan domain.Event, b.bufferLen),
		filter: filter,
	}
	b.subs[sub.id] = sub
	return &Subscription{bus: b, id: sub.id, ch: sub.ch}
}

// Publish fans ev out to every matching subscriber. On a full subscriber
// channel, the oldest queued event is dropped to make room and a single
// synthesized overflow event replaces it so observers can detect loss,
// rather than blocking the publisher or silently dropping the newest event.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if !sub.filter.matches(ev) {
			continue
		}
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub *subscriber, ev domain.Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}

	select {
	case <-sub.ch:
	default:
	}

	overflow := domain.Event{
		Kind:      domain.EventOverflow,
		Subject:   ev.Subject,
		CreatedAt: ev.CreatedAt,
		Payload:   map[string]any{"overflow": true, "dropped_kind": string(ev.Kind)},
	}
	select {
	case sub.ch <- overflow:
	default:
	}
	select {
	case sub.ch <- ev:
	default:
	}
}

// SubscriberCount reports the number of live subscriptions, for tests and
// diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
