// internal/events/bus.go

// Package events provides the in-process channel that decouples mandate
// producers (recommendation/catalog surfaces) from the chat surface and the
// reconcilers that track resolutions. Dispatch is synchronous and
// fire-and-forget: listeners registered after a publish never see it.
package events

import (
	"sync"

	"flowcoach/internal/mandate"
)

// ProposedEvent asks the chat surface to inject a mandate into the
// conversation and bring itself into view.
type ProposedEvent struct {
	Message    string
	Attachment *mandate.Attachment
}

// ResolvedEvent announces that a mandate reached a terminal status.
// Status is always declined or executed.
type ResolvedEvent struct {
	ID     string
	Status mandate.Status
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// Bus is an injectable publish/subscribe channel with three named topics.
// Listeners are invoked synchronously in registration order. Callbacks may
// publish or unsubscribe reentrantly.
type Bus struct {
	mu       sync.Mutex
	nextID   int
	open     []subscription[struct{}]
	proposed []subscription[ProposedEvent]
	resolved []subscription[ResolvedEvent]
}

func NewBus() *Bus {
	return &Bus{}
}

// SubscribeOpen registers a listener for chat-surface open requests and
// returns its unsubscribe function.
func (b *Bus) SubscribeOpen(fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.open = append(b.open, subscription[struct{}]{id: id, fn: func(struct{}) { fn() }})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.open = remove(b.open, id)
	}
}

// SubscribeProposed registers a listener for mandate proposals.
func (b *Bus) SubscribeProposed(fn func(ProposedEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.proposed = append(b.proposed, subscription[ProposedEvent]{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.proposed = remove(b.proposed, id)
	}
}

// SubscribeResolved registers a listener for terminal mandate resolutions.
func (b *Bus) SubscribeResolved(fn func(ResolvedEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.resolved = append(b.resolved, subscription[ResolvedEvent]{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.resolved = remove(b.resolved, id)
	}
}

// PublishOpen asks the chat surface to come into view.
func (b *Bus) PublishOpen() {
	dispatch(b, &b.open, struct{}{})
}

// PublishProposed hands a mandate to the conversation.
func (b *Bus) PublishProposed(ev ProposedEvent) {
	dispatch(b, &b.proposed, ev)
}

// PublishResolved announces a terminal resolution to every tracker.
func (b *Bus) PublishResolved(ev ResolvedEvent) {
	dispatch(b, &b.resolved, ev)
}

// dispatch snapshots the subscriber list before invoking callbacks so that
// reentrant subscribe/unsubscribe cannot corrupt iteration. A listener
// removed mid-dispatch still receives the event it was registered for.
func dispatch[T any](b *Bus, subs *[]subscription[T], ev T) {
	b.mu.Lock()
	snapshot := make([]subscription[T], len(*subs))
	copy(snapshot, *subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		s.fn(ev)
	}
}

func remove[T any](subs []subscription[T], id int) []subscription[T] {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
