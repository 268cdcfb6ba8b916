package view

import (
	"sync"
	"time"

	"example.com/fitnessclient/internal/events"
)

// Invalidation is the shared refresh channel: a version counter plus subscribers.
type Invalidation struct {
	mu      sync.Mutex
	version uint64
	subs    []invalidationSub
	nextID  int
}

type invalidationSub struct {
	id int
	fn func(events.ActivitiesInvalidated)
}

// NewInvalidation returns a channel at version zero.
func NewInvalidation() *Invalidation {
	return &Invalidation{}
}

// Version returns the current counter.
func (i *Invalidation) Version() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.version
}

// Bump increments the version and notifies subscribers synchronously, in subscription order.
func (i *Invalidation) Bump(ev events.ActivitiesInvalidated) events.ActivitiesInvalidated {
	i.mu.Lock()
	i.version++
	ev.Version = i.version
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	subs := make([]func(events.ActivitiesInvalidated), len(i.subs))
	for idx, sub := range i.subs {
		subs[idx] = sub.fn
	}
	i.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return ev
}

// Subscribe registers fn and returns a function that removes it.
func (i *Invalidation) Subscribe(fn func(events.ActivitiesInvalidated)) func() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.nextID++
	id := i.nextID
	i.subs = append(i.subs, invalidationSub{id: id, fn: fn})
	return func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		for idx, sub := range i.subs {
			if sub.id == id {
				i.subs = append(i.subs[:idx:idx], i.subs[idx+1:]...)
				return
			}
		}
	}
}
