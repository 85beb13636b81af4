package sink

import (
	"chat-core/domain/event"
	"context"
	"sync"
)

// Timeline holds a simple local timeline of the events delivered to one connection
type Timeline struct {
	mu     sync.Mutex
	events []event.Event
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

func (t *Timeline) Consume(_ context.Context, e event.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	return nil
}

// Events returns a copy of everything consumed so far.
func (t *Timeline) Events() []event.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := make([]event.Event, len(t.events))
	copy(res, t.events)
	return res
}

// Named returns the consumed events with the given name, in delivery order.
func (t *Timeline) Named(name string) []event.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	var res []event.Event
	for _, e := range t.events {
		if e.Name() == name {
			res = append(res, e)
		}
	}
	return res
}
