package app

import (
	"sync"

	"github.com/garycarlyle/TVShow/internal/domain"
)

// eventRecorder collects emitted events in order
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{}
}

func (r *eventRecorder) emit(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) count(kind domain.EventKind) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

func (r *eventRecorder) ofKind(kind domain.EventKind) []domain.Event {
	var out []domain.Event
	for _, ev := range r.all() {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
