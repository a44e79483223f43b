package daemon

import (
	"sync"

	"github.com/jmylchreest/compstack/internal/model"
)

// EventQueue buffers structural notifications between the X reader and the
// reconciler loop. Push never blocks.
type EventQueue struct {
	mu     sync.Mutex
	events []model.Event
	ready  chan struct{}
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{ready: make(chan struct{}, 1)}
}

// Push appends ev and wakes the consumer.
func (q *EventQueue) Push(ev model.Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Poll removes the oldest notification.
func (q *EventQueue) Poll() (model.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return model.Event{}, false
	}
	ev := q.events[0]
	q.events[0] = model.Event{}
	q.events = q.events[1:]
	if len(q.events) == 0 {
		q.events = nil
	}
	return ev, true
}

// Len returns the number of queued notifications.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Ready is signalled after a Push.
func (q *EventQueue) Ready() <-chan struct{} {
	return q.ready
}
