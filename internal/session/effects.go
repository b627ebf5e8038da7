package session

import (
	"context"
	"sync"
)

type effect struct {
	name string
	// latest marks a snapshot effect that a newer one of its kind may
	// replace while still queued.
	latest bool
	run    func(context.Context)
}

// effectQueue is the ordered, unbounded queue between a session loop and
// its side-effect worker. Lifecycle effects are never dropped; consecutive
// snapshot effects collapse into the newest, which keeps the queue bounded
// by the number of lifecycle effects.
type effectQueue struct {
	mu     sync.Mutex
	items  []effect
	closed bool
	ready  chan struct{}
}

func newEffectQueue() *effectQueue {
	return &effectQueue{ready: make(chan struct{}, 1)}
}

// push appends e and reports whether it replaced a queued snapshot.
func (q *effectQueue) push(e effect) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	replaced := false
	if n := len(q.items); e.latest && n > 0 && q.items[n-1].latest && q.items[n-1].name == e.name {
		q.items[n-1] = e
		replaced = true
	} else {
		q.items = append(q.items, e)
	}
	q.mu.Unlock()
	q.signal()
	return replaced
}

// close lets the worker finish what is queued and stop.
func (q *effectQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// take blocks until effects are queued and returns them all, or returns
// false once the queue is closed and empty.
func (q *effectQueue) take() ([]effect, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			batch := q.items
			q.items = nil
			q.mu.Unlock()
			return batch, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}
		<-q.ready
	}
}

func (q *effectQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
