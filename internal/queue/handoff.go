// Package queue provides the handoff queue used to move decoded messages from
// the background socket poller to the tick-driven dispatcher.
package queue

import "sync"

// Queue is an unbounded FIFO safe for concurrent use. Neither side ever
// waits on the other beyond a short critical section. Items from a single
// producer keep their order; items from different producers interleave in
// Enqueue order.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Enqueue appends v to the tail of the queue.
func (q *Queue[T]) Enqueue(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// DrainAll removes and returns everything currently queued, oldest first.
// It returns nil when the queue is empty and never waits for new items.
func (q *Queue[T]) DrainAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	items := q.items
	q.items = nil
	return items
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
