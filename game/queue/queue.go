// Package queue provides the bounded FIFO that buffers actions between their
// submitters and the session tick.
package queue

import (
	"errors"
	"sync"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity
var ErrQueueFull = errors.New("queue is full")

// Queue is a FIFO buffer safe for concurrent producers. A capacity of zero
// means unbounded.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
}

// New creates a queue holding at most capacity items
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{capacity: capacity}
}

// Enqueue appends item without blocking. When the queue is full the item is
// dropped, the contents are unchanged and ErrQueueFull is returned.
func (q *Queue[T]) Enqueue(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	q.items = append(q.items, item)
	return nil
}

// Dequeue removes and returns the oldest item. ok is false when empty.
func (q *Queue[T]) Dequeue() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return item, true
}

// Len returns the number of pending items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the configured capacity, zero when unbounded
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Clear drops every pending item and returns how many were dropped
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}
