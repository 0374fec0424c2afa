// Package queue provides the fixed-capacity, non-blocking-insert queue that
// connects pipeline stages. A full queue sheds load instead of blocking the
// producer, which keeps the age of visible results bounded.
package queue

import (
	"context"
	"sync/atomic"
	"time"
)

// DropPolicy decides what happens to an insert into a full queue.
type DropPolicy int

const (
	// DropNewest rejects the incoming item and leaves the queue unchanged.
	DropNewest DropPolicy = iota
	// DropOldest discards the head of the queue to admit the incoming item.
	DropOldest
)

// ParseDropPolicy maps the configuration names "drop_newest" and "drop_oldest".
func ParseDropPolicy(name string) DropPolicy {
	if name == "drop_oldest" {
		return DropOldest
	}
	return DropNewest
}

func (p DropPolicy) String() string {
	if p == DropOldest {
		return "drop_oldest"
	}
	return "drop_newest"
}

// Outcome reports what TryPut did with an item.
type Outcome int

const (
	// Enqueued means the item was accepted without discarding anything.
	Enqueued Outcome = iota
	// Dropped means the item was discarded because the queue was full.
	Dropped
	// Displaced means the item was accepted and an older item was discarded for it.
	Displaced
)

// Stats is a snapshot of queue counters.
type Stats struct {
	Capacity  int    `json:"capacity"`
	Length    int    `json:"length"`
	Enqueued  uint64 `json:"enqueued"`
	Dropped   uint64 `json:"dropped"`
	Displaced uint64 `json:"displaced"`
}

// Queue is a bounded FIFO safe for concurrent producers and consumers.
type Queue[T any] struct {
	items  chan T
	policy DropPolicy

	enqueued  atomic.Uint64
	dropped   atomic.Uint64
	displaced atomic.Uint64
}

// New creates a queue holding at most capacity items. Capacities below 1 are raised to 1.
func New[T any](capacity int, policy DropPolicy) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items:  make(chan T, capacity),
		policy: policy,
	}
}

// TryPut inserts item without blocking.
func (q *Queue[T]) TryPut(item T) Outcome {
	select {
	case q.items <- item:
		q.enqueued.Add(1)
		return Enqueued
	default:
	}

	if q.policy == DropNewest {
		q.dropped.Add(1)
		return Dropped
	}

	// Make room by discarding the oldest item. Another producer may win the
	// freed slot, in which case the incoming item is dropped after all.
	select {
	case <-q.items:
		q.displaced.Add(1)
	default:
	}
	select {
	case q.items <- item:
		q.enqueued.Add(1)
		return Displaced
	default:
		q.dropped.Add(1)
		return Dropped
	}
}

// Get removes the head item, waiting up to timeout. It returns false when the
// timeout expires or ctx is done before an item is available.
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-q.items:
		return item, true
	case <-timer.C:
	case <-ctx.Done():
	}
	var zero T
	return zero, false
}

// TryGet removes the head item if one is available.
func (q *Queue[T]) TryGet() (T, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return len(q.items) }

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return cap(q.items) }

// Policy returns the configured drop policy.
func (q *Queue[T]) Policy() DropPolicy { return q.policy }

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Capacity:  cap(q.items),
		Length:    len(q.items),
		Enqueued:  q.enqueued.Load(),
		Dropped:   q.dropped.Load(),
		Displaced: q.displaced.Load(),
	}
}
