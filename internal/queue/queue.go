// Package queue provides the bounded in-memory work queue feeding the
// extraction pool.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"jobharvest/internal/jobs"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO with context-aware operations. FIFO order is
// best effort: retried items re-enter at the tail.
type Queue struct {
	ch      chan jobs.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// New constructs a queue with the provided capacity.
func New(capacity int) *Queue {
	return &Queue{
		ch: make(chan jobs.QueueItem, capacity),
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item jobs.QueueItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// TryEnqueue pushes an item only if the queue has room right now.
// Workers use it for retry requeues: blocking here would deadlock once
// every consumer is a blocked producer.
func (q *Queue) TryEnqueue(item jobs.QueueItem) bool {
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// Dequeue pops the next item, blocking until one arrives, the queue is
// closed, or the context ends.
func (q *Queue) Dequeue(ctx context.Context) (jobs.QueueItem, error) {
	select {
	case <-ctx.Done():
		return jobs.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return jobs.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Close closes the underlying channel for shutdown. Safe to call more
// than once. Items already enqueued remain dequeueable.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
