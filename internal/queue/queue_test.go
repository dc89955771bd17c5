package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobharvest/internal/jobs"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := New(1)
	result := make(chan jobs.QueueItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	item := jobs.QueueItem{URL: "https://www.jobs.ch/en/vacancies/detail/j1/"}
	if err := q.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.URL != item.URL {
			t.Fatalf("expected %q, got %+v", item.URL, got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := New(1)
	if err := qEnqueue.Enqueue(context.Background(), jobs.QueueItem{URL: "primed"}); err != nil {
		t.Fatalf("failed to prime queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, jobs.QueueItem{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueTryEnqueue(t *testing.T) {
	t.Parallel()

	q := New(1)
	if !q.TryEnqueue(jobs.QueueItem{URL: "a"}) {
		t.Fatal("TryEnqueue should succeed with room available")
	}
	if q.TryEnqueue(jobs.QueueItem{URL: "b"}) {
		t.Fatal("TryEnqueue must not block or succeed on a full queue")
	}
	if item, err := q.Dequeue(context.Background()); err != nil || item.URL != "a" {
		t.Fatalf("expected the accepted item, got %+v, %v", item, err)
	}
}

func TestQueueCloseDrainsRemainingItems(t *testing.T) {
	t.Parallel()

	q := New(2)
	if err := q.Enqueue(context.Background(), jobs.QueueItem{URL: "a"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	q.Close()

	if item, err := q.Dequeue(context.Background()); err != nil || item.URL != "a" {
		t.Fatalf("expected buffered item after close, got %+v, %v", item, err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
