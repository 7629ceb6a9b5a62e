package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.Pair, 1)
	errCh := make(chan error, 1)

	go func() {
		pair, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- pair
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	want := crawler.Pair{Source: 1, Term: 3, StartPage: 2}
	if err := q.Enqueue(context.Background(), want); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return pair")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), crawler.Pair{}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, crawler.Pair{Term: 1}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueCloseDrainsThenReportsClosed(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	if err := q.Enqueue(context.Background(), crawler.Pair{Term: 7}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	q.Close()
	if q.Len() != 1 {
		t.Fatalf("expected 1 queued pair, got %d", q.Len())
	}
	got, err := q.Dequeue(context.Background())
	if err != nil || got.Term != 7 {
		t.Fatalf("expected queued pair after close, got %+v, %v", got, err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
