// Package memory provides the in-process work queue that feeds (source, term) pairs to workers.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue of pairs with context-aware operations.
type Queue struct {
	ch      chan crawler.Pair
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan crawler.Pair, capacity),
	}
}

// Enqueue pushes a pair into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, pair crawler.Pair) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- pair:
		return nil
	}
}

// Dequeue pops the next pair, respecting context cancellation. A closed, empty queue
// returns ErrClosed.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Pair, error) {
	if err := ctx.Err(); err != nil {
		return crawler.Pair{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return crawler.Pair{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case pair, ok := <-q.ch:
		if !ok {
			return crawler.Pair{}, ErrClosed
		}
		return pair, nil
	}
}

// Len reports the number of pairs waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel. Pairs already queued can still be dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
