package ingester

import (
	"context"
	"log"
	"sync"
	"time"
)

// FlushFunc writes one coalesced batch. A non-nil error fails the whole
// batch; the queue reports it and the caller decides recovery.
type FlushFunc[T any] func(ctx context.Context, items []T) error

// Queue coalesces per-row operations into amortized batch writes. A flush
// fires when the queue reaches maxItems, when maxWait elapses since the
// first enqueue, or on an explicit Drain. Flushes are single-flight per
// queue.
type Queue[T any] struct {
	name     string
	maxItems int
	maxWait  time.Duration
	flush    FlushFunc[T]

	mu    sync.Mutex
	items []T
	timer *time.Timer

	// flightMu serializes flushes so two triggers never overlap.
	flightMu sync.Mutex
}

func NewQueue[T any](name string, maxItems int, maxWait time.Duration, flush FlushFunc[T]) *Queue[T] {
	if maxItems <= 0 {
		maxItems = 100
	}
	if maxWait <= 0 {
		maxWait = 120 * time.Millisecond
	}
	return &Queue[T]{
		name:     name,
		maxItems: maxItems,
		maxWait:  maxWait,
		flush:    flush,
	}
}

// Add enqueues one item, flushing synchronously when the size threshold is
// reached.
func (q *Queue[T]) Add(ctx context.Context, item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	full := len(q.items) >= q.maxItems
	if len(q.items) == 1 && !full {
		q.timer = time.AfterFunc(q.maxWait, func() {
			if err := q.Drain(context.Background()); err != nil {
				log.Printf("[Batch:%s] timed flush failed: %v", q.name, err)
			}
		})
	}
	q.mu.Unlock()

	if full {
		if err := q.Drain(ctx); err != nil {
			log.Printf("[Batch:%s] full flush failed: %v", q.name, err)
		}
	}
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain flushes everything currently queued and returns the flush error.
// Items enqueued while the flush is running are left for the next flush.
func (q *Queue[T]) Drain(ctx context.Context) error {
	q.flightMu.Lock()
	defer q.flightMu.Unlock()

	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	batch := q.items
	q.items = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := q.flush(ctx, batch); err != nil {
		log.Printf("[Batch:%s] flush of %d items failed: %v", q.name, len(batch), err)
		return err
	}
	return nil
}
