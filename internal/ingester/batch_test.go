package ingester

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type flushRecorder struct {
	mu      sync.Mutex
	batches [][]int
	err     error
}

func (r *flushRecorder) flush(ctx context.Context, items []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := make([]int, len(items))
	copy(batch, items)
	r.batches = append(r.batches, batch)
	return r.err
}

func (r *flushRecorder) snapshot() [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]int, len(r.batches))
	copy(out, r.batches)
	return out
}

func TestQueueFlushesAtMaxItems(t *testing.T) {
	rec := &flushRecorder{}
	q := NewQueue("test", 3, time.Hour, rec.flush)
	ctx := context.Background()

	q.Add(ctx, 1)
	q.Add(ctx, 2)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("flushed early: %v", got)
	}
	q.Add(ctx, 3)

	got := rec.snapshot()
	if len(got) != 1 || len(got[0]) != 3 {
		t.Fatalf("expected one batch of 3, got %v", got)
	}
	if q.Len() != 0 {
		t.Errorf("queue not emptied, len = %d", q.Len())
	}
}

func TestQueueFlushesOnMaxWait(t *testing.T) {
	rec := &flushRecorder{}
	q := NewQueue("test", 100, 20*time.Millisecond, rec.flush)
	q.Add(context.Background(), 42)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := rec.snapshot(); len(got) == 1 {
			if len(got[0]) != 1 || got[0][0] != 42 {
				t.Fatalf("wrong batch: %v", got)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed flush never fired")
}

func TestQueueDrain(t *testing.T) {
	rec := &flushRecorder{}
	q := NewQueue("test", 100, time.Hour, rec.flush)
	ctx := context.Background()

	if err := q.Drain(ctx); err != nil {
		t.Fatalf("empty drain: %v", err)
	}
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("empty drain flushed: %v", got)
	}

	q.Add(ctx, 1)
	q.Add(ctx, 2)
	if err := q.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	got := rec.snapshot()
	if len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("expected one batch of 2, got %v", got)
	}
}

func TestQueueDrainReturnsFlushError(t *testing.T) {
	rec := &flushRecorder{err: errors.New("db down")}
	q := NewQueue("test", 100, time.Hour, rec.flush)
	q.Add(context.Background(), 1)
	if err := q.Drain(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
}

func TestQueuePreservesOrder(t *testing.T) {
	rec := &flushRecorder{}
	q := NewQueue("test", 100, time.Hour, rec.flush)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		q.Add(ctx, i)
	}
	if err := q.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	got := rec.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected one batch, got %d", len(got))
	}
	for i, v := range got[0] {
		if v != i {
			t.Fatalf("order broken at %d: %v", i, got[0])
		}
	}
}
