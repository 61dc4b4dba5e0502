package syncutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTTLCacheBasic(t *testing.T) {
	c := NewTTLCache(8)
	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	if !ok || v.(int) != 1 {
		t.Fatalf("Get(a) = %v, %t", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache(8)
	c.Set("a", 1, -time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry evicted, len = %d", c.Len())
	}
}

func TestTTLCacheDropsOldestHalf(t *testing.T) {
	c := NewTTLCache(4)
	keys := []string{"a", "b", "c", "d", "e"}
	for i, k := range keys {
		c.Set(k, i, time.Minute)
	}
	// Inserting the fifth entry drops the oldest half (a and b).
	if _, ok := c.Get("a"); ok {
		t.Error("expected oldest entry dropped")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected second-oldest entry dropped")
	}
	if _, ok := c.Get("e"); !ok {
		t.Error("expected newest entry kept")
	}
}

func TestTTLCacheResetRefreshesPosition(t *testing.T) {
	c := NewTTLCache(4)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)
	c.Set("d", 4, time.Minute)
	c.Set("a", 10, time.Minute) // moves a to the back
	c.Set("e", 5, time.Minute)  // eviction drops b and c
	if _, ok := c.Get("a"); !ok {
		t.Error("expected refreshed entry to survive eviction")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected b dropped")
	}
}

func TestSemaphoreLimitsConcurrency(t *testing.T) {
	s := NewSemaphore(2)
	ctx := context.Background()

	var cur, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Acquire(ctx); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&cur, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&cur, -1)
			s.Release()
		}()
	}
	wg.Wait()
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("peak concurrency %d exceeds 2 permits", p)
	}
}

func TestSemaphoreAcquireCancelled(t *testing.T) {
	s := NewSemaphore(1)
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	// The permit must still be usable after the cancelled wait.
	s.Release()
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestSingleFlightCoalesces(t *testing.T) {
	sf := NewSingleFlight()
	ctx := context.Background()

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]interface{}, 4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, _ := sf.Do(ctx, "k", func() (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			close(started)
			<-release
			return "reserves", nil
		})
		results[0] = v
	}()
	<-started

	for i := 1; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _ := sf.Do(ctx, "k", func() (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				return "unexpected", nil
			})
			results[i] = v
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("fn ran %d times, want 1", n)
	}
	for i, v := range results {
		if v != "reserves" {
			t.Errorf("caller %d got %v", i, v)
		}
	}
}

func TestSingleFlightDistinctKeys(t *testing.T) {
	sf := NewSingleFlight()
	ctx := context.Background()
	v1, _ := sf.Do(ctx, "a", func() (interface{}, error) { return 1, nil })
	v2, _ := sf.Do(ctx, "b", func() (interface{}, error) { return 2, nil })
	if v1.(int) != 1 || v2.(int) != 2 {
		t.Errorf("got %v, %v", v1, v2)
	}
}

func TestSingleFlightPropagatesError(t *testing.T) {
	sf := NewSingleFlight()
	want := errors.New("query failed")
	_, err := sf.Do(context.Background(), "k", func() (interface{}, error) { return nil, want })
	if !errors.Is(err, want) {
		t.Errorf("got %v, want %v", err, want)
	}
}
