// Package syncutil holds the small concurrency primitives shared by the
// ingestion and pricing loops: a TTL cache, a counting semaphore with FIFO
// waiters, and a single-flight map for coalescing identical in-flight calls.
package syncutil

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type ttlEntry struct {
	key     string
	value   interface{}
	expires time.Time
}

// TTLCache is an insertion-ordered key -> (value, expiry) cache. Expired
// entries are evicted on access; when the size exceeds max, the oldest
// half is dropped.
type TTLCache struct {
	mu    sync.Mutex
	max   int
	order *list.List
	items map[string]*list.Element
}

func NewTTLCache(max int) *TTLCache {
	if max <= 0 {
		max = 256
	}
	return &TTLCache{
		max:   max,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the cached value for key, evicting it first if expired.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*ttlEntry)
	if time.Now().After(entry.expires) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key for ttl. Re-setting a key refreshes its
// insertion position.
func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
	el := c.order.PushBack(&ttlEntry{key: key, value: value, expires: time.Now().Add(ttl)})
	c.items[key] = el
	if len(c.items) > c.max {
		drop := len(c.items) / 2
		for i := 0; i < drop; i++ {
			front := c.order.Front()
			if front == nil {
				break
			}
			c.order.Remove(front)
			delete(c.items, front.Value.(*ttlEntry).key)
		}
	}
}

// Len returns the number of entries including any not-yet-evicted expired
// ones.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Semaphore is a counting semaphore with FIFO waiters.
type Semaphore struct {
	mu      sync.Mutex
	permits int
	waiters *list.List // of chan struct{}
}

func NewSemaphore(permits int) *Semaphore {
	if permits <= 0 {
		permits = 1
	}
	return &Semaphore{permits: permits, waiters: list.New()}
}

// Acquire takes one permit, blocking in FIFO order until one is free or
// ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.permits > 0 && s.waiters.Len() == 0 {
		s.permits--
		s.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	el := s.waiters.PushBack(ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-ready:
			// Permit was handed over concurrently with cancellation;
			// give it back.
			s.releaseLocked()
		default:
			s.waiters.Remove(el)
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// Release returns one permit, waking the oldest waiter if any.
func (s *Semaphore) Release() {
	s.mu.Lock()
	s.releaseLocked()
	s.mu.Unlock()
}

func (s *Semaphore) releaseLocked() {
	if front := s.waiters.Front(); front != nil {
		s.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	s.permits++
}

type flightResult struct {
	value interface{}
	err   error
}

type flight struct {
	done chan struct{}
	res  flightResult
}

// SingleFlight coalesces concurrent calls for the same key: the first
// caller runs fn, later callers for that key wait for its result.
type SingleFlight struct {
	mu      sync.Mutex
	flights map[string]*flight
}

func NewSingleFlight() *SingleFlight {
	return &SingleFlight{flights: make(map[string]*flight)}
}

// Do runs fn for key unless a call for key is already in flight, in which
// case it waits for and returns that call's result.
func (s *SingleFlight) Do(ctx context.Context, key string, fn func() (interface{}, error)) (interface{}, error) {
	s.mu.Lock()
	if f, ok := s.flights[key]; ok {
		s.mu.Unlock()
		select {
		case <-f.done:
			return f.res.value, f.res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	s.flights[key] = f
	s.mu.Unlock()

	f.res.value, f.res.err = fn()

	s.mu.Lock()
	delete(s.flights, key)
	s.mu.Unlock()
	close(f.done)

	return f.res.value, f.res.err
}
