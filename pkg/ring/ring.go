// Package ring provides a fixed-capacity, insertion-ordered history buffer
// with FIFO eviction. It backs the recent-items view served to new
// subscribers and the HTTP gateway.
package ring

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Ring is a thread-safe bounded buffer. Append always succeeds; when full,
// the oldest element is evicted. Snapshot returns copies, never references
// into internal storage.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position

	stats *Statistics
	opts  *options[T]
}

// Statistics tracks buffer activity. Always present for observability.
type Statistics struct {
	appends   atomic.Int64
	evictions atomic.Int64
}

// Appends returns the total number of appended elements
func (s *Statistics) Appends() int64 { return s.appends.Load() }

// Evictions returns the total number of elements dropped by capacity pressure
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

type options[T any] struct {
	sizeGauge     prometheus.Gauge
	evictCallback func(T)
}

// Option configures a Ring
type Option[T any] func(*options[T])

// WithSizeGauge exposes the current buffer size as a Prometheus gauge
func WithSizeGauge[T any](g prometheus.Gauge) Option[T] {
	return func(o *options[T]) { o.sizeGauge = g }
}

// WithEvictCallback invokes fn for each element dropped by eviction.
// The callback runs outside the buffer lock.
func WithEvictCallback[T any](fn func(T)) Option[T] {
	return func(o *options[T]) { o.evictCallback = fn }
}

// New creates a Ring with the given capacity. Capacity below 1 is clamped to 1.
func New[T any](capacity int, opts ...Option[T]) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}

	o := &options[T]{}
	for _, opt := range opts {
		opt(o)
	}

	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    &Statistics{},
		opts:     o,
	}
}

// Append adds one element, evicting the oldest when the buffer is full. O(1).
func (r *Ring[T]) Append(v T) {
	var evicted T
	var didEvict bool

	r.mu.Lock()
	if r.size == r.capacity {
		// head points at the oldest slot when full
		evicted = r.items[r.head]
		didEvict = true
		r.stats.evictions.Add(1)
	} else {
		r.size++
	}

	r.items[r.head] = v
	r.head = (r.head + 1) % r.capacity
	r.stats.appends.Add(1)

	size := r.size
	r.mu.Unlock()

	if r.opts.sizeGauge != nil {
		r.opts.sizeGauge.Set(float64(size))
	}
	if didEvict && r.opts.evictCallback != nil {
		r.opts.evictCallback(evicted)
	}
}

// Snapshot returns the most recent min(k, Len()) elements in acceptance
// order. The returned slice is a copy. A non-positive k yields nil.
func (r *Ring[T]) Snapshot(k int) []T {
	if k <= 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := k
	if n > r.size {
		n = r.size
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	// Oldest element lives at head-size (mod capacity); the snapshot wants
	// the newest n, so start n slots back from head.
	start := (r.head - n + r.capacity*2) % r.capacity
	for i := 0; i < n; i++ {
		out[i] = r.items[(start+i)%r.capacity]
	}
	return out
}

// Len returns the current number of buffered elements
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the fixed capacity
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Stats returns the buffer's activity counters
func (r *Ring[T]) Stats() *Statistics {
	return r.stats
}
