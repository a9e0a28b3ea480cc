package processor

import (
	"sync"
	"time"
)

// Window is a bounded rolling window of processing durations. The oldest
// sample is discarded when the window is full. It is shared between the
// processor (validation timings) and the fan-out (broadcast timings), and
// read by the backpressure controller's processing-delay condition.
type Window struct {
	mu      sync.RWMutex
	samples []time.Duration
	next    int
	size    int
}

// NewWindow creates a rolling window holding up to capacity samples
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{samples: make([]time.Duration, capacity)}
}

// Record appends one sample, discarding the oldest when full
func (w *Window) Record(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
	if w.size < len(w.samples) {
		w.size++
	}
}

// Average returns the mean of the current samples, 0 when empty
func (w *Window) Average() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.size == 0 {
		return 0
	}

	var sum time.Duration
	for i := 0; i < w.size; i++ {
		sum += w.samples[i]
	}
	return sum / time.Duration(w.size)
}

// Len returns the current number of samples
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size
}
