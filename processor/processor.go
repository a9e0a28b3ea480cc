// Package processor implements the validator/stamper stage of the rtnews
// pipeline: it checks required fields and serialized size, assigns
// monotonic sequence ids, and tracks processing statistics.
package processor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/yanzhidev/windsurf-rtnews/item"
	"github.com/yanzhidev/windsurf-rtnews/metric"
)

// DefaultMaxItemBytes is the serialized size ceiling for one raw item
const DefaultMaxItemBytes = 100 * 1024

// requiredField pairs a field name with its accessor, checked in order so
// the first missing field names the rejection.
type requiredField struct {
	name string
	get  func(*item.Raw) string
}

var requiredFields = []requiredField{
	{"title", func(r *item.Raw) string { return r.Title }},
	{"source", func(r *item.Raw) string { return r.Source }},
	{"category", func(r *item.Raw) string { return r.Category }},
	{"company", func(r *item.Raw) string { return r.Company }},
}

// Stats is a point-in-time snapshot of processor counters
type Stats struct {
	TotalProcessed      uint64         `json:"total_processed"`
	RejectedCount       uint64         `json:"rejected_count"`
	Categories          map[string]int `json:"categories_distribution"`
	AvgProcessingTimeMs float64        `json:"avg_processing_time_ms"`
}

// Processor validates and stamps raw items. All mutable state lives behind
// a single mutex; sequence ids are single-writer by construction.
type Processor struct {
	mu           sync.Mutex
	seq          uint64
	processed    uint64
	rejected     uint64
	categories   map[string]int
	maxItemBytes int

	window  *Window
	metrics *metric.Metrics // nil when metrics are disabled
}

// Option configures a Processor
type Option func(*Processor)

// WithMaxItemBytes overrides the serialized size ceiling
func WithMaxItemBytes(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxItemBytes = n
		}
	}
}

// WithMetrics wires processor counters into the core pipeline metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// New creates a Processor recording timings into the given rolling window
func New(window *Window, opts ...Option) *Processor {
	p := &Processor{
		categories:   make(map[string]int),
		maxItemBytes: DefaultMaxItemBytes,
		window:       window,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates and stamps one raw item. A nil Rejection means the
// returned Item was accepted. Rejections mutate nothing but the rejection
// counter; acceptance assigns the next sequence id, stamps the receive
// time, updates the category distribution, and records the processing
// duration into the rolling window.
func (p *Processor) Process(raw item.Raw) (item.Item, *item.Rejection) {
	start := time.Now()

	for _, f := range requiredFields {
		if f.get(&raw) == "" {
			p.reject(item.RejectMissingField)
			return item.Item{}, &item.Rejection{Reason: item.RejectMissingField, Field: f.name}
		}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		// Raw is a plain struct; marshal failure is unreachable in
		// practice but treated as a malformed item rather than a fault.
		p.reject(item.RejectMissingField)
		return item.Item{}, &item.Rejection{Reason: item.RejectMissingField}
	}
	if len(data) > p.maxItemBytes {
		p.reject(item.RejectOversize)
		return item.Item{}, &item.Rejection{Reason: item.RejectOversize, SizeBytes: len(data)}
	}

	p.mu.Lock()
	p.seq++
	p.processed++
	p.categories[raw.Category]++
	stamped := item.Item{
		Raw:        raw,
		SequenceID: p.seq,
		ReceivedAt: time.Now(),
		SizeBytes:  len(data),
	}
	p.mu.Unlock()

	elapsed := time.Since(start)
	p.window.Record(elapsed)

	if p.metrics != nil {
		p.metrics.ItemsAccepted.Inc()
		p.metrics.ProcessingDuration.Observe(elapsed.Seconds())
	}

	return stamped, nil
}

func (p *Processor) reject(reason item.RejectReason) {
	p.mu.Lock()
	p.rejected++
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.ItemsRejected.WithLabelValues(string(reason)).Inc()
	}
}

// Stats returns a snapshot of the processor's counters. The category map
// is copied; the average is 0 when the window is empty.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	categories := make(map[string]int, len(p.categories))
	for k, v := range p.categories {
		categories[k] = v
	}
	s := Stats{
		TotalProcessed: p.processed,
		RejectedCount:  p.rejected,
		Categories:     categories,
	}
	p.mu.Unlock()

	s.AvgProcessingTimeMs = float64(p.window.Average()) / float64(time.Millisecond)
	return s
}

// Window returns the shared rolling processing-time window
func (p *Processor) Window() *Window {
	return p.window
}
