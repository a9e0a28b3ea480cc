// Package backpressure implements the pause/resume flow-control state
// machine protecting the rtnews pipeline from memory growth, processing
// delay, and admission queue saturation.
package backpressure

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/yanzhidev/windsurf-rtnews/metric"
	"github.com/yanzhidev/windsurf-rtnews/processor"
)

// Pause reasons, reported in fixed priority order: memory first, then
// processing delay, then queue occupancy.
const (
	ReasonMemory = "memory usage too high"
	ReasonDelay  = "processing delay too high"
	ReasonQueue  = "queue nearly full"
)

// Default thresholds
const (
	DefaultMaxMemoryMB    = 200.0
	DefaultDelayThreshold = 100 * time.Millisecond
	DefaultQueueCapacity  = 10000
	DefaultQueueHighWater = 0.8
	DefaultCheckInterval  = 100 * time.Millisecond
)

// Telemetry supplies the resource signals the controller evaluates.
// Implementations must degrade gracefully: a reading that cannot be taken
// is reported as a non-triggering value, never as an error.
type Telemetry interface {
	MemoryMB() float64
	AvgLatencySeconds() float64
}

// Config holds the controller thresholds
type Config struct {
	MaxMemoryMB    float64
	DelayThreshold time.Duration
	QueueCapacity  int
	QueueHighWater float64
	CheckInterval  time.Duration
}

// DefaultConfig returns the standard protection thresholds
func DefaultConfig() Config {
	return Config{
		MaxMemoryMB:    DefaultMaxMemoryMB,
		DelayThreshold: DefaultDelayThreshold,
		QueueCapacity:  DefaultQueueCapacity,
		QueueHighWater: DefaultQueueHighWater,
		CheckInterval:  DefaultCheckInterval,
	}
}

// Stats is a read-only view of the controller state
type Stats struct {
	QueueSize           int     `json:"queue_size"`
	IsPaused            bool    `json:"is_paused"`
	PauseReason         string  `json:"pause_reason,omitempty"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	PauseEvents         uint64  `json:"backpressure_events"`
	MemoryPauses        uint64  `json:"memory_protection_triggers"`
}

// Controller owns the RUNNING/PAUSED status. No other component sets the
// status; the ingestion loop observes it and blocks in AwaitResume.
type Controller struct {
	cfg       Config
	telemetry Telemetry
	window    *processor.Window
	queueLen  func() int

	mu           sync.Mutex
	paused       bool
	reason       string
	pauseEvents  uint64
	memoryPauses uint64

	logger  *slog.Logger
	metrics *metric.Metrics // nil when metrics are disabled
}

// Option configures a Controller
type Option func(*Controller)

// WithQueueLen supplies the admission queue depth probe. Without it the
// queue condition never triggers.
func WithQueueLen(fn func() int) Option {
	return func(c *Controller) { c.queueLen = fn }
}

// WithMetrics wires controller state into the core pipeline metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a Controller in the RUNNING state
func New(cfg Config, telemetry Telemetry, window *processor.Window, logger *slog.Logger, opts ...Option) *Controller {
	if cfg.MaxMemoryMB <= 0 {
		cfg.MaxMemoryMB = DefaultMaxMemoryMB
	}
	if cfg.DelayThreshold <= 0 {
		cfg.DelayThreshold = DefaultDelayThreshold
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.QueueHighWater <= 0 || cfg.QueueHighWater > 1 {
		cfg.QueueHighWater = DefaultQueueHighWater
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		cfg:       cfg,
		telemetry: telemetry,
		window:    window,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShouldPause evaluates the three pause conditions in fixed priority
// order and returns the first triggering reason. A telemetry source that
// is absent or failing counts as not triggering for its condition only.
func (c *Controller) ShouldPause() (bool, string) {
	if c.telemetry != nil {
		if mb := c.telemetry.MemoryMB(); mb > c.cfg.MaxMemoryMB {
			return true, ReasonMemory
		}
		if lat := c.telemetry.AvgLatencySeconds(); lat > c.cfg.DelayThreshold.Seconds() {
			return true, ReasonDelay
		}
	}

	if c.queueLen != nil {
		qlen := c.queueLen()
		if c.metrics != nil {
			c.metrics.QueueDepth.Set(float64(qlen))
		}
		highWater := int(float64(c.cfg.QueueCapacity) * c.cfg.QueueHighWater)
		if qlen > highWater {
			return true, ReasonQueue
		}
	}

	return false, ""
}

// Pause transitions RUNNING→PAUSED with the given reason. Idempotent: a
// second Pause while already paused keeps the original reason. A
// memory-reason pause additionally requests best-effort memory
// reclamation; correctness does not depend on it.
func (c *Controller) Pause(reason string) {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = true
	c.reason = reason
	c.pauseEvents++
	if reason == ReasonMemory {
		c.memoryPauses++
	}
	c.mu.Unlock()

	c.logger.Warn("ingestion paused", "reason", reason)
	if c.metrics != nil {
		c.metrics.BackpressurePaused.Set(1)
		c.metrics.PauseEvents.WithLabelValues(reason).Inc()
	}

	if reason == ReasonMemory {
		runtime.GC()
		debug.FreeOSMemory()
	}
}

// Resume transitions PAUSED→RUNNING. Idempotent.
func (c *Controller) Resume() {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = false
	c.reason = ""
	c.mu.Unlock()

	c.logger.Info("ingestion resumed")
	if c.metrics != nil {
		c.metrics.BackpressurePaused.Set(0)
	}
}

// IsPaused reports the current status
func (c *Controller) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// PauseReason returns the active pause reason, "" while running
func (c *Controller) PauseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// AwaitResume blocks while the controller is paused, re-evaluating the
// pause conditions every CheckInterval. When all conditions clear it
// performs the PAUSED→RUNNING transition and returns nil. Returns the
// context error if ctx is cancelled first.
func (c *Controller) AwaitResume(ctx context.Context) error {
	if !c.IsPaused() {
		return nil
	}

	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if pause, _ := c.ShouldPause(); !pause {
				c.Resume()
				return nil
			}
		}
	}
}

// RecordProcessingTime appends a duration to the shared rolling window.
// Broadcast fan-out durations feed the processing-delay condition through
// this path.
func (c *Controller) RecordProcessingTime(d time.Duration) {
	c.window.Record(d)
}

// Stats returns a snapshot of the controller state
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		IsPaused:     c.paused,
		PauseReason:  c.reason,
		PauseEvents:  c.pauseEvents,
		MemoryPauses: c.memoryPauses,
	}
	c.mu.Unlock()

	if c.queueLen != nil {
		s.QueueSize = c.queueLen()
	}
	s.AvgProcessingTimeMs = float64(c.window.Average()) / float64(time.Millisecond)
	return s
}
