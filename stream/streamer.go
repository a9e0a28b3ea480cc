// Package stream drives the ingestion loop: it pulls raw items from a
// generator at a fixed rate, runs them through validation, records them in
// the recent-history buffer, and hands accepted items to broadcast. The
// loop honors the backpressure controller: while paused it generates
// nothing and blocks until the controller resumes.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yanzhidev/windsurf-rtnews/backpressure"
	"github.com/yanzhidev/windsurf-rtnews/broadcast"
	"github.com/yanzhidev/windsurf-rtnews/errors"
	"github.com/yanzhidev/windsurf-rtnews/generator"
	"github.com/yanzhidev/windsurf-rtnews/item"
	"github.com/yanzhidev/windsurf-rtnews/monitor"
	"github.com/yanzhidev/windsurf-rtnews/processor"
	"github.com/yanzhidev/windsurf-rtnews/pkg/ring"
)

// Config controls the ingestion loop's pacing and reporting cadence.
type Config struct {
	Rate                int           // items generated per second
	Duration            time.Duration // 0 runs until stopped
	StatsInterval       int           // accepted items between stats broadcasts
	MemoryCheckInterval int           // ticks between memory probes
}

// DefaultConfig returns the production pacing defaults.
func DefaultConfig() Config {
	return Config{
		Rate:                10,
		Duration:            0,
		StatsInterval:       100,
		MemoryCheckInterval: 5,
	}
}

// Snapshot is the aggregate statistics view served over HTTP and pushed
// to subscribers as a statistics envelope.
type Snapshot struct {
	TotalProcessed           uint64         `json:"total_processed"`
	RejectedCount            uint64         `json:"rejected_count"`
	CategoriesDistribution   map[string]int `json:"categories_distribution"`
	AvgProcessingTimeMs      float64        `json:"avg_processing_time_ms"`
	ActiveConnections        int            `json:"active_connections"`
	TotalSent                uint64         `json:"total_sent"`
	TotalErrors              uint64         `json:"total_errors"`
	UptimeSeconds            float64        `json:"uptime_seconds"`
	QueueSize                int            `json:"queue_size"`
	IsPaused                 bool           `json:"is_paused"`
	PauseReason              string         `json:"pause_reason,omitempty"`
	BackpressureEvents       uint64         `json:"backpressure_events"`
	MemoryProtectionTriggers uint64         `json:"memory_protection_triggers"`
	BufferSize               int            `json:"buffer_size"`
	MemoryUsageMB            float64        `json:"memory_usage_mb"`
	ItemsPerSecond           int            `json:"items_per_second"`
}

// Streamer runs the ingestion loop. Create with New, then Start/Stop.
type Streamer struct {
	cfg     Config
	gen     generator.Generator
	proc    *processor.Processor
	history *ring.Ring[item.Item]
	ctrl    *backpressure.Controller
	mon     *monitor.Monitor
	mgr     *broadcast.Manager
	logger  *slog.Logger

	batcher *broadcast.Batcher // nil in direct-broadcast mode

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	start    time.Time
	accepted uint64
}

// Option configures a Streamer
type Option func(*Streamer)

// WithBatcher routes accepted items through the batcher instead of
// broadcasting each item individually.
func WithBatcher(b *broadcast.Batcher) Option {
	return func(s *Streamer) { s.batcher = b }
}

// New creates a Streamer. The generator, processor, history ring,
// controller, monitor, and manager are required.
func New(cfg Config, gen generator.Generator, proc *processor.Processor,
	history *ring.Ring[item.Item], ctrl *backpressure.Controller,
	mon *monitor.Monitor, mgr *broadcast.Manager, logger *slog.Logger,
	opts ...Option) *Streamer {

	def := DefaultConfig()
	if cfg.Rate <= 0 {
		cfg.Rate = def.Rate
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = def.StatsInterval
	}
	if cfg.MemoryCheckInterval <= 0 {
		cfg.MemoryCheckInterval = def.MemoryCheckInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Streamer{
		cfg:     cfg,
		gen:     gen,
		proc:    proc,
		history: history,
		ctrl:    ctrl,
		mon:     mon,
		mgr:     mgr,
		logger:  logger.With("component", "streamer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the ingestion loop in a goroutine.
func (s *Streamer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.Wrap(errors.ErrAlreadyStarted, "Streamer", "Start", "start")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true
	s.start = time.Now()

	go s.run(runCtx)

	s.logger.Info("streamer started",
		"rate", s.cfg.Rate,
		"duration", s.cfg.Duration,
		"batching", s.batcher != nil)
	return nil
}

// Stop cancels the loop and waits up to grace for it to exit.
func (s *Streamer) Stop(grace time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.Wrap(errors.ErrNotStarted, "Streamer", "Stop", "stop")
	}
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return errors.WrapTransient(errors.ErrShuttingDown, "Streamer", "Stop", "await loop exit")
	}
}

// run paces generation at Rate items per tick, one tick per second. A
// tick that overruns its second is not caught up; the loop just starts
// the next tick immediately.
func (s *Streamer) run(ctx context.Context) {
	defer close(s.done)

	tick := 0
	for {
		if s.cfg.Duration > 0 && time.Since(s.start) >= s.cfg.Duration {
			s.logSummary("duration elapsed")
			return
		}

		tickStart := time.Now()
		tick++

		if tick%s.cfg.MemoryCheckInterval == 0 {
			s.logger.Debug("memory probe", "memory_mb", s.mon.MemoryMB())
		}

		if pause, reason := s.ctrl.ShouldPause(); pause {
			s.ctrl.Pause(reason)
		}
		if s.ctrl.IsPaused() {
			if err := s.ctrl.AwaitResume(ctx); err != nil {
				s.logSummary("cancelled while paused")
				return
			}
		}

		for i := 0; i < s.cfg.Rate; i++ {
			if ctx.Err() != nil {
				s.logSummary("cancelled")
				return
			}
			s.emitOne(ctx)
		}

		if remaining := time.Second - time.Since(tickStart); remaining > 0 {
			select {
			case <-ctx.Done():
				s.logSummary("cancelled")
				return
			case <-time.After(remaining):
			}
		}
	}
}

// emitOne generates, validates, records, and dispatches a single item.
func (s *Streamer) emitOne(ctx context.Context) {
	raw := s.gen.Next()

	it, rej := s.proc.Process(raw)
	if rej != nil {
		s.logger.Debug("item rejected", "reason", rej.Reason, "field", rej.Field)
		return
	}

	s.history.Append(it)

	if s.batcher != nil {
		if err := s.batcher.Enqueue(it); err != nil {
			s.logger.Warn("item dropped", "sequence_id", it.SequenceID, "error", err)
		}
	} else {
		env, err := item.NewsEnvelope(it)
		if err != nil {
			s.logger.Error("failed to encode item", "sequence_id", it.SequenceID, "error", err)
			return
		}
		s.mgr.Broadcast(ctx, env)
	}

	s.mu.Lock()
	s.accepted++
	n := s.accepted
	s.mu.Unlock()

	if n%uint64(s.cfg.StatsInterval) == 0 {
		s.mgr.BroadcastStats(ctx, s.Snapshot())
		s.logger.Info("progress", "accepted", n, "connections", s.mgr.ActiveCount())
	}
}

// Snapshot assembles the aggregate statistics view from every component.
func (s *Streamer) Snapshot() Snapshot {
	ps := s.proc.Stats()
	bs := s.mgr.Stats()
	cs := s.ctrl.Stats()

	return Snapshot{
		TotalProcessed:           ps.TotalProcessed,
		RejectedCount:            ps.RejectedCount,
		CategoriesDistribution:   ps.Categories,
		AvgProcessingTimeMs:      ps.AvgProcessingTimeMs,
		ActiveConnections:        bs.ActiveConnections,
		TotalSent:                bs.TotalSent,
		TotalErrors:              bs.TotalErrors,
		UptimeSeconds:            bs.UptimeSeconds,
		QueueSize:                cs.QueueSize,
		IsPaused:                 cs.IsPaused,
		PauseReason:              cs.PauseReason,
		BackpressureEvents:       cs.PauseEvents,
		MemoryProtectionTriggers: cs.MemoryPauses,
		BufferSize:               s.history.Len(),
		MemoryUsageMB:            s.mon.MemoryMB(),
		ItemsPerSecond:           s.cfg.Rate,
	}
}

// Recent returns up to k most recent accepted items, oldest first.
func (s *Streamer) Recent(k int) []item.Item {
	return s.history.Snapshot(k)
}

func (s *Streamer) logSummary(cause string) {
	s.mu.Lock()
	accepted := s.accepted
	s.mu.Unlock()

	ps := s.proc.Stats()
	s.logger.Info("streamer stopped",
		"cause", cause,
		"accepted", accepted,
		"rejected", ps.RejectedCount,
		"elapsed", time.Since(s.start).Round(time.Millisecond))
}
