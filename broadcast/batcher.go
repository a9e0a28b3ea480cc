package broadcast

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yanzhidev/windsurf-rtnews/errors"
	"github.com/yanzhidev/windsurf-rtnews/item"
)

// Batching defaults: flush when BatchSize items are queued or
// BatchInterval has elapsed since the last flush, whichever comes first.
const (
	DefaultBatchSize     = 5
	DefaultBatchInterval = 200 * time.Millisecond
	DefaultQueueCapacity = 10000
)

// BatcherConfig holds batching parameters
type BatcherConfig struct {
	BatchSize     int
	BatchInterval time.Duration
	QueueCapacity int
}

// DefaultBatcherConfig returns the standard batching parameters
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		BatchSize:     DefaultBatchSize,
		BatchInterval: DefaultBatchInterval,
		QueueCapacity: DefaultQueueCapacity,
	}
}

// Batcher coalesces items into ordered batches to amortize fan-out
// overhead under high item rates. Its bounded queue doubles as the
// admission queue whose occupancy feeds the backpressure controller.
type Batcher struct {
	cfg   BatcherConfig
	mgr   *Manager
	queue chan item.Item

	stop    chan struct{}
	done    chan struct{}
	started atomic.Bool
	dropped atomic.Uint64

	logger *slog.Logger
}

// NewBatcher creates a Batcher flushing into the given manager
func NewBatcher(cfg BatcherConfig, mgr *Manager, logger *slog.Logger) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = DefaultBatchInterval
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{
		cfg:    cfg,
		mgr:    mgr,
		queue:  make(chan item.Item, cfg.QueueCapacity),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start launches the flush loop. Safe to call once.
func (b *Batcher) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Batcher", "Start", "start")
	}
	go b.run(ctx)
	return nil
}

// Enqueue adds one item to the admission queue without blocking. When the
// queue is full the item is dropped and counted; the backpressure
// controller is expected to pause admission well before this point.
func (b *Batcher) Enqueue(it item.Item) error {
	select {
	case b.queue <- it:
		return nil
	default:
		b.dropped.Add(1)
		return errors.WrapTransient(errors.ErrQueueFull, "Batcher", "Enqueue", "enqueue")
	}
}

// Len returns the current admission queue occupancy
func (b *Batcher) Len() int {
	return len(b.queue)
}

// Dropped returns the number of items dropped on a full queue
func (b *Batcher) Dropped() uint64 {
	return b.dropped.Load()
}

// Stop flushes what is queued and stops the loop, waiting up to grace for
// in-flight work to drain.
func (b *Batcher) Stop(grace time.Duration) error {
	if !b.started.Load() {
		return nil
	}
	close(b.stop)

	select {
	case <-b.done:
		return nil
	case <-time.After(grace):
		return errors.WrapTransient(errors.ErrShuttingDown, "Batcher", "Stop", "drain")
	}
}

func (b *Batcher) run(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.BatchInterval)
	defer ticker.Stop()

	batch := make([]item.Item, 0, b.cfg.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		b.flush(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-b.stop:
			// Drain whatever is still queued, then flush once
			for {
				select {
				case it := <-b.queue:
					batch = append(batch, it)
					if len(batch) >= b.cfg.BatchSize {
						b.flush(ctx, batch)
						batch = batch[:0]
					}
				default:
					flush()
					return
				}
			}
		case it := <-b.queue:
			batch = append(batch, it)
			if len(batch) >= b.cfg.BatchSize {
				flush()
				ticker.Reset(b.cfg.BatchInterval)
			}
		case <-ticker.C:
			flush()
		}
	}
}

// flush sends one batch as a single fan-out round. A single item goes as
// a plain news envelope, larger batches as one ordered batch envelope, so
// per-subscriber delivery order is preserved either way.
func (b *Batcher) flush(ctx context.Context, batch []item.Item) {
	var env item.Envelope
	var err error
	if len(batch) == 1 {
		env, err = item.NewsEnvelope(batch[0])
	} else {
		env, err = item.BatchEnvelope(batch)
	}
	if err != nil {
		b.logger.Error("batch encode failed", "size", len(batch), "error", err)
		return
	}
	b.mgr.Broadcast(ctx, env)
}
