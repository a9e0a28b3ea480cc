// Package broadcast implements the subscriber registry and the concurrent
// fan-out that delivers items and statistics snapshots to every live
// subscriber, isolating per-subscriber failures.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanzhidev/windsurf-rtnews/errors"
	"github.com/yanzhidev/windsurf-rtnews/item"
	"github.com/yanzhidev/windsurf-rtnews/metric"
)

// DefaultSendTimeout bounds one delivery attempt to one subscriber
const DefaultSendTimeout = 5 * time.Second

// DeliveryReport summarizes one fan-out round
type DeliveryReport struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Stats is a snapshot of cumulative broadcast counters
type Stats struct {
	ActiveConnections int     `json:"active_connections"`
	TotalSent         uint64  `json:"total_sent"`
	TotalErrors       uint64  `json:"total_errors"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// Manager owns the live subscriber set and performs broadcasts. A failed
// delivery evicts the subscriber after exactly one attempt.
type Manager struct {
	mu   sync.RWMutex
	subs map[string]Subscriber

	sendTimeout time.Duration
	totalSent   atomic.Uint64
	totalErrors atomic.Uint64
	startTime   time.Time

	// recordDuration feeds fan-out latency into the backpressure
	// controller's rolling window; nil disables the feedback.
	recordDuration func(time.Duration)

	logger  *slog.Logger
	metrics *metric.Metrics // nil when metrics are disabled
}

// Option configures a Manager
type Option func(*Manager)

// WithSendTimeout overrides the per-subscriber delivery timeout
func WithSendTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sendTimeout = d
		}
	}
}

// WithDurationSink records each broadcast round's duration, typically into
// the backpressure controller's rolling window
func WithDurationSink(fn func(time.Duration)) Option {
	return func(m *Manager) { m.recordDuration = fn }
}

// WithMetrics wires broadcast counters into the core pipeline metrics
func WithMetrics(mm *metric.Metrics) Option {
	return func(m *Manager) { m.metrics = mm }
}

// NewManager creates an empty subscriber registry
func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		subs:        make(map[string]Subscriber),
		sendTimeout: DefaultSendTimeout,
		startTime:   time.Now(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a subscriber to the live set. Registering an
// already-registered handle is a no-op.
func (m *Manager) Register(sub Subscriber) {
	m.mu.Lock()
	if _, exists := m.subs[sub.ID()]; exists {
		m.mu.Unlock()
		return
	}
	m.subs[sub.ID()] = sub
	count := len(m.subs)
	m.mu.Unlock()

	m.logger.Info("subscriber registered", "id", sub.ID(), "active", count)
	if m.metrics != nil {
		m.metrics.SubscribersConnected.Set(float64(count))
	}
}

// Unregister removes a subscriber and closes it. Unknown handles are a
// no-op; a removed subscriber is never reinserted by the manager.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	sub, exists := m.subs[id]
	if exists {
		delete(m.subs, id)
	}
	count := len(m.subs)
	m.mu.Unlock()

	if !exists {
		return
	}

	_ = sub.Close()
	m.logger.Info("subscriber removed", "id", id, "active", count)
	if m.metrics != nil {
		m.metrics.SubscribersConnected.Set(float64(count))
	}
}

// ActiveCount returns the current number of registered subscribers
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// snapshot returns the current subscriber set for one fan-out round
func (m *Manager) snapshot() []Subscriber {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subs := make([]Subscriber, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	return subs
}

// Broadcast delivers one envelope to every registered subscriber
// concurrently. No subscriber's slowness or failure blocks delivery to
// another; a failing subscriber is evicted after its single attempt.
func (m *Manager) Broadcast(ctx context.Context, env item.Envelope) DeliveryReport {
	payload, err := env.Encode()
	if err != nil {
		m.logger.Error("envelope encode failed", "type", env.Type, "error", err)
		return DeliveryReport{}
	}
	return m.fanOut(ctx, [][]byte{payload})
}

// BroadcastBatch delivers an ordered set of payloads as one fan-out round.
// Each subscriber receives the payloads sequentially in order; rounds for
// different subscribers run concurrently.
func (m *Manager) BroadcastBatch(ctx context.Context, payloads [][]byte) DeliveryReport {
	return m.fanOut(ctx, payloads)
}

// BroadcastStats pushes a statistics snapshot with the same delivery
// mechanics as Broadcast.
func (m *Manager) BroadcastStats(ctx context.Context, snapshot any) DeliveryReport {
	env, err := item.StatsEnvelope(snapshot)
	if err != nil {
		m.logger.Error("stats envelope encode failed", "error", err)
		return DeliveryReport{}
	}
	return m.Broadcast(ctx, env)
}

func (m *Manager) fanOut(ctx context.Context, payloads [][]byte) DeliveryReport {
	subs := m.snapshot()
	if len(subs) == 0 || len(payloads) == 0 {
		return DeliveryReport{}
	}

	start := time.Now()

	var succeeded, failed atomic.Int64
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub Subscriber) {
			defer wg.Done()
			ok, bad := m.deliverTo(ctx, sub, payloads)
			succeeded.Add(int64(ok))
			failed.Add(int64(bad))
		}(sub)
	}
	wg.Wait()

	elapsed := time.Since(start)
	if m.recordDuration != nil {
		m.recordDuration(elapsed)
	}

	report := DeliveryReport{
		Attempted: len(subs) * len(payloads),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}

	m.totalSent.Add(uint64(report.Succeeded))
	m.totalErrors.Add(uint64(report.Failed))
	if m.metrics != nil {
		m.metrics.BroadcastsSent.Add(float64(report.Succeeded))
		m.metrics.BroadcastErrors.Add(float64(report.Failed))
		m.metrics.BroadcastDuration.Observe(elapsed.Seconds())
	}

	if report.Failed > 0 {
		m.logger.Debug("broadcast round completed with failures",
			"attempted", report.Attempted, "failed", report.Failed,
			"duration", elapsed)
	}

	return report
}

// deliverTo sends the round's payloads to one subscriber in order. The
// first failure evicts the subscriber; its remaining payloads count as
// failed.
func (m *Manager) deliverTo(ctx context.Context, sub Subscriber, payloads [][]byte) (succeeded, failed int) {
	for i, payload := range payloads {
		if err := m.sendWithTimeout(ctx, sub, payload); err != nil {
			m.logger.Warn("delivery failed, evicting subscriber",
				"id", sub.ID(), "error", err)
			m.Unregister(sub.ID())
			return i, len(payloads) - i
		}
	}
	return len(payloads), 0
}

// sendWithTimeout bounds one delivery attempt. A sink that ignores its
// context cannot block the round: the attempt is abandoned at the
// deadline and reported as failed.
func (m *Manager) sendWithTimeout(ctx context.Context, sub Subscriber, payload []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sub.Send(sendCtx, payload)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.WrapTransient(err, "Manager", "sendWithTimeout", "send")
		}
		return nil
	case <-sendCtx.Done():
		return errors.WrapTransient(errors.ErrSendTimeout, "Manager", "sendWithTimeout", "send")
	}
}

// CloseAll unregisters and closes every subscriber, used during shutdown
func (m *Manager) CloseAll() {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string]Subscriber)
	m.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	if m.metrics != nil {
		m.metrics.SubscribersConnected.Set(0)
	}
}

// Stats returns the cumulative broadcast counters
func (m *Manager) Stats() Stats {
	return Stats{
		ActiveConnections: m.ActiveCount(),
		TotalSent:         m.totalSent.Load(),
		TotalErrors:       m.totalErrors.Load(),
		UptimeSeconds:     time.Since(m.startTime).Seconds(),
	}
}
