// Package monitor samples process resource telemetry for the backpressure
// controller: resident memory and the rolling average processing latency.
package monitor

import (
	"log/slog"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/yanzhidev/windsurf-rtnews/metric"
	"github.com/yanzhidev/windsurf-rtnews/processor"
)

// DefaultMinSamples is the minimum rolling-window population before the
// latency reading is considered meaningful. Below it the monitor reports 0
// to avoid reacting to cold-start noise.
const DefaultMinSamples = 10

// Sampler reads the current process resident memory in MiB
type Sampler func() (float64, error)

// Monitor provides memory and latency telemetry. Memory reads that fail
// fall back to the previous known-good sample; telemetry never raises to
// the caller.
type Monitor struct {
	mu         sync.Mutex
	sample     Sampler
	lastGoodMB float64

	window     *processor.Window
	minSamples int

	logger  *slog.Logger
	metrics *metric.Metrics // nil when metrics are disabled
}

// Option configures a Monitor
type Option func(*Monitor)

// WithSampler overrides the memory sampler (used in tests)
func WithSampler(s Sampler) Option {
	return func(m *Monitor) { m.sample = s }
}

// WithMinSamples overrides the latency minimum sample gate
func WithMinSamples(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.minSamples = n
		}
	}
}

// WithMetrics publishes the sampled memory as a gauge
func WithMetrics(mm *metric.Metrics) Option {
	return func(m *Monitor) { m.metrics = mm }
}

// New creates a Monitor reading latency from the given rolling window
func New(window *processor.Window, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		sample:     rssSampler(),
		window:     window,
		minSamples: DefaultMinSamples,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// rssSampler builds the default sampler reading this process's RSS
func rssSampler() Sampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		// Leave the failure to surface per-sample so MemoryMB can fall
		// back to the last known-good reading.
		return func() (float64, error) { return 0, err }
	}
	return func() (float64, error) {
		info, err := proc.MemoryInfo()
		if err != nil {
			return 0, err
		}
		return float64(info.RSS) / 1024 / 1024, nil
	}
}

// MemoryMB returns the current process resident memory in MiB. On a read
// failure it logs a warning and returns the previous known-good sample
// (0 until a first successful read).
func (m *Monitor) MemoryMB() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	mb, err := m.sample()
	if err != nil {
		m.logger.Warn("memory sample failed, using last known value",
			"error", err, "last_mb", m.lastGoodMB)
		return m.lastGoodMB
	}

	m.lastGoodMB = mb
	if m.metrics != nil {
		m.metrics.MemoryUsageMB.Set(mb)
	}
	return mb
}

// AvgLatencySeconds returns the rolling average processing latency in
// seconds, or 0 while fewer than the minimum sample count is available.
func (m *Monitor) AvgLatencySeconds() float64 {
	if m.window.Len() < m.minSamples {
		return 0
	}
	return m.window.Average().Seconds()
}
