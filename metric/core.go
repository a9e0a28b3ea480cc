package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all core pipeline metrics (not component-specific)
type Metrics struct {
	// Ingestion metrics
	ItemsAccepted      prometheus.Counter
	ItemsRejected      *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram

	// Broadcast metrics
	BroadcastsSent    prometheus.Counter
	BroadcastErrors   prometheus.Counter
	BroadcastDuration prometheus.Histogram

	// Subscriber metrics
	SubscribersConnected prometheus.Gauge

	// Buffer and queue metrics
	BufferSize prometheus.Gauge
	QueueDepth prometheus.Gauge

	// Backpressure metrics
	MemoryUsageMB      prometheus.Gauge
	BackpressurePaused prometheus.Gauge
	PauseEvents        *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all core pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ItemsAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rtnews",
				Subsystem: "pipeline",
				Name:      "items_accepted_total",
				Help:      "Total number of items accepted by the validator",
			},
		),

		ItemsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rtnews",
				Subsystem: "pipeline",
				Name:      "items_rejected_total",
				Help:      "Total number of items rejected by the validator",
			},
			[]string{"reason"},
		),

		ProcessingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rtnews",
				Subsystem: "pipeline",
				Name:      "processing_duration_seconds",
				Help:      "Time to validate and stamp one item",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.05, 0.1, 0.25},
			},
		),

		BroadcastsSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rtnews",
				Subsystem: "broadcast",
				Name:      "messages_sent_total",
				Help:      "Total messages delivered to subscribers",
			},
		),

		BroadcastErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rtnews",
				Subsystem: "broadcast",
				Name:      "errors_total",
				Help:      "Total failed deliveries to subscribers",
			},
		),

		BroadcastDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rtnews",
				Subsystem: "broadcast",
				Name:      "duration_seconds",
				Help:      "Time to fan one message out to all subscribers",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),

		SubscribersConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rtnews",
				Subsystem: "broadcast",
				Name:      "subscribers_connected",
				Help:      "Number of currently registered subscribers",
			},
		),

		BufferSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rtnews",
				Subsystem: "buffer",
				Name:      "size",
				Help:      "Current number of items in the history buffer",
			},
		),

		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rtnews",
				Subsystem: "backpressure",
				Name:      "queue_depth",
				Help:      "Current admission queue occupancy",
			},
		),

		MemoryUsageMB: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rtnews",
				Subsystem: "backpressure",
				Name:      "memory_usage_mb",
				Help:      "Last sampled process resident memory in MiB",
			},
		),

		BackpressurePaused: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rtnews",
				Subsystem: "backpressure",
				Name:      "paused",
				Help:      "Whether ingestion is paused (0=running, 1=paused)",
			},
		),

		PauseEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rtnews",
				Subsystem: "backpressure",
				Name:      "pause_events_total",
				Help:      "Total transitions into the paused state",
			},
			[]string{"reason"},
		),
	}
}
