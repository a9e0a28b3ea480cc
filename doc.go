// Package rtnews implements a backpressure-protected real-time news
// streaming pipeline: ingestion at a target rate, validation and sequence
// stamping, a bounded recent-history buffer, and concurrent fan-out to
// WebSocket subscribers.
//
// # Pipeline
//
// Raw items flow through a fixed path:
//
//	generator → backpressure gate → processor → {history ring, broadcast}
//
// The backpressure controller pauses ingestion when process memory,
// average processing latency, or admission queue occupancy crosses its
// threshold, and resumes only when all three conditions clear. Slow or
// dead subscribers are evicted after a single failed delivery so one
// consumer can never stall the stream for the others.
//
// # Packages
//
//   - item: typed records and the wire envelope
//   - processor: validation, stamping, rolling statistics
//   - pkg/ring: generic bounded FIFO history buffer
//   - monitor: process memory and latency telemetry
//   - backpressure: the RUNNING/PAUSED state machine
//   - broadcast: subscriber registry, fan-out, and batching
//   - stream: the paced ingestion loop
//   - gateway: HTTP/WebSocket transport adapters
//   - generator: mock news feed
//
// The cmd/rtnews binary wires these together behind a small JSON/env
// configuration surface and serves the HTTP API, Prometheus metrics, and
// the /ws streaming endpoint on one listener.
package rtnews
