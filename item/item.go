// Package item defines the typed records flowing through the rtnews
// pipeline: raw generator output, validated/stamped items, rejection
// outcomes, and the wire envelope sent to subscribers.
package item

import (
	"encoding/json"
	"time"
)

// Raw is one unit of generator output before validation. Field presence is
// enforced by the processor, not by construction.
type Raw struct {
	ID          string  `json:"id"`
	Timestamp   string  `json:"timestamp"`
	Source      string  `json:"source"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	Category    string  `json:"category"`
	Company     string  `json:"company"`
	ImpactScore float64 `json:"impact_score"`
	URL         string  `json:"url"`
}

// Item is a validated, stamped unit of streamed content. Immutable after
// stamping: the pipeline only ever copies it, never mutates it.
type Item struct {
	Raw

	// SequenceID is assigned by the processor; strictly increasing and
	// gap-free over accepted items within a process run.
	SequenceID uint64 `json:"sequence_id"`

	// ReceivedAt is the processor's acceptance timestamp.
	ReceivedAt time.Time `json:"received_at"`

	// SizeBytes is the serialized size measured during validation.
	SizeBytes int `json:"size_bytes"`
}

// RejectReason identifies why a raw item was rejected
type RejectReason string

const (
	// RejectMissingField indicates a required field was absent or empty
	RejectMissingField RejectReason = "missing_field"
	// RejectOversize indicates the serialized item exceeded the size ceiling
	RejectOversize RejectReason = "oversize"
)

// Rejection is the non-fatal outcome for a malformed or oversize raw item
type Rejection struct {
	Reason RejectReason `json:"reason"`
	// Field is the offending field name for missing-field rejections
	Field string `json:"field,omitempty"`
	// SizeBytes is the measured size for oversize rejections
	SizeBytes int `json:"size_bytes,omitempty"`
}

// Envelope message types
const (
	TypeNews       = "news"
	TypeNewsBatch  = "news_batch"
	TypeStatistics = "statistics"
)

// Envelope wraps all subscriber-bound messages with type discrimination.
// Supported types: "news", "news_batch", "statistics".
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewsEnvelope builds the wire form of a single item
func NewsEnvelope(it Item) (Envelope, error) {
	data, err := json.Marshal(it)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: TypeNews, Data: data}, nil
}

// BatchEnvelope builds the wire form of an ordered item batch
func BatchEnvelope(items []Item) (Envelope, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: TypeNewsBatch, Data: data}, nil
}

// StatsEnvelope builds the wire form of a statistics snapshot
func StatsEnvelope(snapshot any) (Envelope, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: TypeStatistics, Data: data}, nil
}

// Encode serializes the envelope for transmission
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
