package broadcast

import "context"

// Subscriber is one live delivery sink, typically a WebSocket connection.
// Send must be safe for sequential use by the fan-out and should honor the
// context deadline; the fan-out additionally enforces its own per-attempt
// timeout. A Subscriber whose Send fails once is unregistered and Closed,
// never retried.
type Subscriber interface {
	// ID returns the unique handle for this sink
	ID() string

	// Send delivers one encoded envelope
	Send(ctx context.Context, payload []byte) error

	// Close releases the underlying connection. Must be idempotent.
	Close() error
}
