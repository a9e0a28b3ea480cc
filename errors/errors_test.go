package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.class.String())
	}
}

func TestWrapPattern(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "Processor", "Process", "stamp item")
	require.Error(t, err)
	assert.Equal(t, "Processor.Process: stamp item failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))

	assert.Nil(t, Wrap(nil, "Processor", "Process", "stamp item"))
}

func TestClassifiedWrapping(t *testing.T) {
	base := errors.New("underlying")

	transient := WrapTransient(base, "Fanout", "Broadcast", "send")
	invalid := WrapInvalid(base, "Processor", "Process", "validate")
	fatal := WrapFatal(base, "Config", "Load", "parse")

	assert.True(t, IsTransient(transient))
	assert.False(t, IsInvalid(transient))
	assert.True(t, IsInvalid(invalid))
	assert.True(t, IsFatal(fatal))

	var ce *ClassifiedError
	require.True(t, errors.As(transient, &ce))
	assert.Equal(t, "Fanout", ce.Component)
	assert.Equal(t, "Broadcast", ce.Operation)
	assert.True(t, errors.Is(transient, base))
}

func TestSentinelClassification(t *testing.T) {
	assert.True(t, IsInvalid(ErrMissingField))
	assert.True(t, IsInvalid(ErrOversizeItem))
	assert.True(t, IsTransient(ErrSendTimeout))
	assert.True(t, IsTransient(ErrQueueFull))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsFatal(ErrInvalidConfig))

	// Wrapped sentinels keep their classification through %w
	wrapped := fmt.Errorf("while broadcasting: %w", ErrSendTimeout)
	assert.True(t, IsTransient(wrapped))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(ErrMissingField))
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
	assert.Equal(t, ErrorTransient, Classify(errors.New("some unknown error")))
	assert.Equal(t, ErrorTransient, Classify(nil))
}

func TestNilSafety(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsFatal(nil))
	assert.False(t, IsInvalid(nil))
	assert.Nil(t, WrapTransient(nil, "c", "m", "a"))
	assert.Nil(t, WrapInvalid(nil, "c", "m", "a"))
	assert.Nil(t, WrapFatal(nil, "c", "m", "a"))
}
