package backpressure

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanzhidev/windsurf-rtnews/processor"
)

// stubTelemetry returns fixed readings, adjustable under a mutex so tests
// can clear a condition while AwaitResume polls.
type stubTelemetry struct {
	mu       sync.Mutex
	memoryMB float64
	latency  float64
}

func (s *stubTelemetry) MemoryMB() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memoryMB
}

func (s *stubTelemetry) AvgLatencySeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency
}

func (s *stubTelemetry) set(memoryMB, latency float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memoryMB = memoryMB
	s.latency = latency
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestController(tel Telemetry, opts ...Option) *Controller {
	return New(DefaultConfig(), tel, processor.NewWindow(100), testLogger(), opts...)
}

func TestInitialStateRunning(t *testing.T) {
	c := newTestController(&stubTelemetry{})
	assert.False(t, c.IsPaused())
	assert.Empty(t, c.PauseReason())
}

func TestShouldPauseMemory(t *testing.T) {
	tel := &stubTelemetry{memoryMB: 250}
	c := newTestController(tel)

	pause, reason := c.ShouldPause()
	require.True(t, pause)
	assert.Equal(t, ReasonMemory, reason)
}

func TestShouldPauseProcessingDelay(t *testing.T) {
	// Ten synthetic samples averaging 150ms against a 100ms threshold
	w := processor.NewWindow(100)
	for i := 0; i < 10; i++ {
		w.Record(150 * time.Millisecond)
	}
	tel := &stubTelemetry{latency: w.Average().Seconds()}
	c := New(DefaultConfig(), tel, w, testLogger())

	pause, reason := c.ShouldPause()
	require.True(t, pause)
	assert.Equal(t, ReasonDelay, reason)
}

func TestShouldPauseQueueNearlyFull(t *testing.T) {
	depth := 0
	c := newTestController(&stubTelemetry{}, WithQueueLen(func() int { return depth }))

	depth = 8000 // exactly the 80% high water, not over
	pause, _ := c.ShouldPause()
	assert.False(t, pause)

	depth = 8001
	pause, reason := c.ShouldPause()
	require.True(t, pause)
	assert.Equal(t, ReasonQueue, reason)
}

func TestPauseConditionPriority(t *testing.T) {
	// All three conditions hold; memory wins, then delay, then queue
	tel := &stubTelemetry{memoryMB: 500, latency: 0.5}
	c := newTestController(tel, WithQueueLen(func() int { return 9999 }))

	_, reason := c.ShouldPause()
	assert.Equal(t, ReasonMemory, reason)

	tel.set(10, 0.5)
	_, reason = c.ShouldPause()
	assert.Equal(t, ReasonDelay, reason)

	tel.set(10, 0)
	_, reason = c.ShouldPause()
	assert.Equal(t, ReasonQueue, reason)
}

func TestMissingTelemetryDoesNotTrigger(t *testing.T) {
	c := New(DefaultConfig(), nil, processor.NewWindow(100), testLogger())
	pause, reason := c.ShouldPause()
	assert.False(t, pause)
	assert.Empty(t, reason)
}

func TestPauseResumeStateMachine(t *testing.T) {
	c := newTestController(&stubTelemetry{})

	c.Pause(ReasonMemory)
	assert.True(t, c.IsPaused())
	assert.Equal(t, ReasonMemory, c.PauseReason())

	// Second pause keeps the original reason
	c.Pause(ReasonQueue)
	assert.Equal(t, ReasonMemory, c.PauseReason())

	c.Resume()
	assert.False(t, c.IsPaused())
	assert.Empty(t, c.PauseReason())

	// Resume while running is a no-op
	c.Resume()
	assert.False(t, c.IsPaused())
}

func TestPauseReasonNonEmptyIffPaused(t *testing.T) {
	c := newTestController(&stubTelemetry{})

	assert.Empty(t, c.PauseReason())
	c.Pause(ReasonDelay)
	assert.NotEmpty(t, c.PauseReason())
	c.Resume()
	assert.Empty(t, c.PauseReason())
}

func TestAwaitResumeUnblocksWhenConditionsClear(t *testing.T) {
	tel := &stubTelemetry{memoryMB: 500}
	cfg := DefaultConfig()
	cfg.CheckInterval = 5 * time.Millisecond
	c := New(cfg, tel, processor.NewWindow(100), testLogger())

	c.Pause(ReasonMemory)

	done := make(chan error, 1)
	go func() {
		done <- c.AwaitResume(context.Background())
	}()

	// Still paused while memory stays high
	select {
	case <-done:
		t.Fatal("AwaitResume returned while condition still held")
	case <-time.After(30 * time.Millisecond):
	}

	tel.set(50, 0)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AwaitResume did not return after conditions cleared")
	}

	assert.False(t, c.IsPaused())
}

func TestAwaitResumeHonorsContext(t *testing.T) {
	tel := &stubTelemetry{memoryMB: 500}
	cfg := DefaultConfig()
	cfg.CheckInterval = 5 * time.Millisecond
	c := New(cfg, tel, processor.NewWindow(100), testLogger())
	c.Pause(ReasonMemory)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.AwaitResume(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// Still paused; cancellation is not a resume
	assert.True(t, c.IsPaused())
}

func TestAwaitResumeReturnsImmediatelyWhenRunning(t *testing.T) {
	c := newTestController(&stubTelemetry{})
	require.NoError(t, c.AwaitResume(context.Background()))
}

func TestStats(t *testing.T) {
	tel := &stubTelemetry{}
	w := processor.NewWindow(100)
	w.Record(40 * time.Millisecond)
	c := New(DefaultConfig(), tel, w, testLogger(), WithQueueLen(func() int { return 7 }))

	c.Pause(ReasonMemory)
	c.Resume()
	c.Pause(ReasonQueue)

	s := c.Stats()
	assert.Equal(t, 7, s.QueueSize)
	assert.True(t, s.IsPaused)
	assert.Equal(t, ReasonQueue, s.PauseReason)
	assert.Equal(t, uint64(2), s.PauseEvents)
	assert.Equal(t, uint64(1), s.MemoryPauses)
	assert.InDelta(t, 40.0, s.AvgProcessingTimeMs, 0.001)
}

func TestRecordProcessingTime(t *testing.T) {
	w := processor.NewWindow(100)
	c := New(DefaultConfig(), &stubTelemetry{}, w, testLogger())

	c.RecordProcessingTime(25 * time.Millisecond)
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 25*time.Millisecond, w.Average())
}
