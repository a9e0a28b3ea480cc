package monitor

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yanzhidev/windsurf-rtnews/processor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestMemoryMBReadsProcessRSS(t *testing.T) {
	m := New(processor.NewWindow(100), testLogger())

	mb := m.MemoryMB()
	assert.Greater(t, mb, 0.0, "a running test process has nonzero RSS")
}

func TestMemoryMBFallsBackToLastKnownGood(t *testing.T) {
	calls := 0
	m := New(processor.NewWindow(100), testLogger(), WithSampler(func() (float64, error) {
		calls++
		if calls == 1 {
			return 150.0, nil
		}
		return 0, errors.New("proc read failed")
	}))

	assert.Equal(t, 150.0, m.MemoryMB())
	// Failed read returns the previous sample, never an error
	assert.Equal(t, 150.0, m.MemoryMB())
	assert.Equal(t, 150.0, m.MemoryMB())
}

func TestMemoryMBZeroBeforeFirstGoodSample(t *testing.T) {
	m := New(processor.NewWindow(100), testLogger(), WithSampler(func() (float64, error) {
		return 0, errors.New("always failing")
	}))

	assert.Equal(t, 0.0, m.MemoryMB())
}

func TestAvgLatencyGatedByMinSamples(t *testing.T) {
	w := processor.NewWindow(100)
	m := New(w, testLogger())

	// Below the minimum sample count the reading is suppressed
	for i := 0; i < DefaultMinSamples-1; i++ {
		w.Record(150 * time.Millisecond)
	}
	assert.Zero(t, m.AvgLatencySeconds())

	w.Record(150 * time.Millisecond)
	assert.InDelta(t, 0.150, m.AvgLatencySeconds(), 0.0001)
}

func TestAvgLatencyCustomMinSamples(t *testing.T) {
	w := processor.NewWindow(100)
	m := New(w, testLogger(), WithMinSamples(2))

	w.Record(100 * time.Millisecond)
	assert.Zero(t, m.AvgLatencySeconds())

	w.Record(100 * time.Millisecond)
	assert.InDelta(t, 0.100, m.AvgLatencySeconds(), 0.0001)
}
