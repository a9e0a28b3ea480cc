package processor

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanzhidev/windsurf-rtnews/item"
)

func validRaw() item.Raw {
	return item.Raw{
		ID:          "news_1",
		Timestamp:   "2026-01-02T03:04:05Z",
		Source:      "TechCrunch",
		Title:       "Example Headline",
		Summary:     "A summary",
		Category:    "AI",
		Company:     "OpenAI",
		ImpactScore: 5.5,
		URL:         "https://example.com/news/1",
	}
}

func TestProcessAcceptsValidItem(t *testing.T) {
	p := New(NewWindow(100))

	before := time.Now()
	it, rej := p.Process(validRaw())
	require.Nil(t, rej)

	assert.Equal(t, uint64(1), it.SequenceID)
	assert.False(t, it.ReceivedAt.Before(before))
	assert.Greater(t, it.SizeBytes, 0)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.TotalProcessed)
	assert.Equal(t, uint64(0), stats.RejectedCount)
	assert.Equal(t, 1, stats.Categories["AI"])
}

func TestSequenceIDsStrictlyIncreasingAndGapFree(t *testing.T) {
	p := New(NewWindow(100))

	var last uint64
	for i := 0; i < 50; i++ {
		it, rej := p.Process(validRaw())
		require.Nil(t, rej)
		require.Equal(t, last+1, it.SequenceID)
		last = it.SequenceID
	}

	// Rejections do not consume sequence ids
	raw := validRaw()
	raw.Title = ""
	_, rej := p.Process(raw)
	require.NotNil(t, rej)

	it, rej := p.Process(validRaw())
	require.Nil(t, rej)
	assert.Equal(t, last+1, it.SequenceID)
}

func TestRejectMissingFields(t *testing.T) {
	tests := []struct {
		field string
		mod   func(*item.Raw)
	}{
		{"title", func(r *item.Raw) { r.Title = "" }},
		{"source", func(r *item.Raw) { r.Source = "" }},
		{"category", func(r *item.Raw) { r.Category = "" }},
		{"company", func(r *item.Raw) { r.Company = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			p := New(NewWindow(100))
			raw := validRaw()
			tt.mod(&raw)

			_, rej := p.Process(raw)
			require.NotNil(t, rej)
			assert.Equal(t, item.RejectMissingField, rej.Reason)
			assert.Equal(t, tt.field, rej.Field)

			stats := p.Stats()
			assert.Equal(t, uint64(0), stats.TotalProcessed)
			assert.Equal(t, uint64(1), stats.RejectedCount)
			assert.Empty(t, stats.Categories)
		})
	}
}

func TestRejectOversizeItem(t *testing.T) {
	p := New(NewWindow(100), WithMaxItemBytes(512))

	raw := validRaw()
	raw.Summary = strings.Repeat("x", 1024)

	_, rej := p.Process(raw)
	require.NotNil(t, rej)
	assert.Equal(t, item.RejectOversize, rej.Reason)
	assert.Greater(t, rej.SizeBytes, 512)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.RejectedCount)
	assert.Equal(t, uint64(0), stats.TotalProcessed)
}

func TestRejectionIncrementsCounterExactlyOnce(t *testing.T) {
	p := New(NewWindow(100))

	raw := validRaw()
	raw.Title = ""
	for i := 1; i <= 3; i++ {
		_, rej := p.Process(raw)
		require.NotNil(t, rej)
		assert.Equal(t, uint64(i), p.Stats().RejectedCount)
	}
}

func TestStatsAverageFromWindow(t *testing.T) {
	w := NewWindow(100)
	p := New(w)

	assert.Zero(t, p.Stats().AvgProcessingTimeMs)

	w.Record(10 * time.Millisecond)
	w.Record(30 * time.Millisecond)
	assert.InDelta(t, 20.0, p.Stats().AvgProcessingTimeMs, 0.001)
}

func TestWindowDiscardsOldest(t *testing.T) {
	w := NewWindow(3)
	w.Record(10 * time.Millisecond)
	w.Record(10 * time.Millisecond)
	w.Record(10 * time.Millisecond)
	assert.Equal(t, 3, w.Len())

	// Pushes out one 10ms sample
	w.Record(40 * time.Millisecond)
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 20*time.Millisecond, w.Average())
}

func TestStatsCategoriesCopied(t *testing.T) {
	p := New(NewWindow(100))
	_, rej := p.Process(validRaw())
	require.Nil(t, rej)

	stats := p.Stats()
	stats.Categories["AI"] = 99

	assert.Equal(t, 1, p.Stats().Categories["AI"])
}
