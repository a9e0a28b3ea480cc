package item

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemJSONShape(t *testing.T) {
	it := Item{
		Raw: Raw{
			ID:          "news_1",
			Source:      "TechCrunch",
			Title:       "Example",
			Category:    "AI",
			Company:     "OpenAI",
			ImpactScore: 7.5,
		},
		SequenceID: 3,
		ReceivedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SizeBytes:  128,
	}

	data, err := json.Marshal(it)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))

	// Raw fields are flattened into the item, not nested
	assert.Equal(t, "news_1", m["id"])
	assert.Equal(t, "TechCrunch", m["source"])
	assert.Equal(t, float64(3), m["sequence_id"])
	assert.Equal(t, float64(128), m["size_bytes"])
	assert.NotContains(t, m, "Raw")
}

func TestEnvelopes(t *testing.T) {
	env, err := NewsEnvelope(Item{Raw: Raw{ID: "a", Title: "t"}})
	require.NoError(t, err)
	assert.Equal(t, TypeNews, env.Type)

	batch, err := BatchEnvelope([]Item{{Raw: Raw{ID: "a"}}, {Raw: Raw{ID: "b"}}})
	require.NoError(t, err)
	assert.Equal(t, TypeNewsBatch, batch.Type)

	var items []Item
	require.NoError(t, json.Unmarshal(batch.Data, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "b", items[1].ID)

	stats, err := StatsEnvelope(map[string]int{"total": 5})
	require.NoError(t, err)
	assert.Equal(t, TypeStatistics, stats.Type)

	encoded, err := stats.Encode()
	require.NoError(t, err)

	var wire Envelope
	require.NoError(t, json.Unmarshal(encoded, &wire))
	assert.Equal(t, TypeStatistics, wire.Type)
}
