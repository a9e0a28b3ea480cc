package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanzhidev/windsurf-rtnews/item"
)

// fakeSub records delivered payloads and can be told to fail or hang
type fakeSub struct {
	id string

	mu       sync.Mutex
	payloads [][]byte
	closed   bool

	failAll bool
	hang    bool
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Send(ctx context.Context, payload []byte) error {
	if f.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.failAll {
		return errors.New("connection reset")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeSub) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSub) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.payloads))
	copy(out, f.payloads)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newsEnv(t *testing.T, id string) item.Envelope {
	t.Helper()
	env, err := item.NewsEnvelope(item.Item{Raw: item.Raw{ID: id, Title: "t"}})
	require.NoError(t, err)
	return env
}

func TestRegisterIdempotent(t *testing.T) {
	m := NewManager(testLogger())
	sub := &fakeSub{id: "a"}

	m.Register(sub)
	m.Register(sub)
	m.Register(&fakeSub{id: "a"})

	assert.Equal(t, 1, m.ActiveCount())
}

func TestUnregisterClosesSubscriber(t *testing.T) {
	m := NewManager(testLogger())
	sub := &fakeSub{id: "a"}
	m.Register(sub)

	m.Unregister("a")
	assert.Equal(t, 0, m.ActiveCount())
	assert.True(t, sub.closed)

	// Unknown handle is a no-op
	m.Unregister("a")
	m.Unregister("zzz")
}

func TestBroadcastDeliversToAll(t *testing.T) {
	m := NewManager(testLogger())
	subs := []*fakeSub{{id: "a"}, {id: "b"}, {id: "c"}}
	for _, s := range subs {
		m.Register(s)
	}

	report := m.Broadcast(context.Background(), newsEnv(t, "news_1"))

	assert.Equal(t, DeliveryReport{Attempted: 3, Succeeded: 3, Failed: 0}, report)
	for _, s := range subs {
		require.Len(t, s.received(), 1)
	}

	stats := m.Stats()
	assert.Equal(t, uint64(3), stats.TotalSent)
	assert.Equal(t, uint64(0), stats.TotalErrors)
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	m := NewManager(testLogger())
	good1 := &fakeSub{id: "good1"}
	bad := &fakeSub{id: "bad", failAll: true}
	good2 := &fakeSub{id: "good2"}
	m.Register(good1)
	m.Register(bad)
	m.Register(good2)

	report := m.Broadcast(context.Background(), newsEnv(t, "news_1"))

	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	// Failing subscriber evicted after exactly one failed attempt
	assert.Equal(t, 2, m.ActiveCount())
	assert.True(t, bad.closed)
	require.Len(t, good1.received(), 1)
	require.Len(t, good2.received(), 1)

	// Next round no longer attempts the dead subscriber
	report = m.Broadcast(context.Background(), newsEnv(t, "news_2"))
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 0, report.Failed)
}

func TestBroadcastTimeoutEvictsHangingSubscriber(t *testing.T) {
	m := NewManager(testLogger(), WithSendTimeout(20*time.Millisecond))
	hanging := &fakeSub{id: "hang", hang: true}
	good := &fakeSub{id: "good"}
	m.Register(hanging)
	m.Register(good)

	start := time.Now()
	report := m.Broadcast(context.Background(), newsEnv(t, "news_1"))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, m.ActiveCount())
}

func TestBroadcastNoSubscribers(t *testing.T) {
	m := NewManager(testLogger())
	report := m.Broadcast(context.Background(), newsEnv(t, "news_1"))
	assert.Equal(t, DeliveryReport{}, report)
}

func TestBroadcastDurationFeedsSink(t *testing.T) {
	var recorded []time.Duration
	var mu sync.Mutex
	m := NewManager(testLogger(), WithDurationSink(func(d time.Duration) {
		mu.Lock()
		recorded = append(recorded, d)
		mu.Unlock()
	}))
	m.Register(&fakeSub{id: "a"})

	m.Broadcast(context.Background(), newsEnv(t, "news_1"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, recorded, 1)
	assert.Greater(t, recorded[0], time.Duration(0))
}

func TestBroadcastStatsEnvelope(t *testing.T) {
	m := NewManager(testLogger())
	sub := &fakeSub{id: "a"}
	m.Register(sub)

	report := m.BroadcastStats(context.Background(), map[string]int{"total_processed": 7})
	assert.Equal(t, 1, report.Succeeded)

	payloads := sub.received()
	require.Len(t, payloads, 1)

	var env item.Envelope
	require.NoError(t, json.Unmarshal(payloads[0], &env))
	assert.Equal(t, item.TypeStatistics, env.Type)

	var data map[string]int
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 7, data["total_processed"])
}

func TestBroadcastBatchPreservesOrder(t *testing.T) {
	m := NewManager(testLogger())
	sub := &fakeSub{id: "a"}
	m.Register(sub)

	payloads := [][]byte{[]byte("1"), []byte("2"), []byte("3")}
	report := m.BroadcastBatch(context.Background(), payloads)

	assert.Equal(t, DeliveryReport{Attempted: 3, Succeeded: 3, Failed: 0}, report)
	got := sub.received()
	require.Len(t, got, 3)
	assert.Equal(t, payloads, got)
}

func TestBroadcastBatchFailureCountsRemainder(t *testing.T) {
	m := NewManager(testLogger())
	bad := &fakeSub{id: "bad", failAll: true}
	m.Register(bad)

	report := m.BroadcastBatch(context.Background(), [][]byte{[]byte("1"), []byte("2"), []byte("3")})

	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, 0, m.ActiveCount())
}

func TestCloseAll(t *testing.T) {
	m := NewManager(testLogger())
	subs := []*fakeSub{{id: "a"}, {id: "b"}}
	for _, s := range subs {
		m.Register(s)
	}

	m.CloseAll()

	assert.Equal(t, 0, m.ActiveCount())
	for _, s := range subs {
		assert.True(t, s.closed)
	}
}

func TestConcurrentRegisterAndBroadcast(t *testing.T) {
	m := NewManager(testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m.Register(&fakeSub{id: string(rune('a' + n))})
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Broadcast(context.Background(), newsEnv(t, "news"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, m.ActiveCount())
}
