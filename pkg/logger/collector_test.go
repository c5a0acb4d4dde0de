package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedEntry
	done    chan struct{}
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedEntry))
	select {
	case p.done <- struct{}{}:
	default:
	}
	return nil
}

func TestCollectorFoldsRepeats(t *testing.T) {
	pub := &capturePublisher{done: make(chan struct{}, 1)}
	c := NewCollector(&CollectorConfig{Interval: time.Hour, MaxUnique: 100, Topic: "logs", Publisher: pub})

	for i := 0; i < 5; i++ {
		c.Add("warn", "fetch failed", map[string]interface{}{"symbol": "stock:AAPL"}, "a.go:1")
	}
	c.Add("warn", "fetch failed", map[string]interface{}{"symbol": "stock:MSFT"}, "a.go:1")
	assert.Equal(t, 2, c.Pending())

	c.Close()
	select {
	case <-pub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no flush on close")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "logs", pub.topic)
	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Fields["symbol"].(string)] = e.Count
	}
	assert.Equal(t, map[string]int{"stock:AAPL": 5, "stock:MSFT": 1}, counts)
}

func TestCollectorFlushesAtMaxUnique(t *testing.T) {
	pub := &capturePublisher{done: make(chan struct{}, 1)}
	c := NewCollector(&CollectorConfig{Interval: time.Hour, MaxUnique: 2, Publisher: pub})
	defer c.Close()

	c.Add("error", "a", nil, "x")
	c.Add("error", "b", nil, "x")
	assert.Equal(t, 0, c.Pending())

	select {
	case <-pub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected flush")
	}
}

func TestNopLoggerAcceptsFields(t *testing.T) {
	l := Nop().With(String("component", "test"))
	l.Info("hello", Int("n", 1), Float64("f", 1.5), Time("t", time.Now()), Bool("b", true))
	l.Warn("warn", Error(nil))
}
