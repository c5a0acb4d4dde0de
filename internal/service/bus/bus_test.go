package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"QuantWatch/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name    string
	gate    chan struct{}
	mu      sync.Mutex
	updates []models.InstrumentUpdate
	alerts  []models.AlertEvent
	fail    bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnInstrumentUpdate(_ context.Context, u models.InstrumentUpdate) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) OnAlert(_ context.Context, a models.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates), len(r.alerts)
}

func update(i int) models.InstrumentUpdate {
	return models.InstrumentUpdate{Symbol: "stock:A", Sample: models.Sample{Price: float64(i)}}
}

func TestDeliversToEverySubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	a, c := &recorder{name: "a"}, &recorder{name: "c", fail: true}
	require.NoError(t, b.Subscribe(a))
	require.NoError(t, b.Subscribe(c))
	assert.Error(t, b.Subscribe(&recorder{name: "a"}))

	b.PublishUpdate(update(1))
	b.PublishAlert(models.AlertEvent{ID: "x"})

	require.Eventually(t, func() bool {
		ua, aa := a.counts()
		uc, ac := c.counts()
		return ua == 1 && aa == 1 && uc == 1 && ac == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := New(WithQueueSize(2))
	defer b.Close()

	slow := &recorder{name: "slow", gate: make(chan struct{})}
	fast := &recorder{name: "fast"}
	require.NoError(t, b.Subscribe(slow))
	require.NoError(t, b.Subscribe(fast))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.PublishUpdate(update(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	require.Eventually(t, func() bool {
		n, _ := fast.counts()
		return n == 10
	}, 2*time.Second, 5*time.Millisecond)

	stats := b.Stats()
	assert.GreaterOrEqual(t, stats["slow"].Dropped, int64(7))
	assert.Equal(t, int64(0), stats["fast"].Dropped)

	close(slow.gate)
	require.Eventually(t, func() bool {
		slow.mu.Lock()
		defer slow.mu.Unlock()
		return len(slow.updates) > 0 && slow.updates[len(slow.updates)-1].Sample.Price == 9
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUnsubscribeAndClose(t *testing.T) {
	b := New()
	r := &recorder{name: "r"}
	require.NoError(t, b.Subscribe(r))
	b.Unsubscribe("r")
	b.Unsubscribe("r")

	b.PublishUpdate(update(1))
	time.Sleep(20 * time.Millisecond)
	n, _ := r.counts()
	assert.Equal(t, 0, n)

	b.Close()
	b.Close()
	assert.Error(t, b.Subscribe(&recorder{name: "late"}))
	b.PublishAlert(models.AlertEvent{})
}

func TestCloseDrainsPendingMessages(t *testing.T) {
	b := New(WithQueueSize(100))
	r := &recorder{name: "archive", gate: make(chan struct{})}
	require.NoError(t, b.Subscribe(r))

	for i := 0; i < 50; i++ {
		b.PublishUpdate(update(i))
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(r.gate)
	}()
	b.Close()

	n, _ := r.counts()
	assert.Equal(t, 50, n)
	assert.Equal(t, 49.0, r.updates[n-1].Sample.Price)
}
