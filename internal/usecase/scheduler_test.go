package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"QuantWatch/internal/domain/models"
	drepo "QuantWatch/internal/domain/repository"
	"QuantWatch/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource behaves according to fn; it records concurrency.
type fakeSource struct {
	fn      func(ctx context.Context, symbol models.Symbol, n int64) (models.Sample, error)
	calls   atomic.Int64
	active  atomic.Int64
	peak    atomic.Int64
	peakMux sync.Mutex
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context, symbol models.Symbol, _ models.Tier) (models.Sample, error) {
	n := f.calls.Add(1)
	cur := f.active.Add(1)
	defer f.active.Add(-1)
	f.peakMux.Lock()
	if cur > f.peak.Load() {
		f.peak.Store(cur)
	}
	f.peakMux.Unlock()
	return f.fn(ctx, symbol, n)
}

type sinkRecorder struct {
	mu      sync.Mutex
	samples []models.Sample
}

func (s *sinkRecorder) Ingest(_ context.Context, _ models.Tier, sample models.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

func (s *sinkRecorder) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

type outcomeMetrics struct {
	drepo.NopMetrics
	mu       sync.Mutex
	outcomes map[string]int
}

func newOutcomeMetrics() *outcomeMetrics {
	return &outcomeMetrics{outcomes: make(map[string]int)}
}

func (m *outcomeMetrics) RecordFetch(_ string, _ models.Tier, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *outcomeMetrics) count(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[outcome]
}

// arm marks the scheduler running without starting tier loops.
func arm(s *Scheduler) {
	s.mu.Lock()
	s.running = true
	s.gen++
	s.mu.Unlock()
}

func okSample(_ context.Context, symbol models.Symbol, n int64) (models.Sample, error) {
	return models.Sample{Symbol: symbol, Price: 100, Volume: 1, Timestamp: time.Unix(n, 0)}, nil
}

var minuteOnly = map[models.Tier]time.Duration{models.TierMinute: time.Minute}

func TestFetchTierRespectsWorkerCap(t *testing.T) {
	src := &fakeSource{fn: func(ctx context.Context, symbol models.Symbol, n int64) (models.Sample, error) {
		time.Sleep(5 * time.Millisecond)
		return okSample(ctx, symbol, n)
	}}
	sink := &sinkRecorder{}
	s := NewScheduler(src, sink, minuteOnly, WithWorkers(3))
	for _, code := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"} {
		s.Add(models.NewSymbol(models.ClassStock, code))
	}
	arm(s)

	s.FetchTier(context.Background(), models.TierMinute)

	assert.Equal(t, 12, sink.len())
	assert.LessOrEqual(t, src.peak.Load(), int64(3))
}

func TestFetchRetriesThenSkipsTick(t *testing.T) {
	src := &fakeSource{fn: func(context.Context, models.Symbol, int64) (models.Sample, error) {
		return models.Sample{}, models.ErrFetchFailure
	}}
	sink := &sinkRecorder{}
	m := newOutcomeMetrics()
	s := NewScheduler(src, sink, minuteOnly,
		WithRetry(2, retry.New(time.Millisecond, 2*time.Millisecond, 0)),
		WithSchedulerMetrics(m),
	)
	s.Add("stock:AAPL")
	arm(s)

	s.FetchTier(context.Background(), models.TierMinute)
	assert.Equal(t, int64(3), src.calls.Load())
	assert.Equal(t, 3, m.count(drepo.OutcomeFailure))
	assert.Zero(t, sink.len())

	// the next tick tries again
	s.FetchTier(context.Background(), models.TierMinute)
	assert.Equal(t, int64(6), src.calls.Load())
}

func TestFetchTimeoutIsCounted(t *testing.T) {
	src := &fakeSource{fn: func(ctx context.Context, _ models.Symbol, _ int64) (models.Sample, error) {
		<-ctx.Done()
		return models.Sample{}, ctx.Err()
	}}
	m := newOutcomeMetrics()
	s := NewScheduler(src, &sinkRecorder{}, minuteOnly,
		WithFetchTimeout(2*time.Millisecond),
		WithRetry(0, nil),
		WithSchedulerMetrics(m),
	)
	s.Add("stock:AAPL")
	arm(s)

	s.FetchTier(context.Background(), models.TierMinute)
	assert.Equal(t, 1, m.count(drepo.OutcomeTimeout))
}

func TestRemovedSymbolResultIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	src := &fakeSource{fn: func(ctx context.Context, symbol models.Symbol, n int64) (models.Sample, error) {
		close(started)
		<-release
		return okSample(ctx, symbol, n)
	}}
	sink := &sinkRecorder{}
	m := newOutcomeMetrics()
	s := NewScheduler(src, sink, minuteOnly, WithSchedulerMetrics(m))
	s.Add("stock:AAPL")
	arm(s)

	done := make(chan struct{})
	go func() {
		s.FetchTier(context.Background(), models.TierMinute)
		close(done)
	}()
	<-started
	assert.True(t, s.Remove("stock:AAPL"))
	close(release)
	<-done

	assert.Zero(t, sink.len())
	assert.Equal(t, 1, m.count(drepo.OutcomeDiscarded))
}

func TestInflightFetchIsNotDuplicated(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	src := &fakeSource{fn: func(ctx context.Context, symbol models.Symbol, n int64) (models.Sample, error) {
		started <- struct{}{}
		<-release
		return okSample(ctx, symbol, n)
	}}
	m := newOutcomeMetrics()
	s := NewScheduler(src, &sinkRecorder{}, minuteOnly, WithSchedulerMetrics(m))
	s.Add("stock:AAPL")
	arm(s)

	done := make(chan struct{})
	go func() {
		s.FetchTier(context.Background(), models.TierMinute)
		close(done)
	}()
	<-started
	s.FetchTier(context.Background(), models.TierMinute)
	close(release)
	<-done

	assert.Equal(t, int64(1), src.calls.Load())
	assert.Equal(t, 1, m.count(drepo.OutcomeSkipped))
}

func TestStopDiscardsLateResults(t *testing.T) {
	release := make(chan struct{})
	src := &fakeSource{fn: func(ctx context.Context, symbol models.Symbol, n int64) (models.Sample, error) {
		<-release
		return okSample(ctx, symbol, n)
	}}
	sink := &sinkRecorder{}
	s := NewScheduler(src, sink, minuteOnly)
	s.Add("stock:AAPL")

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, errors.Is(s.Start(context.Background()), models.ErrEngineRunning))
	assert.Equal(t, 1, s.ActiveLoops())
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	s.Stop()
	assert.Zero(t, s.ActiveLoops())
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Drain(ctx))
	assert.Zero(t, sink.len())
}

func TestAddOnlyScheduledTiers(t *testing.T) {
	s := NewScheduler(&fakeSource{fn: okSample}, &sinkRecorder{}, map[models.Tier]time.Duration{
		models.TierRealtime: time.Second,
		models.TierHour:     time.Hour,
		models.TierDay:      0,
	})
	assert.Equal(t, []models.Tier{models.TierRealtime, models.TierHour}, s.Tiers())
	assert.Equal(t, []models.Tier{models.TierHour}, s.Add("stock:AAPL", models.TierHour, models.TierDay))
	assert.Equal(t, []models.Tier{models.TierRealtime, models.TierHour}, s.Add("crypto:BTC/USDT"))
	assert.Equal(t, []models.Symbol{"crypto:BTC/USDT", "stock:AAPL"}, s.Symbols())

	assert.Empty(t, s.Add("index:^GSPC", models.TierDay))
	assert.False(t, s.Subscribed("index:^GSPC"))
	assert.True(t, s.Scheduled(models.TierHour))
	assert.False(t, s.Scheduled(models.TierDay))
}
