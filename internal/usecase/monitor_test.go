package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"QuantWatch/internal/domain/models"
	drepo "QuantWatch/internal/domain/repository"
	"QuantWatch/internal/service/alerting"
	"QuantWatch/internal/service/bus"
	"QuantWatch/internal/service/rules"
	"QuantWatch/internal/service/series"
	"QuantWatch/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

type hookRecorder struct {
	mu      sync.Mutex
	tracked []models.Symbol
	dropped []models.Symbol
}

func (h *hookRecorder) Track(s models.Symbol) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tracked = append(h.tracked, s)
}

func (h *hookRecorder) Untrack(s models.Symbol) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropped = append(h.dropped, s)
}

type feed struct {
	mu      sync.Mutex
	updates int
	alerts  []models.AlertEvent
}

func (f *feed) Name() string { return "feed" }

func (f *feed) OnInstrumentUpdate(context.Context, models.InstrumentUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return nil
}

func (f *feed) OnAlert(_ context.Context, a models.AlertEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *feed) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates, len(f.alerts)
}

func failing(context.Context, models.Symbol, int64) (models.Sample, error) {
	return models.Sample{}, models.ErrFetchFailure
}

// newMonitor returns a started monitor whose scheduled fetches never succeed,
// so tests drive it through Ingest.
func newMonitor(t *testing.T, fn func(context.Context, models.Symbol, int64) (models.Sample, error), opts ...MonitorOption) (*Monitor, *bus.Bus) {
	t.Helper()
	b := bus.New()
	t.Cleanup(b.Close)

	d := alerting.NewDispatcher(alerting.NewClassifier(), alerting.NewHistory(100), b)
	m := NewMonitor(&fakeSource{fn: fn}, series.New(), d, b, MonitorConfig{
		Periods:      map[models.Tier]time.Duration{models.TierRealtime: time.Hour, models.TierMinute: time.Hour},
		Thresholds:   rules.DefaultThresholds(),
		FetchTimeout: time.Millisecond,
	}, opts...)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
	return m, b
}

func sampleAt(sym models.Symbol, i int, price, volume float64) models.Sample {
	return models.Sample{Symbol: sym, Timestamp: t0.Add(time.Duration(i) * 5 * time.Second), Price: price, Volume: volume}
}

func TestPriceJumpProducesMediumAlert(t *testing.T) {
	m, b := newMonitor(t, failing)
	f := &feed{}
	require.NoError(t, b.Subscribe(f))

	_, err := m.AddSymbol("stock:AAPL", nil)
	require.NoError(t, err)

	for i, p := range []float64{100, 100, 106} {
		require.NoError(t, m.Ingest(context.Background(), models.TierRealtime, sampleAt("stock:AAPL", i, p, 1000)))
	}

	alerts := m.Alerts(models.AlertFilter{})
	require.Len(t, alerts, 1)
	assert.Equal(t, models.RulePriceAbnormal, alerts[0].Type)
	assert.Equal(t, models.SeverityMedium, alerts[0].Severity)
	payload, ok := alerts[0].Data.(models.PricePayload)
	require.True(t, ok)
	assert.InDelta(t, 0.06, payload.PriceChange, 1e-9)

	require.Eventually(t, func() bool {
		u, a := f.counts()
		return u == 3 && a == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), m.Summary().TotalAlertsToday)
}

func TestVolumeSpikeWithStablePrice(t *testing.T) {
	m, _ := newMonitor(t, failing)
	_, err := m.AddSymbol("crypto:BTC/USDT", nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, m.Ingest(context.Background(), models.TierRealtime, sampleAt("crypto:BTC/USDT", i, 100, 1000)))
	}
	require.NoError(t, m.Ingest(context.Background(), models.TierRealtime, sampleAt("crypto:BTC/USDT", 20, 100, 2500)))

	alerts := m.Alerts(models.AlertFilter{Type: models.RuleVolumeAbnormal})
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityLow, alerts[0].Severity)
}

func TestStaleSampleIsSilent(t *testing.T) {
	m, _ := newMonitor(t, failing)
	_, err := m.AddSymbol("AAPL", nil)
	require.NoError(t, err)

	s := sampleAt("stock:AAPL", 0, 100, 1)
	require.NoError(t, m.Ingest(context.Background(), models.TierMinute, s))
	s.Price = 200
	require.NoError(t, m.Ingest(context.Background(), models.TierMinute, s))

	v, err := m.Series("stock:AAPL", models.TierMinute, 0)
	require.NoError(t, err)
	require.Len(t, v.Samples, 1)
	assert.Equal(t, 100.0, v.Samples[0].Price)
	assert.Empty(t, m.Alerts(models.AlertFilter{}))
}

func TestRepeatedTimeoutsLeaveStaleStatus(t *testing.T) {
	m := newOutcomeMetrics()
	mon, _ := newMonitor(t, func(ctx context.Context, _ models.Symbol, _ int64) (models.Sample, error) {
		<-ctx.Done()
		return models.Sample{}, ctx.Err()
	}, WithMonitorMetrics(m))
	_, err := mon.AddSymbol("stock:AAPL", []string{"realtime"})
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		mon.Scheduler().FetchTier(context.Background(), models.TierRealtime)
	}

	assert.GreaterOrEqual(t, m.count(drepo.OutcomeTimeout), 30)
	assert.Empty(t, mon.Alerts(models.AlertFilter{}))

	st := mon.Status()
	assert.True(t, st.Running)
	assert.Equal(t, 1, st.SymbolCount)
	assert.Zero(t, st.ActiveAlertCount)
	assert.Nil(t, st.LastUpdate)

	syms := mon.Symbols()
	require.Len(t, syms, 1)
	assert.Equal(t, models.Symbol("stock:AAPL"), syms[0].Symbol)
	assert.Nil(t, syms[0].LastUpdate)
}

func TestAddRemoveSymbol(t *testing.T) {
	hooks := &hookRecorder{}
	m, _ := newMonitor(t, failing, WithSymbolHooks(hooks))

	st, err := m.AddSymbol("index:^GSPC", []string{"minute"})
	require.NoError(t, err)
	assert.Equal(t, []models.Tier{models.TierMinute}, st.Tiers)
	assert.Equal(t, "index", st.Class)

	_, err = m.AddSymbol("index:^GSPC", []string{"realtime"})
	require.NoError(t, err)
	assert.Len(t, hooks.tracked, 1)

	_, err = m.AddSymbol("forex:EURUSD", nil)
	assert.True(t, errors.Is(err, models.ErrInvalidSymbol))
	_, err = m.AddSymbol("stock:AAPL", []string{"weekly"})
	assert.Error(t, err)

	require.NoError(t, m.Ingest(context.Background(), models.TierMinute, sampleAt("index:^GSPC", 0, 4700, 0)))
	require.NoError(t, m.RemoveSymbol("index:^GSPC"))
	assert.Equal(t, []models.Symbol{"index:^GSPC"}, hooks.dropped)

	_, err = m.Series("index:^GSPC", models.TierMinute, 0)
	assert.True(t, errors.Is(err, models.ErrSeriesNotFound))
	assert.True(t, errors.Is(m.RemoveSymbol("index:^GSPC"), models.ErrUnknownSymbol))
	assert.True(t, errors.Is(m.Ingest(context.Background(), models.TierMinute, sampleAt("index:^GSPC", 1, 4700, 0)), models.ErrUnknownSymbol))
}

func TestSummaryAverageChange(t *testing.T) {
	m, _ := newMonitor(t, failing)
	for _, s := range []string{"stock:AAPL", "stock:MSFT", "stock:NVDA"} {
		_, err := m.AddSymbol(s, nil)
		require.NoError(t, err)
	}
	ctx := context.Background()
	require.NoError(t, m.Ingest(ctx, models.TierRealtime, sampleAt("stock:AAPL", 0, 100, 1)))
	require.NoError(t, m.Ingest(ctx, models.TierRealtime, sampleAt("stock:AAPL", 1, 101, 1)))
	require.NoError(t, m.Ingest(ctx, models.TierRealtime, sampleAt("stock:MSFT", 0, 200, 1)))
	require.NoError(t, m.Ingest(ctx, models.TierRealtime, sampleAt("stock:MSFT", 1, 196, 1)))

	sum := m.Summary()
	assert.Equal(t, 3, sum.TotalSymbols)
	assert.InDelta(t, -0.5, sum.AverageChange, 1e-9)
	require.NotNil(t, sum.LastUpdate)
	assert.True(t, sum.LastUpdate.Equal(t0.Add(5*time.Second)))
}

func TestActiveAlertCountUsesWindow(t *testing.T) {
	now := t0.Add(10 * time.Minute)
	m, _ := newMonitor(t, failing, WithClock(func() time.Time { return now }))
	_, err := m.AddSymbol("stock:TSLA", nil)
	require.NoError(t, err)
	for i, p := range []float64{100, 110} {
		require.NoError(t, m.Ingest(context.Background(), models.TierRealtime, sampleAt("stock:TSLA", i, p, 1)))
	}
	assert.Equal(t, 1, m.Status().ActiveAlertCount)

	now = t0.Add(time.Hour)
	assert.Zero(t, m.Status().ActiveAlertCount)
	assert.Equal(t, 1, m.AlertSummary(2).TotalAlerts)
}

func TestIngestAfterStop(t *testing.T) {
	m, _ := newMonitor(t, failing)
	_, err := m.AddSymbol("stock:AAPL", nil)
	require.NoError(t, err)
	m.Stop()

	err = m.Ingest(context.Background(), models.TierRealtime, sampleAt("stock:AAPL", 0, 1, 1))
	assert.True(t, errors.Is(err, models.ErrEngineStopped))
	assert.False(t, m.Status().Running)
	assert.Nil(t, m.Status().StartedAt)

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running())
}

func TestStaleRejectIsLoggedWithSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	l, err := logger.New(&logger.Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	m, _ := newMonitor(t, failing, WithMonitorLogger(l))
	_, err = m.AddSymbol("stock:AAPL", nil)
	require.NoError(t, err)

	s := sampleAt("stock:AAPL", 0, 100, 1)
	require.NoError(t, m.Ingest(context.Background(), models.TierRealtime, s))
	require.NoError(t, m.Ingest(context.Background(), models.TierRealtime, s))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"error":"stale sample"`)
}

func TestRemoveDuringIngestLeavesNoSeries(t *testing.T) {
	m, _ := newMonitor(t, failing)
	ctx := context.Background()

	for round := 0; round < 300; round++ {
		_, err := m.AddSymbol("crypto:ETH/USDT", []string{"realtime"})
		require.NoError(t, err)

		stopped := make(chan error, 1)
		go func() {
			for i := 0; ; i++ {
				if err := m.Ingest(ctx, models.TierRealtime, sampleAt("crypto:ETH/USDT", round*10000+i, 100, 1)); err != nil {
					stopped <- err
					return
				}
			}
		}()
		time.Sleep(50 * time.Microsecond)
		require.NoError(t, m.RemoveSymbol("crypto:ETH/USDT"))

		err = <-stopped
		require.True(t, errors.Is(err, models.ErrUnknownSymbol), "round %d: %v", round, err)
		require.Zero(t, m.store.Len(), "round %d", round)
	}
}

func TestRemoveSymbolReleasesKeyLocks(t *testing.T) {
	m, _ := newMonitor(t, failing)
	for i := 0; i < 20; i++ {
		_, err := m.AddSymbol("stock:AAPL", nil)
		require.NoError(t, err)
		require.NoError(t, m.Ingest(context.Background(), models.TierRealtime, sampleAt("stock:AAPL", i, 100, 1)))
		require.NoError(t, m.Ingest(context.Background(), models.TierMinute, sampleAt("stock:AAPL", i, 100, 1)))
		require.NoError(t, m.RemoveSymbol("stock:AAPL"))
	}

	n := 0
	m.keyLocks.Range(func(_, _ any) bool {
		n++
		return true
	})
	assert.Zero(t, n)
}

func TestAddSymbolOnUnscheduledTiersIsRejected(t *testing.T) {
	hooks := &hookRecorder{}
	m, _ := newMonitor(t, failing, WithSymbolHooks(hooks))

	_, err := m.AddSymbol("stock:AAPL", []string{"hour", "day"})
	assert.True(t, errors.Is(err, models.ErrInvalidSymbol))
	assert.Empty(t, m.Symbols())
	assert.Zero(t, m.Status().SymbolCount)
	assert.Empty(t, hooks.tracked)

	st, err := m.AddSymbol("stock:AAPL", []string{"hour", "minute"})
	require.NoError(t, err)
	assert.Equal(t, []models.Tier{models.TierMinute}, st.Tiers)
}
