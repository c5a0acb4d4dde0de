package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"QuantWatch/internal/domain/models"
	drepo "QuantWatch/internal/domain/repository"
	"QuantWatch/internal/service/alerting"
	"QuantWatch/internal/service/bus"
	"QuantWatch/internal/service/rules"
	"QuantWatch/internal/service/series"
	"QuantWatch/pkg/logger"
	"QuantWatch/pkg/retry"
)

const DefaultActiveWindow = 15 * time.Minute

// SymbolHook is told when a symbol enters or leaves the watch list.
type SymbolHook interface {
	Track(symbol models.Symbol)
	Untrack(symbol models.Symbol)
}

// MonitorConfig carries the engine settings that are plain values.
type MonitorConfig struct {
	Periods      map[models.Tier]time.Duration
	Thresholds   rules.Thresholds
	ActiveWindow time.Duration
	Workers      int
	FetchTimeout time.Duration
	MaxRetries   int
	Backoff      *retry.Backoff
}

// Monitor is the engine facade: it owns the scheduler and runs
// append, evaluate and dispatch for every fetched sample.
type Monitor struct {
	cfg        MonitorConfig
	store      *series.Store
	dispatcher *alerting.Dispatcher
	bus        *bus.Bus
	scheduler  *Scheduler
	hooks      []SymbolHook
	metrics    drepo.Metrics
	log        *logger.Logger
	now        func() time.Time

	// membership is held shared by Ingest and exclusively while the watch
	// list changes, so a removed symbol never gets its series back.
	membership sync.RWMutex
	keyLocks   sync.Map // fetchKey -> *sync.Mutex

	mu        sync.RWMutex
	startedAt time.Time
}

type MonitorOption func(*Monitor)

func WithMonitorLogger(l *logger.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

func WithMonitorMetrics(mt drepo.Metrics) MonitorOption {
	return func(m *Monitor) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithSymbolHooks registers hooks called on add and remove.
func WithSymbolHooks(hooks ...SymbolHook) MonitorOption {
	return func(m *Monitor) { m.hooks = append(m.hooks, hooks...) }
}

func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

func NewMonitor(source drepo.SourceAdapter, store *series.Store, dispatcher *alerting.Dispatcher, b *bus.Bus, cfg MonitorConfig, opts ...MonitorOption) *Monitor {
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = DefaultActiveWindow
	}
	if len(cfg.Periods) == 0 {
		cfg.Periods = make(map[models.Tier]time.Duration, len(models.AllTiers))
		for _, t := range models.AllTiers {
			cfg.Periods[t] = t.DefaultPeriod()
		}
	}
	m := &Monitor{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		bus:        b,
		metrics:    drepo.NopMetrics{},
		log:        logger.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.scheduler = NewScheduler(source, m, cfg.Periods,
		WithWorkers(cfg.Workers),
		WithFetchTimeout(cfg.FetchTimeout),
		WithRetry(cfg.MaxRetries, cfg.Backoff),
		WithSchedulerMetrics(m.metrics),
		WithSchedulerLogger(m.log),
	)
	return m
}

// Scheduler exposes the fetch scheduler, mainly for tests and status.
func (m *Monitor) Scheduler() *Scheduler { return m.scheduler }

// Start begins fetching every subscribed symbol.
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.scheduler.Start(ctx); err != nil {
		return err
	}
	if err := m.dispatcher.Start(); err != nil {
		m.log.Warn("daily alert reset not scheduled", logger.Error(err))
	}
	m.mu.Lock()
	m.startedAt = m.now()
	m.mu.Unlock()
	m.log.Info("monitor started", logger.Int("symbols", len(m.scheduler.Symbols())))
	return nil
}

// Stop halts scheduling. Results of fetches still in flight are discarded.
func (m *Monitor) Stop() {
	if !m.scheduler.Running() {
		return
	}
	m.scheduler.Stop()
	m.dispatcher.Stop()
	m.log.Info("monitor stopped")
}

func (m *Monitor) Running() bool { return m.scheduler.Running() }

// AddSymbol subscribes raw on the given tiers, or on all scheduled tiers.
// Requesting only tiers that are not scheduled is rejected.
func (m *Monitor) AddSymbol(raw string, tiers []string) (models.SymbolStatus, error) {
	symbol, err := models.ParseSymbol(raw)
	if err != nil {
		return models.SymbolStatus{}, err
	}
	parsed := make([]models.Tier, 0, len(tiers))
	for _, t := range tiers {
		tier := models.Tier(t)
		if !tier.IsValid() {
			return models.SymbolStatus{}, fmt.Errorf("add %s: unknown tier %q: %w", symbol, t, models.ErrInvalidSymbol)
		}
		if m.scheduler.Scheduled(tier) {
			parsed = append(parsed, tier)
		}
	}
	if len(tiers) > 0 && len(parsed) == 0 {
		return models.SymbolStatus{}, fmt.Errorf("add %s: tiers %v are not scheduled: %w", symbol, tiers, models.ErrInvalidSymbol)
	}

	m.membership.Lock()
	known := m.scheduler.Subscribed(symbol)
	m.scheduler.Add(symbol, parsed...)
	m.membership.Unlock()

	if !known {
		for _, h := range m.hooks {
			h.Track(symbol)
		}
		m.log.Info("symbol added", logger.String("symbol", symbol.String()))
	}
	return m.symbolStatus(symbol), nil
}

// RemoveSymbol unsubscribes raw and drops its series and suppression state.
func (m *Monitor) RemoveSymbol(raw string) error {
	symbol, err := models.ParseSymbol(raw)
	if err != nil {
		return err
	}

	m.membership.Lock()
	if !m.scheduler.Remove(symbol) {
		m.membership.Unlock()
		return fmt.Errorf("remove %s: %w", symbol, models.ErrUnknownSymbol)
	}
	m.store.Remove(symbol)
	for _, t := range models.AllTiers {
		m.keyLocks.Delete(fetchKey{symbol, t})
	}
	m.membership.Unlock()

	m.dispatcher.Classifier().Forget(symbol)
	for _, h := range m.hooks {
		h.Untrack(symbol)
	}
	m.log.Info("symbol removed", logger.String("symbol", symbol.String()))
	return nil
}

// Symbols describes every subscribed symbol.
func (m *Monitor) Symbols() []models.SymbolStatus {
	syms := m.scheduler.Symbols()
	out := make([]models.SymbolStatus, 0, len(syms))
	for _, s := range syms {
		out = append(out, m.symbolStatus(s))
	}
	return out
}

func (m *Monitor) symbolStatus(symbol models.Symbol) models.SymbolStatus {
	tiers := m.scheduler.SymbolTiers(symbol)
	st := models.SymbolStatus{Symbol: symbol, Class: string(symbol.Class()), Tiers: tiers}
	if ts, ok := m.store.LastUpdate(symbol); ok {
		st.LastUpdate = &ts
	}
	if len(tiers) > 0 {
		if v, ok := m.store.Tail(symbol, tiers[0], 1); ok {
			if p, ok := v.Indicators.LastPrice.Get(); ok {
				st.LastPrice = &p
			}
		}
	}
	return st
}

// Series returns the newest limit samples of one series with its indicators.
func (m *Monitor) Series(raw string, tier models.Tier, limit int) (models.SeriesView, error) {
	symbol, err := models.ParseSymbol(raw)
	if err != nil {
		return models.SeriesView{}, err
	}
	v, ok := m.store.Tail(symbol, tier, limit)
	if !ok {
		return models.SeriesView{}, fmt.Errorf("series %s/%s: %w", symbol, tier, models.ErrSeriesNotFound)
	}
	return v, nil
}

// Ingest runs append, evaluate and dispatch for one sample. Samples for
// unsubscribed symbols or a stopped engine are dropped.
func (m *Monitor) Ingest(_ context.Context, tier models.Tier, sample models.Sample) error {
	if !m.scheduler.Running() {
		return models.ErrEngineStopped
	}

	m.membership.RLock()
	defer m.membership.RUnlock()
	if !m.scheduler.Subscribed(sample.Symbol) {
		return fmt.Errorf("ingest %s: %w", sample.Symbol, models.ErrUnknownSymbol)
	}

	mu := m.keyLock(fetchKey{sample.Symbol, tier})
	mu.Lock()
	defer mu.Unlock()

	res, err := m.store.Append(sample.Symbol, tier, sample)
	if err != nil {
		m.metrics.RecordError("append")
		return fmt.Errorf("ingest: %w", err)
	}
	if res.Status == series.Stale {
		m.metrics.RecordAppend(tier, drepo.AppendStale)
		m.log.Debug("stale sample rejected",
			logger.String("symbol", sample.Symbol.String()),
			logger.String("tier", string(tier)),
			logger.Time("timestamp", sample.Timestamp),
			logger.Error(models.ErrStaleSample),
		)
		return nil
	}
	m.metrics.RecordAppend(tier, drepo.AppendAccepted)
	m.metrics.RecordLastPrice(sample.Symbol, sample.Price)

	m.bus.PublishUpdate(models.InstrumentUpdate{
		Symbol:     sample.Symbol,
		Tier:       tier,
		Sample:     sample,
		Indicators: res.Current,
		Timestamp:  sample.Timestamp,
	})

	m.dispatcher.Dispatch(rules.Evaluate(tier, res.Previous, res.Current, sample, m.cfg.Thresholds))
	return nil
}

func (m *Monitor) keyLock(k fetchKey) *sync.Mutex {
	v, _ := m.keyLocks.LoadOrStore(k, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Alerts returns recent alerts, newest first.
func (m *Monitor) Alerts(f models.AlertFilter) []models.AlertEvent {
	return m.dispatcher.History().Recent(f)
}

// AlertSummary groups recent alerts of the last hours.
func (m *Monitor) AlertSummary(hours int) models.AlertSummary {
	return m.dispatcher.History().Summary(hours, m.now())
}

// Status reports whether the engine runs and how fresh its data is.
func (m *Monitor) Status() models.Status {
	now := m.now()
	st := models.Status{
		Running:          m.scheduler.Running(),
		SymbolCount:      len(m.scheduler.Symbols()),
		ActiveAlertCount: m.dispatcher.History().CountSince(now.Add(-m.cfg.ActiveWindow)),
		LastUpdate:       m.lastUpdate(),
		ActiveTiers:      m.scheduler.ActiveLoops(),
	}
	if ticks := m.scheduler.LastTicks(); len(ticks) > 0 {
		st.TierLastTick = ticks
	}
	m.mu.RLock()
	if st.Running && !m.startedAt.IsZero() {
		started := m.startedAt
		st.StartedAt = &started
	}
	m.mu.RUnlock()
	return st
}

// Summary is the market-wide view. averageChange is the mean percent move
// between the last two samples of each symbol's fastest tier.
func (m *Monitor) Summary() models.MarketSummary {
	syms := m.scheduler.Symbols()
	sum, n := 0.0, 0
	for _, s := range syms {
		tiers := m.scheduler.SymbolTiers(s)
		if len(tiers) == 0 {
			continue
		}
		v, ok := m.store.Tail(s, tiers[0], 2)
		if !ok || len(v.Samples) < 2 || v.Samples[0].Price == 0 {
			continue
		}
		sum += (v.Samples[1].Price - v.Samples[0].Price) / v.Samples[0].Price * 100
		n++
	}
	out := models.MarketSummary{
		TotalSymbols:     len(syms),
		TotalAlertsToday: m.dispatcher.AlertsToday(),
		LastUpdate:       m.lastUpdate(),
	}
	if n > 0 {
		out.AverageChange = sum / float64(n)
	}
	return out
}

func (m *Monitor) lastUpdate() *time.Time {
	var last time.Time
	for _, s := range m.scheduler.Symbols() {
		if ts, ok := m.store.LastUpdate(s); ok && ts.After(last) {
			last = ts
		}
	}
	if last.IsZero() {
		return nil
	}
	return &last
}
