package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"QuantWatch/internal/domain/models"
	drepo "QuantWatch/internal/domain/repository"
	"QuantWatch/pkg/logger"
	"QuantWatch/pkg/retry"
)

const (
	DefaultWorkers      = 10
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxRetries   = 3
)

type fetchKey struct {
	symbol models.Symbol
	tier   models.Tier
}

// Scheduler runs one ticker per tier and fetches every symbol due on that tier.
// Fetches of one tier share a bounded worker pool; a (symbol, tier) pair never
// has two fetches in flight.
type Scheduler struct {
	source  drepo.SourceAdapter
	sink    drepo.SampleSink
	periods map[models.Tier]time.Duration

	workers    int
	timeout    time.Duration
	maxRetries int
	backoff    *retry.Backoff
	metrics    drepo.Metrics
	log        *logger.Logger

	mu       sync.RWMutex
	symbols  map[models.Symbol]map[models.Tier]struct{}
	inflight map[fetchKey]struct{}
	lastTick map[models.Tier]time.Time
	slots    map[models.Tier]chan struct{}
	running  bool
	gen      uint64
	cancel   context.CancelFunc

	loops   sync.WaitGroup
	fetches sync.WaitGroup
}

type SchedulerOption func(*Scheduler)

// WithWorkers caps concurrent fetches per tier.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithFetchTimeout bounds each adapter call.
func WithFetchTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetry sets the retries per tick and the delay between them.
func WithRetry(maxRetries int, b *retry.Backoff) SchedulerOption {
	return func(s *Scheduler) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if b != nil {
			s.backoff = b
		}
	}
}

func WithSchedulerMetrics(m drepo.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithSchedulerLogger(l *logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// NewScheduler creates a stopped scheduler. Tiers with a non-positive period are not scheduled.
func NewScheduler(source drepo.SourceAdapter, sink drepo.SampleSink, periods map[models.Tier]time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		source:     source,
		sink:       sink,
		periods:    make(map[models.Tier]time.Duration, len(periods)),
		workers:    DefaultWorkers,
		timeout:    DefaultFetchTimeout,
		maxRetries: DefaultMaxRetries,
		backoff:    retry.New(time.Second, 30*time.Second, 0.2),
		metrics:    drepo.NopMetrics{},
		log:        logger.Nop(),
		symbols:    make(map[models.Symbol]map[models.Tier]struct{}),
		inflight:   make(map[fetchKey]struct{}),
		lastTick:   make(map[models.Tier]time.Time),
		slots:      make(map[models.Tier]chan struct{}),
	}
	for tier, p := range periods {
		if p > 0 {
			s.periods[tier] = p
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	for tier := range s.periods {
		s.slots[tier] = make(chan struct{}, s.workers)
	}
	return s
}

// Tiers returns the scheduled tiers, fastest first.
func (s *Scheduler) Tiers() []models.Tier {
	out := make([]models.Tier, 0, len(s.periods))
	for _, t := range models.AllTiers {
		if _, ok := s.periods[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Add subscribes symbol on tiers, or on every scheduled tier when none are given.
// It is picked up by the next tick of each tier. Tiers without a period are
// ignored, and a symbol left with none is not subscribed.
func (s *Scheduler) Add(symbol models.Symbol, tiers ...models.Tier) []models.Tier {
	if len(tiers) == 0 {
		tiers = s.Tiers()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.symbols[symbol]
	if !ok {
		set = make(map[models.Tier]struct{}, len(tiers))
	}
	for _, t := range tiers {
		if s.Scheduled(t) {
			set[t] = struct{}{}
		}
	}
	if len(set) > 0 {
		s.symbols[symbol] = set
	}
	return s.tiersLocked(symbol)
}

// Scheduled reports whether tier has a fetch loop.
func (s *Scheduler) Scheduled(tier models.Tier) bool {
	_, ok := s.periods[tier]
	return ok
}

// Remove unsubscribes symbol. In-flight fetches finish and their results are dropped.
func (s *Scheduler) Remove(symbol models.Symbol) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.symbols[symbol]
	delete(s.symbols, symbol)
	return ok
}

func (s *Scheduler) Subscribed(symbol models.Symbol) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.symbols[symbol]
	return ok
}

// SymbolTiers returns the tiers symbol is subscribed on, fastest first.
func (s *Scheduler) SymbolTiers(symbol models.Symbol) []models.Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tiersLocked(symbol)
}

func (s *Scheduler) tiersLocked(symbol models.Symbol) []models.Tier {
	set := s.symbols[symbol]
	out := make([]models.Tier, 0, len(set))
	for _, t := range models.AllTiers {
		if _, ok := set[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Symbols returns subscribed symbols in lexical order.
func (s *Scheduler) Symbols() []models.Symbol {
	s.mu.RLock()
	out := make([]models.Symbol, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ActiveLoops is the number of tier loops while running.
func (s *Scheduler) ActiveLoops() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return len(s.periods)
}

// LastTicks returns, per tier, the time of the last successful fetch.
func (s *Scheduler) LastTicks() map[models.Tier]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Tier]time.Time, len(s.lastTick))
	for t, ts := range s.lastTick {
		out[t] = ts
	}
	return out
}

// Start launches the tier loops. Each loop fetches once immediately, then every period.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return models.ErrEngineRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.gen++
	s.cancel = cancel
	s.mu.Unlock()

	for tier, period := range s.periods {
		s.loops.Add(1)
		go s.loop(loopCtx, tier, period)
	}
	s.log.Info("scheduler started", logger.Int("tiers", len(s.periods)), logger.Int("workers", s.workers))
	return nil
}

// Stop ends the tier loops without waiting for in-flight fetches.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.loops.Wait()
	s.log.Info("scheduler stopped")
}

// Drain waits for in-flight fetches or until ctx is done.
func (s *Scheduler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.fetches.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, tier models.Tier, period time.Duration) {
	defer s.loops.Done()

	s.dispatchTier(ctx, tier)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchTier(ctx, tier)
		}
	}
}

func (s *Scheduler) dispatchTier(ctx context.Context, tier models.Tier) {
	s.fetches.Add(1)
	go func() {
		defer s.fetches.Done()
		s.FetchTier(ctx, tier)
	}()
}

// FetchTier runs one tick of tier and returns once every due symbol has finished.
func (s *Scheduler) FetchTier(ctx context.Context, tier models.Tier) {
	slots, ok := s.slots[tier]
	if !ok {
		return
	}
	s.mu.Lock()
	gen := s.gen
	due := make([]models.Symbol, 0, len(s.symbols))
	for sym, tiers := range s.symbols {
		if _, ok := tiers[tier]; !ok {
			continue
		}
		k := fetchKey{sym, tier}
		if _, busy := s.inflight[k]; busy {
			s.metrics.RecordFetch(s.source.Name(), tier, drepo.OutcomeSkipped)
			continue
		}
		s.inflight[k] = struct{}{}
		due = append(due, sym)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sym := range due {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			s.release(fetchKey{sym, tier})
			continue
		}
		wg.Add(1)
		go func(sym models.Symbol) {
			defer wg.Done()
			defer func() { <-slots }()
			defer s.release(fetchKey{sym, tier})
			s.fetch(ctx, gen, sym, tier)
		}(sym)
	}
	wg.Wait()
}

func (s *Scheduler) release(k fetchKey) {
	s.mu.Lock()
	delete(s.inflight, k)
	s.mu.Unlock()
}

// fetch calls the adapter with retries. ctx governs scheduling only; the call
// itself runs to its own timeout so in-flight requests complete after Stop.
func (s *Scheduler) fetch(ctx context.Context, gen uint64, symbol models.Symbol, tier models.Tier) {
	name := s.source.Name()
	callBase := context.WithoutCancel(ctx)

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := s.backoff.Wait(ctx, attempt); err != nil {
				return
			}
		}

		callCtx, cancel := context.WithTimeout(callBase, s.timeout)
		sample, err := s.source.Fetch(callCtx, symbol, tier)
		cancel()

		if !s.accepting(gen, symbol, tier) {
			s.metrics.RecordFetch(name, tier, drepo.OutcomeDiscarded)
			return
		}

		if err == nil {
			s.metrics.RecordFetch(name, tier, drepo.OutcomeSuccess)
			s.mu.Lock()
			s.lastTick[tier] = time.Now()
			s.mu.Unlock()
			if err := s.sink.Ingest(callBase, tier, sample); err != nil {
				s.log.Warn("ingest failed",
					logger.String("symbol", symbol.String()),
					logger.String("tier", string(tier)),
					logger.Error(err),
				)
			}
			return
		}

		outcome := drepo.OutcomeFailure
		if errors.Is(err, models.ErrFetchTimeout) || errors.Is(err, context.DeadlineExceeded) {
			outcome = drepo.OutcomeTimeout
		}
		s.metrics.RecordFetch(name, tier, outcome)
		s.log.Debug("fetch attempt failed",
			logger.String("symbol", symbol.String()),
			logger.String("tier", string(tier)),
			logger.Int("attempt", attempt+1),
			logger.Error(err),
		)

		if errors.Is(err, models.ErrUnsupportedMarket) || errors.Is(err, models.ErrInvalidSymbol) {
			return
		}
	}

	s.log.Warn("fetch skipped for this tick",
		logger.String("symbol", symbol.String()),
		logger.String("tier", string(tier)),
		logger.Int("attempts", s.maxRetries+1),
	)
}

func (s *Scheduler) accepting(gen uint64, symbol models.Symbol, tier models.Tier) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running || s.gen != gen {
		return false
	}
	_, ok := s.symbols[symbol][tier]
	return ok
}
