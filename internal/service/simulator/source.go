// Package simulator generates random-walk market data for demos and tests.
package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"QuantWatch/internal/domain/models"
)

const Name = "simulator"

// Profile describes how one instrument moves.
type Profile struct {
	BasePrice  float64
	Volatility float64 // max fractional move per sample
	VolumeBase float64
}

// DefaultProfiles are keyed by symbol code.
var DefaultProfiles = map[string]Profile{
	"AAPL":     {BasePrice: 185, Volatility: 0.01, VolumeBase: 10_000_000},
	"MSFT":     {BasePrice: 420, Volatility: 0.012, VolumeBase: 8_000_000},
	"NVDA":     {BasePrice: 650, Volatility: 0.025, VolumeBase: 5_000_000},
	"TSLA":     {BasePrice: 210, Volatility: 0.03, VolumeBase: 4_000_000},
	"BABA":     {BasePrice: 78, Volatility: 0.02, VolumeBase: 6_000_000},
	"XPEV":     {BasePrice: 12.5, Volatility: 0.04, VolumeBase: 2_000_000},
	"9988.HK":  {BasePrice: 85, Volatility: 0.02, VolumeBase: 5_000_000},
	"0700.HK":  {BasePrice: 320, Volatility: 0.015, VolumeBase: 8_000_000},
	"1810.HK":  {BasePrice: 15.5, Volatility: 0.03, VolumeBase: 3_000_000},
	"BTC/USDT": {BasePrice: 43_000, Volatility: 0.02, VolumeBase: 2_000},
	"ETH/USDT": {BasePrice: 2_300, Volatility: 0.025, VolumeBase: 20_000},
	"^GSPC":    {BasePrice: 4_700, Volatility: 0.005, VolumeBase: 0},
	"^IXIC":    {BasePrice: 14_800, Volatility: 0.007, VolumeBase: 0},
}

var fallback = Profile{BasePrice: 100, Volatility: 0.02, VolumeBase: 1_000_000}

type state struct {
	price float64
	last  time.Time
}

// Source is a SourceAdapter producing a bounded random walk per (symbol, tier).
type Source struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	profiles    map[string]Profile
	states      map[string]*state
	failureRate float64
	latency     time.Duration
	now         func() time.Time
}

// Option configures Source.
type Option func(*Source)

// WithSeed makes the walk reproducible.
func WithSeed(seed int64) Option {
	return func(s *Source) { s.rnd = rand.New(rand.NewSource(seed)) }
}

// WithFailureRate makes a fraction of fetches fail with ErrFetchFailure.
func WithFailureRate(p float64) Option {
	return func(s *Source) { s.failureRate = p }
}

// WithLatency delays every fetch, honoring the context deadline.
func WithLatency(d time.Duration) Option {
	return func(s *Source) { s.latency = d }
}

// WithProfile overrides or adds one profile.
func WithProfile(code string, p Profile) Option {
	return func(s *Source) { s.profiles[code] = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

func New(opts ...Option) *Source {
	s := &Source{
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		profiles: make(map[string]Profile, len(DefaultProfiles)),
		states:   make(map[string]*state),
		now:      time.Now,
	}
	for k, v := range DefaultProfiles {
		s.profiles[k] = v
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Name() string { return Name }

func (s *Source) Fetch(ctx context.Context, symbol models.Symbol, tier models.Tier) (models.Sample, error) {
	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return models.Sample{}, ctx.Err()
		case <-t.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failureRate > 0 && s.rnd.Float64() < s.failureRate {
		return models.Sample{}, fmt.Errorf("simulate %s: %w", symbol, models.ErrFetchFailure)
	}

	p, ok := s.profiles[symbol.Code()]
	if !ok {
		p = fallback
	}

	key := string(symbol) + "|" + string(tier)
	st, ok := s.states[key]
	if !ok {
		st = &state{price: p.BasePrice * (1 + s.uniform(-0.05, 0.05))}
		s.states[key] = st
	}
	st.price *= 1 + s.uniform(-p.Volatility, p.Volatility)

	// strictly increasing per key even when the clock does not move
	ts := s.now().UTC()
	if !ts.After(st.last) {
		ts = st.last.Add(time.Millisecond)
	}
	st.last = ts

	high := st.price * (1 + s.uniform(0, p.Volatility/2))
	low := st.price * (1 - s.uniform(0, p.Volatility/2))

	return models.Sample{
		Symbol:    symbol,
		Timestamp: ts,
		Price:     st.price,
		Volume:    p.VolumeBase * s.uniform(0.5, 1.5),
		High:      models.Float(high),
		Low:       models.Float(low),
		Source:    Name,
	}, nil
}

func (s *Source) uniform(lo, hi float64) float64 {
	return lo + s.rnd.Float64()*(hi-lo)
}
