// Package series owns the per (symbol, tier) rolling sample buffers and their indicators.
package series

import (
	"fmt"
	"sync"
	"time"

	"QuantWatch/internal/domain/models"
	"QuantWatch/internal/service/indicator"
)

// DefaultCapacity is used for tiers without a configured capacity.
const DefaultCapacity = 200

// Status of an append.
type Status int

const (
	Accepted Status = iota
	Stale
)

func (s Status) String() string {
	if s == Accepted {
		return "accepted"
	}
	return "stale"
}

// AppendResult carries the indicator snapshots around an append.
// On Stale, Previous and Current are both the unchanged snapshot.
type AppendResult struct {
	Status   Status
	Previous models.IndicatorSnapshot
	Current  models.IndicatorSnapshot
}

type key struct {
	symbol models.Symbol
	tier   models.Tier
}

type series struct {
	mu     sync.RWMutex
	buf    []models.Sample
	head   int
	n      int
	last   time.Time
	engine *indicator.Engine
	snap   models.IndicatorSnapshot
}

// Store is a map of independently locked series. Appends to one series are
// serialized; appends to different series never contend beyond map lookup.
type Store struct {
	mu         sync.RWMutex
	series     map[key]*series
	capacities map[models.Tier]int
	fallback   int
}

// Option configures Store.
type Option func(*Store)

// WithCapacity sets the capacity for one tier.
func WithCapacity(tier models.Tier, n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacities[tier] = n
		}
	}
}

// WithDefaultCapacity sets the capacity for tiers without their own.
func WithDefaultCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.fallback = n
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		series:     make(map[key]*series),
		capacities: make(map[models.Tier]int),
		fallback:   DefaultCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capacity returns the configured capacity of tier.
func (s *Store) Capacity(tier models.Tier) int {
	if n, ok := s.capacities[tier]; ok {
		return n
	}
	return s.fallback
}

func (s *Store) entry(k key, create bool) *series {
	s.mu.RLock()
	e, ok := s.series[k]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.series[k]; ok {
		return e
	}
	e = &series{
		buf:    make([]models.Sample, s.Capacity(k.tier)),
		engine: indicator.NewEngine(),
	}
	s.series[k] = e
	return e
}

// Append pushes sample onto the (symbol, tier) series and recomputes its indicators.
// A sample whose timestamp is not after the last accepted one is rejected as Stale
// and leaves the series untouched.
func (s *Store) Append(symbol models.Symbol, tier models.Tier, sample models.Sample) (AppendResult, error) {
	if sample.Symbol != "" && sample.Symbol != symbol {
		return AppendResult{}, fmt.Errorf("append %s: %w: sample for %s", symbol, models.ErrInvalidSample, sample.Symbol)
	}
	if sample.Timestamp.IsZero() {
		return AppendResult{}, fmt.Errorf("append %s: %w: zero timestamp", symbol, models.ErrInvalidSample)
	}
	sample.Symbol = symbol

	e := s.entry(key{symbol: symbol, tier: tier}, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.snap
	if e.n > 0 && !sample.Timestamp.After(e.last) {
		return AppendResult{Status: Stale, Previous: prev, Current: prev}, nil
	}

	capacity := len(e.buf)
	e.buf[e.head] = sample
	e.head = (e.head + 1) % capacity
	if e.n < capacity {
		e.n++
	}
	e.last = sample.Timestamp
	e.snap = e.engine.Update(sample)

	return AppendResult{Status: Accepted, Previous: prev, Current: e.snap}, nil
}

// Get returns a point-in-time copy of the series, oldest sample first.
func (s *Store) Get(symbol models.Symbol, tier models.Tier) (models.SeriesView, bool) {
	return s.Tail(symbol, tier, 0)
}

// Tail is Get limited to the newest limit samples. limit <= 0 means all.
func (s *Store) Tail(symbol models.Symbol, tier models.Tier, limit int) (models.SeriesView, bool) {
	e := s.entry(key{symbol: symbol, tier: tier}, false)
	if e == nil {
		return models.SeriesView{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	n := e.n
	if limit > 0 && limit < n {
		n = limit
	}
	capacity := len(e.buf)
	out := make([]models.Sample, n)
	start := (e.head - n + capacity) % capacity
	for i := 0; i < n; i++ {
		out[i] = e.buf[(start+i)%capacity]
	}
	return models.SeriesView{
		Symbol:     symbol,
		Tier:       tier,
		Capacity:   capacity,
		Samples:    out,
		Indicators: e.snap,
	}, true
}

// LastUpdate returns the newest accepted sample timestamp across the tiers of symbol.
func (s *Store) LastUpdate(symbol models.Symbol) (time.Time, bool) {
	var last time.Time
	found := false
	for _, tier := range models.AllTiers {
		e := s.entry(key{symbol: symbol, tier: tier}, false)
		if e == nil {
			continue
		}
		e.mu.RLock()
		if e.n > 0 && e.last.After(last) {
			last, found = e.last, true
		}
		e.mu.RUnlock()
	}
	return last, found
}

// Remove drops every series of symbol.
func (s *Store) Remove(symbol models.Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.series {
		if k.symbol == symbol {
			delete(s.series, k)
		}
	}
}

// Len returns the number of series held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}
