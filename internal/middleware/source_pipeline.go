package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"QuantWatch/internal/domain/models"
	domrepo "QuantWatch/internal/domain/repository"
	"QuantWatch/internal/service/ratelimit"
	"QuantWatch/pkg/cache"
)

// ErrThrottled is joined with ErrFetchFailure when the provider budget is spent.
var ErrThrottled = errors.New("source throttled")

const quoteKeyPrefix = "quote"

// SourcePipeline sits between the scheduler and an upstream adapter.
// It throttles per provider, serves recent quotes from cache and validates samples.
type SourcePipeline struct {
	adapter domrepo.SourceAdapter
	metrics domrepo.Metrics

	limiter *ratelimit.Limiter
	burst   float64
	perSec  float64

	cache    cache.Service
	cacheTTL time.Duration

	now func() time.Time
}

type PipelineOption func(*SourcePipeline)

// WithRateLimit allows burst calls at once and perSec calls per second afterwards.
func WithRateLimit(l *ratelimit.Limiter, burst, perSec float64) PipelineOption {
	return func(p *SourcePipeline) {
		if l != nil && burst > 0 && perSec > 0 {
			p.limiter, p.burst, p.perSec = l, burst, perSec
		}
	}
}

// WithQuoteCache reuses a fetched sample for ttl. Keys are shared across tiers.
func WithQuoteCache(c cache.Service, ttl time.Duration) PipelineOption {
	return func(p *SourcePipeline) {
		if c != nil && ttl > 0 {
			p.cache, p.cacheTTL = c, ttl
		}
	}
}

func WithPipelineMetrics(m domrepo.Metrics) PipelineOption {
	return func(p *SourcePipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

func NewSourcePipeline(adapter domrepo.SourceAdapter, opts ...PipelineOption) *SourcePipeline {
	p := &SourcePipeline{
		adapter: adapter,
		metrics: domrepo.NopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *SourcePipeline) Name() string { return p.adapter.Name() }

// Fetch returns a validated sample. Failures are ErrFetchTimeout or ErrFetchFailure;
// a cancelled parent context is returned unchanged.
func (p *SourcePipeline) Fetch(ctx context.Context, symbol models.Symbol, tier models.Tier) (models.Sample, error) {
	key := cache.GenerateKeyWithParams(quoteKeyPrefix, p.adapter.Name(), symbol)
	if p.cache != nil {
		var cached models.Sample
		if err := p.cache.Get(ctx, key, &cached); err == nil && cached.Symbol == symbol {
			return cached, nil
		}
	}

	if p.limiter != nil && !p.limiter.Allow(p.adapter.Name(), p.burst, p.perSec) {
		p.metrics.RecordError("source_throttled")
		return models.Sample{}, fmt.Errorf("fetch %s: %w: %w", symbol, models.ErrFetchFailure, ErrThrottled)
	}

	start := p.now()
	s, err := p.adapter.Fetch(ctx, symbol, tier)
	p.metrics.RecordFetchLatency(p.adapter.Name(), p.now().Sub(start).Seconds())
	if err != nil {
		return models.Sample{}, classify(ctx, symbol, err)
	}

	if s.Symbol == "" {
		s.Symbol = symbol
	}
	if err := validateSample(symbol, s); err != nil {
		p.metrics.RecordError("source_invalid_sample")
		return models.Sample{}, fmt.Errorf("fetch %s: %w: %w", symbol, models.ErrFetchFailure, err)
	}

	if p.cache != nil {
		// a cache outage only costs the next upstream call
		_ = p.cache.Set(ctx, key, s, p.cacheTTL)
	}
	return s, nil
}

func classify(ctx context.Context, symbol models.Symbol, err error) error {
	if errors.Is(err, models.ErrFetchTimeout) || errors.Is(err, models.ErrFetchFailure) {
		return err
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("fetch %s: %w: %v", symbol, models.ErrFetchTimeout, err)
	}
	return fmt.Errorf("fetch %s: %w: %v", symbol, models.ErrFetchFailure, err)
}

func validateSample(symbol models.Symbol, s models.Sample) error {
	switch {
	case s.Symbol != symbol:
		return fmt.Errorf("%w: symbol %q, want %q", models.ErrInvalidSample, s.Symbol, symbol)
	case s.Timestamp.IsZero():
		return fmt.Errorf("%w: zero timestamp", models.ErrInvalidSample)
	case !(s.Price > 0) || math.IsInf(s.Price, 0):
		return fmt.Errorf("%w: price %v", models.ErrInvalidSample, s.Price)
	case s.Volume < 0 || math.IsNaN(s.Volume):
		return fmt.Errorf("%w: volume %v", models.ErrInvalidSample, s.Volume)
	}
	return nil
}
