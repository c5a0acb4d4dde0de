package middleware

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"QuantWatch/internal/domain/models"
	"QuantWatch/internal/service/ratelimit"
	"QuantWatch/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	calls  int
	sample models.Sample
	err    error
	wait   time.Duration
}

func (s *stubAdapter) Name() string { return "stub" }

func (s *stubAdapter) Fetch(ctx context.Context, symbol models.Symbol, _ models.Tier) (models.Sample, error) {
	s.calls++
	if s.wait > 0 {
		select {
		case <-ctx.Done():
			return models.Sample{}, ctx.Err()
		case <-time.After(s.wait):
		}
	}
	if s.err != nil {
		return models.Sample{}, s.err
	}
	out := s.sample
	if out.Symbol == "" {
		out.Symbol = symbol
	}
	return out, nil
}

func TestPipelineValidatesSamples(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0).UTC()
	cases := []struct {
		name   string
		sample models.Sample
		ok     bool
	}{
		{"valid", models.Sample{Timestamp: ts, Price: 10, Volume: 5}, true},
		{"zero volume allowed", models.Sample{Timestamp: ts, Price: 10}, true},
		{"zero price", models.Sample{Timestamp: ts, Price: 0}, false},
		{"negative volume", models.Sample{Timestamp: ts, Price: 10, Volume: -1}, false},
		{"zero timestamp", models.Sample{Price: 10}, false},
		{"other symbol", models.Sample{Symbol: "stock:MSFT", Timestamp: ts, Price: 10}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewSourcePipeline(&stubAdapter{sample: tc.sample})
			s, err := p.Fetch(context.Background(), "stock:AAPL", models.TierRealtime)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, models.Symbol("stock:AAPL"), s.Symbol)
				return
			}
			assert.True(t, errors.Is(err, models.ErrFetchFailure))
			assert.True(t, errors.Is(err, models.ErrInvalidSample))
		})
	}
}

func TestPipelineMapsErrors(t *testing.T) {
	p := NewSourcePipeline(&stubAdapter{err: fmt.Errorf("http 503")})
	_, err := p.Fetch(context.Background(), "stock:AAPL", models.TierMinute)
	assert.True(t, errors.Is(err, models.ErrFetchFailure))

	slow := NewSourcePipeline(&stubAdapter{wait: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = slow.Fetch(ctx, "stock:AAPL", models.TierMinute)
	assert.True(t, errors.Is(err, models.ErrFetchTimeout))

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = slow.Fetch(ctx, "stock:AAPL", models.TierMinute)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, models.ErrFetchFailure))
}

func TestPipelineThrottlesPerProvider(t *testing.T) {
	a := &stubAdapter{sample: models.Sample{Timestamp: time.Unix(1, 0), Price: 1}}
	p := NewSourcePipeline(a, WithRateLimit(ratelimit.New(), 2, 0.001))

	for i := 0; i < 2; i++ {
		_, err := p.Fetch(context.Background(), "stock:AAPL", models.TierRealtime)
		require.NoError(t, err)
	}
	_, err := p.Fetch(context.Background(), "stock:MSFT", models.TierRealtime)
	assert.True(t, errors.Is(err, ErrThrottled))
	assert.True(t, errors.Is(err, models.ErrFetchFailure))
	assert.Equal(t, 2, a.calls)
}

func TestPipelineServesCachedQuote(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()

	a := &stubAdapter{sample: models.Sample{Timestamp: time.Unix(100, 0).UTC(), Price: 42, Volume: 7}}
	p := NewSourcePipeline(a, WithQuoteCache(mc, time.Minute))

	first, err := p.Fetch(context.Background(), "crypto:BTC/USDT", models.TierRealtime)
	require.NoError(t, err)
	second, err := p.Fetch(context.Background(), "crypto:BTC/USDT", models.TierHour)
	require.NoError(t, err)

	assert.Equal(t, 1, a.calls)
	assert.Equal(t, first.Price, second.Price)
	assert.True(t, first.Timestamp.Equal(second.Timestamp))

	_, err = p.Fetch(context.Background(), "crypto:ETH/USDT", models.TierRealtime)
	require.NoError(t, err)
	assert.Equal(t, 2, a.calls)
}
