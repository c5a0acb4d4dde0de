package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"QuantWatch/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkStaysWithinVolatility(t *testing.T) {
	frozen := time.Unix(1_700_000_000, 0)
	s := New(WithSeed(1), WithClock(func() time.Time { return frozen }))

	prev, err := s.Fetch(context.Background(), "stock:AAPL", models.TierRealtime)
	require.NoError(t, err)
	assert.InDelta(t, 185, prev.Price, 185*0.07)

	for i := 0; i < 200; i++ {
		cur, err := s.Fetch(context.Background(), "stock:AAPL", models.TierRealtime)
		require.NoError(t, err)
		assert.True(t, cur.Timestamp.After(prev.Timestamp), "timestamps strictly increase")
		assert.LessOrEqual(t, abs(cur.Price/prev.Price-1), 0.01+1e-12)
		assert.Greater(t, cur.Volume, 0.0)
		prev = cur
	}
}

func TestSameSeedSameWalk(t *testing.T) {
	a, b := New(WithSeed(9)), New(WithSeed(9))
	for i := 0; i < 10; i++ {
		x, _ := a.Fetch(context.Background(), "crypto:BTC/USDT", models.TierMinute)
		y, _ := b.Fetch(context.Background(), "crypto:BTC/USDT", models.TierMinute)
		assert.Equal(t, x.Price, y.Price)
	}
}

func TestFailureRateAndLatency(t *testing.T) {
	s := New(WithSeed(3), WithFailureRate(1))
	_, err := s.Fetch(context.Background(), "stock:X", models.TierRealtime)
	assert.True(t, errors.Is(err, models.ErrFetchFailure))

	slow := New(WithLatency(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = slow.Fetch(ctx, "stock:X", models.TierRealtime)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
