package series

import (
	"errors"
	"sync"
	"testing"
	"time"

	"QuantWatch/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func tick(sym models.Symbol, i int, price float64) models.Sample {
	return models.Sample{
		Symbol:    sym,
		Timestamp: base.Add(time.Duration(i) * time.Second),
		Price:     price,
		Volume:    100,
	}
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	s := New(WithCapacity(models.TierRealtime, 50))
	sym := models.Symbol("crypto:BTCUSDT")

	for i := 0; i < 80; i++ {
		res, err := s.Append(sym, models.TierRealtime, tick(sym, i, float64(i)))
		require.NoError(t, err)
		require.Equal(t, Accepted, res.Status)
	}

	view, ok := s.Get(sym, models.TierRealtime)
	require.True(t, ok)
	assert.Equal(t, 50, view.Capacity)
	require.Len(t, view.Samples, 50)
	assert.Equal(t, 30.0, view.Samples[0].Price)
	assert.Equal(t, 79.0, view.Samples[49].Price)
	for i := 1; i < len(view.Samples); i++ {
		assert.True(t, view.Samples[i].Timestamp.After(view.Samples[i-1].Timestamp))
	}
	assert.Equal(t, 80, view.Indicators.Samples)
}

func TestStaleSampleLeavesSeriesUntouched(t *testing.T) {
	s := New()
	sym := models.Symbol("stock:AAPL")

	for i := 0; i < 25; i++ {
		_, err := s.Append(sym, models.TierMinute, tick(sym, i, 100+float64(i)))
		require.NoError(t, err)
	}
	before, _ := s.Get(sym, models.TierMinute)

	for _, i := range []int{24, 10, 0} {
		res, err := s.Append(sym, models.TierMinute, tick(sym, i, 999))
		require.NoError(t, err)
		assert.Equal(t, Stale, res.Status)
		assert.Equal(t, res.Previous, res.Current)
	}

	after, _ := s.Get(sym, models.TierMinute)
	assert.Equal(t, before, after)
}

func TestAppendReturnsPreviousSnapshot(t *testing.T) {
	s := New()
	sym := models.Symbol("stock:MSFT")

	first, err := s.Append(sym, models.TierRealtime, tick(sym, 0, 10))
	require.NoError(t, err)
	assert.False(t, first.Previous.LastPrice.Valid)

	second, err := s.Append(sym, models.TierRealtime, tick(sym, 1, 11))
	require.NoError(t, err)
	prev, ok := second.Previous.LastPrice.Get()
	require.True(t, ok)
	assert.Equal(t, 10.0, prev)
	curr, _ := second.Current.LastPrice.Get()
	assert.Equal(t, 11.0, curr)
}

func TestAppendRejectsMismatchedSymbol(t *testing.T) {
	s := New()
	_, err := s.Append("stock:AAPL", models.TierRealtime, tick("stock:MSFT", 0, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidSample))

	_, err = s.Append("stock:AAPL", models.TierRealtime, models.Sample{Price: 1})
	assert.True(t, errors.Is(err, models.ErrInvalidSample))
}

func TestTiersAreIndependent(t *testing.T) {
	s := New()
	sym := models.Symbol("index:SPX")

	_, err := s.Append(sym, models.TierRealtime, tick(sym, 5, 1))
	require.NoError(t, err)
	res, err := s.Append(sym, models.TierHour, tick(sym, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, Accepted, res.Status)

	last, ok := s.LastUpdate(sym)
	require.True(t, ok)
	assert.Equal(t, base.Add(5*time.Second), last)
}

func TestTailAndRemove(t *testing.T) {
	s := New()
	sym := models.Symbol("stock:NVDA")
	for i := 0; i < 10; i++ {
		_, _ = s.Append(sym, models.TierDay, tick(sym, i, float64(i)))
	}

	view, ok := s.Tail(sym, models.TierDay, 3)
	require.True(t, ok)
	require.Len(t, view.Samples, 3)
	assert.Equal(t, []float64{7, 8, 9}, []float64{view.Samples[0].Price, view.Samples[1].Price, view.Samples[2].Price})

	s.Remove(sym)
	_, ok = s.Get(sym, models.TierDay)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	sym := models.Symbol("stock:IBM")
	_, _ = s.Append(sym, models.TierRealtime, tick(sym, 0, 1))

	view, _ := s.Get(sym, models.TierRealtime)
	view.Samples[0].Price = 42

	again, _ := s.Get(sym, models.TierRealtime)
	assert.Equal(t, 1.0, again.Samples[0].Price)
}

func TestConcurrentAppendsDifferentKeys(t *testing.T) {
	s := New()
	syms := []models.Symbol{"stock:A", "stock:B", "crypto:C", "index:D"}

	var wg sync.WaitGroup
	for _, sym := range syms {
		for _, tier := range models.AllTiers {
			wg.Add(1)
			go func(sym models.Symbol, tier models.Tier) {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					_, err := s.Append(sym, tier, tick(sym, i, float64(i)))
					assert.NoError(t, err)
				}
			}(sym, tier)
		}
	}
	wg.Wait()

	for _, sym := range syms {
		for _, tier := range models.AllTiers {
			view, ok := s.Get(sym, tier)
			require.True(t, ok)
			assert.Equal(t, 200, view.Indicators.Samples)
			assert.Len(t, view.Samples, DefaultCapacity)
		}
	}
}
