package indicator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"QuantWatch/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func sampleAt(i int, price, volume float64) models.Sample {
	return models.Sample{
		Symbol:    "stock:TEST",
		Timestamp: time.Unix(1_700_000_000+int64(i), 0),
		Price:     price,
		Volume:    volume,
	}
}

func randomWalk(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		p *= 1 + (r.Float64()-0.5)*0.04
		out[i] = p
	}
	return out
}

func naiveSMA(values []float64, k int) float64 {
	var s float64
	for _, v := range values[len(values)-k:] {
		s += v
	}
	return s / float64(k)
}

func naiveStd(values []float64, k int) float64 {
	last := values[len(values)-k:]
	m := naiveSMA(values, k)
	var ss float64
	for _, v := range last {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(k-1))
}

func TestSMAMatchesNaiveReference(t *testing.T) {
	prices := randomWalk(600, 7)
	e := NewEngine()
	for i, p := range prices {
		snap := e.Update(sampleAt(i, p, 1000))
		n := i + 1

		if n < SMAShortPeriod {
			assert.False(t, snap.SMA20.Valid, "sma20 must be unavailable at %d samples", n)
		} else {
			got, ok := snap.SMA20.Get()
			require.True(t, ok)
			assert.InDelta(t, naiveSMA(prices[:n], SMAShortPeriod), got, eps)
		}
		if n < SMALongPeriod {
			assert.False(t, snap.SMA50.Valid)
		} else {
			got, ok := snap.SMA50.Get()
			require.True(t, ok)
			assert.InDelta(t, naiveSMA(prices[:n], SMALongPeriod), got, eps)
		}
	}
}

func TestEMASeededBySMA(t *testing.T) {
	prices := randomWalk(40, 3)
	e := NewEngine()
	var snap models.IndicatorSnapshot
	for i := 0; i < EMAFastPeriod-1; i++ {
		snap = e.Update(sampleAt(i, prices[i], 1))
		require.False(t, snap.EMA12.Valid)
	}

	snap = e.Update(sampleAt(EMAFastPeriod-1, prices[EMAFastPeriod-1], 1))
	seed, ok := snap.EMA12.Get()
	require.True(t, ok)
	assert.InDelta(t, naiveSMA(prices[:EMAFastPeriod], EMAFastPeriod), seed, eps)

	next := prices[EMAFastPeriod]
	snap = e.Update(sampleAt(EMAFastPeriod, next, 1))
	alpha := 2.0 / float64(EMAFastPeriod+1)
	got, _ := snap.EMA12.Get()
	assert.InDelta(t, alpha*next+(1-alpha)*seed, got, eps)
}

func TestMACDWarmup(t *testing.T) {
	prices := randomWalk(60, 11)
	e := NewEngine()
	for i, p := range prices {
		snap := e.Update(sampleAt(i, p, 1))
		n := i + 1
		assert.Equal(t, n >= EMASlowPeriod, snap.MACD.Valid, "macd at %d", n)
		assert.Equal(t, n >= EMASlowPeriod+SignalPeriod-1, snap.MACDSignal.Valid, "signal at %d", n)
		assert.Equal(t, snap.MACDSignal.Valid, snap.MACDHist.Valid)
		if snap.MACD.Valid {
			f, _ := snap.EMA12.Get()
			s, _ := snap.EMA26.Get()
			m, _ := snap.MACD.Get()
			assert.InDelta(t, f-s, m, eps)
		}
	}
}

func naiveWilderRSI(prices []float64, period int) (float64, bool) {
	if len(prices) < period+1 {
		return 0, false
	}
	var g, l float64
	for i := 1; i <= period; i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			g += d
		} else {
			l -= d
		}
	}
	g /= float64(period)
	l /= float64(period)
	for i := period + 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		var gain, loss float64
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		g = (g*float64(period-1) + gain) / float64(period)
		l = (l*float64(period-1) + loss) / float64(period)
	}
	if l == 0 {
		return 100, true
	}
	return 100 - 100/(1+g/l), true
}

func TestRSIBoundedAndMatchesReference(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 4, 5} {
		prices := randomWalk(300, seed)
		e := NewEngine()
		for i, p := range prices {
			snap := e.Update(sampleAt(i, p, 1))
			want, wantOK := naiveWilderRSI(prices[:i+1], RSIPeriod)
			got, ok := snap.RSI14.Get()
			require.Equal(t, wantOK, ok)
			if !ok {
				continue
			}
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)
			assert.InDelta(t, want, got, 1e-6)
		}
	}
}

func TestRSIWithoutLossesIs100(t *testing.T) {
	e := NewEngine()
	var snap models.IndicatorSnapshot
	for i := 0; i <= RSIPeriod; i++ {
		snap = e.Update(sampleAt(i, 100+float64(i), 1))
	}
	got, ok := snap.RSI14.Get()
	require.True(t, ok)
	assert.Equal(t, 100.0, got)

	e = NewEngine()
	for i := 0; i <= RSIPeriod; i++ {
		snap = e.Update(sampleAt(i, 50, 1))
	}
	got, ok = snap.RSI14.Get()
	require.True(t, ok)
	assert.Equal(t, 100.0, got)
}

func TestBollingerAndVolumeBaseline(t *testing.T) {
	prices := randomWalk(120, 21)
	r := rand.New(rand.NewSource(21))
	volumes := make([]float64, len(prices))
	e := NewEngine()
	for i, p := range prices {
		volumes[i] = 1000 + r.Float64()*500
		snap := e.Update(sampleAt(i, p, volumes[i]))
		n := i + 1
		if n < BollPeriod {
			assert.False(t, snap.BollUpper.Valid)
			assert.False(t, snap.VolumeAvg20.Valid)
			continue
		}
		mid, _ := snap.BollMiddle.Get()
		up, _ := snap.BollUpper.Get()
		lo, _ := snap.BollLower.Get()
		sd := naiveStd(prices[:n], BollPeriod)
		assert.InDelta(t, naiveSMA(prices[:n], BollPeriod), mid, eps)
		assert.InDelta(t, mid+BollWidth*sd, up, 1e-6)
		assert.InDelta(t, mid-BollWidth*sd, lo, 1e-6)

		vol, ok := snap.VolumeAvg20.Get()
		require.True(t, ok)
		assert.InDelta(t, naiveSMA(volumes[:n], VolumePeriod), vol, 1e-6)
	}
}

func TestWindowResumKeepsSum(t *testing.T) {
	w := newWindow(5)
	for i := 0; i < resumEvery+3; i++ {
		w.push(float64(i % 7))
	}
	want := 0.0
	for i := resumEvery - 2; i < resumEvery+3; i++ {
		want += float64(i % 7)
	}
	got, ok := w.mean()
	require.True(t, ok)
	assert.InDelta(t, want/5, got, eps)
}

func TestSnapshotCountsSamples(t *testing.T) {
	e := NewEngine()
	e.Update(sampleAt(0, 10, 1))
	e.Update(sampleAt(1, 11, 1))
	snap := e.Snapshot()
	assert.Equal(t, 2, snap.Samples)
	last, ok := snap.LastPrice.Get()
	require.True(t, ok)
	assert.Equal(t, 11.0, last)
}
