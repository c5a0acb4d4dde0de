package rules

import (
	"testing"
	"time"

	"QuantWatch/internal/domain/models"
	"QuantWatch/internal/service/indicator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func sample(i int, price, volume float64) models.Sample {
	return models.Sample{
		Symbol:    "stock:AAPL",
		Timestamp: t0.Add(time.Duration(i) * 5 * time.Second),
		Price:     price,
		Volume:    volume,
	}
}

func kinds(sigs []models.RawSignal) []models.RuleKind {
	out := make([]models.RuleKind, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, s.Kind)
	}
	return out
}

func TestPriceAbnormalScenario(t *testing.T) {
	e := indicator.NewEngine()
	th := DefaultThresholds()

	var prev models.IndicatorSnapshot
	var got []models.RawSignal
	for i, p := range []float64{100, 100, 106} {
		s := sample(i, p, 1000)
		curr := e.Update(s)
		got = Evaluate(models.TierRealtime, prev, curr, s, th)
		if i < 2 {
			assert.Empty(t, got)
		}
		prev = curr
	}

	require.Len(t, got, 1)
	assert.Equal(t, models.RulePriceAbnormal, got[0].Kind)
	payload, ok := got[0].Payload.(models.PricePayload)
	require.True(t, ok)
	assert.InDelta(t, 0.06, payload.PriceChange, 1e-9)
	assert.Equal(t, 100.0, payload.PreviousPrice)
	assert.Equal(t, models.TierRealtime, payload.Interval)
	assert.Equal(t, models.Symbol("stock:AAPL"), got[0].Symbol)
}

func TestVolumeSpikeScenario(t *testing.T) {
	e := indicator.NewEngine()
	th := DefaultThresholds()

	var prev models.IndicatorSnapshot
	for i := 0; i < 20; i++ {
		s := sample(i, 50, 1000)
		curr := e.Update(s)
		assert.Empty(t, Evaluate(models.TierRealtime, prev, curr, s, th))
		prev = curr
	}

	s := sample(20, 50, 2500)
	curr := e.Update(s)
	got := Evaluate(models.TierRealtime, prev, curr, s, th)
	require.Len(t, got, 1)
	payload := got[0].Payload.(models.VolumePayload)
	assert.Equal(t, models.RuleVolumeAbnormal, got[0].Kind)
	assert.InDelta(t, 2.5, payload.VolumeRatio, 1e-9)
	assert.InDelta(t, 1000, payload.VolumeAverage, 1e-9)
}

func TestUnavailableIndicatorsNeverTrigger(t *testing.T) {
	th := DefaultThresholds()
	s := sample(1, 1_000_000, 1e12)
	got := Evaluate(models.TierMinute, models.IndicatorSnapshot{}, models.IndicatorSnapshot{}, s, th)
	assert.Empty(t, got)
}

func rsiSnap(v float64) models.IndicatorSnapshot {
	return models.IndicatorSnapshot{RSI14: models.Some(v)}
}

func TestRSICrossingEdges(t *testing.T) {
	th := DefaultThresholds()
	s := sample(0, 1, 1)

	tests := []struct {
		name string
		prev models.IndicatorSnapshot
		curr models.IndicatorSnapshot
		want []models.RuleKind
	}{
		{"enter overbought", rsiSnap(68), rsiSnap(72), []models.RuleKind{models.RuleRSIOverbought}},
		{"stay overbought", rsiSnap(72), rsiSnap(75), nil},
		{"touch overbought line", rsiSnap(69.9), rsiSnap(70), []models.RuleKind{models.RuleRSIOverbought}},
		{"enter oversold", rsiSnap(31), rsiSnap(29), []models.RuleKind{models.RuleRSIOversold}},
		{"stay oversold", rsiSnap(25), rsiSnap(20), nil},
		{"leave oversold", rsiSnap(25), rsiSnap(40), nil},
		{"first defined rsi", models.IndicatorSnapshot{}, rsiSnap(90), nil},
		{"jump across both", rsiSnap(80), rsiSnap(10), []models.RuleKind{models.RuleRSIOversold}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(models.TierHour, tt.prev, tt.curr, s, th)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, kinds(got))
			p := got[0].Payload.(models.RSIPayload)
			assert.Equal(t, tt.want[0], p.Kind())
		})
	}
}

func macdSnap(m, s float64) models.IndicatorSnapshot {
	return models.IndicatorSnapshot{MACD: models.Some(m), MACDSignal: models.Some(s)}
}

func TestMACDCrossDirection(t *testing.T) {
	th := DefaultThresholds()
	s := sample(0, 1, 1)

	got := Evaluate(models.TierDay, macdSnap(-1, 0), macdSnap(1, 0), s, th)
	require.Len(t, got, 1)
	assert.Equal(t, models.DirectionBullish, got[0].Payload.(models.MACDPayload).Direction)

	got = Evaluate(models.TierDay, macdSnap(1, 0), macdSnap(-1, 0), s, th)
	require.Len(t, got, 1)
	assert.Equal(t, models.DirectionBearish, got[0].Payload.(models.MACDPayload).Direction)

	assert.Empty(t, Evaluate(models.TierDay, macdSnap(1, 0), macdSnap(2, 0), s, th))
	assert.Empty(t, Evaluate(models.TierDay, macdSnap(0, 0), macdSnap(1, 0), s, th))
	assert.Empty(t, Evaluate(models.TierDay, models.IndicatorSnapshot{MACD: models.Some(-1)}, macdSnap(1, 0), s, th))
}

func TestMACDCrossFiresOncePerSignChange(t *testing.T) {
	e := indicator.NewEngine()
	th := Thresholds{PriceChange: 10, VolumeSpike: 1e9, RSIOverbought: 101, RSIOversold: -1}

	// up, down, up again
	var prices []float64
	p := 100.0
	for i := 0; i < 60; i++ {
		p += 1
		prices = append(prices, p)
	}
	for i := 0; i < 60; i++ {
		p -= 1
		prices = append(prices, p)
	}
	for i := 0; i < 60; i++ {
		p += 1
		prices = append(prices, p)
	}

	var prev models.IndicatorSnapshot
	flips, crosses := 0, 0
	for i, price := range prices {
		s := sample(i, price, 1)
		curr := e.Update(s)
		if prev.MACDHist.Valid && curr.MACDHist.Valid && (prev.MACDHist.V >= 0) != (curr.MACDHist.V >= 0) {
			flips++
		}
		for _, sig := range Evaluate(models.TierRealtime, prev, curr, s, th) {
			if sig.Kind == models.RuleMACDCross {
				crosses++
			}
		}
		prev = curr
	}
	assert.Greater(t, flips, 0)
	assert.Equal(t, flips, crosses)
}

func TestAllRulesFireInOrder(t *testing.T) {
	th := DefaultThresholds()
	prev := models.IndicatorSnapshot{
		LastPrice:   models.Some(100),
		VolumeAvg20: models.Some(10),
		RSI14:       models.Some(60),
		MACD:        models.Some(-1),
		MACDSignal:  models.Some(0),
	}
	curr := models.IndicatorSnapshot{
		LastPrice:  models.Some(120),
		RSI14:      models.Some(80),
		MACD:       models.Some(2),
		MACDSignal: models.Some(0),
	}
	got := Evaluate(models.TierRealtime, prev, curr, sample(1, 120, 50), th)
	assert.Equal(t, []models.RuleKind{
		models.RulePriceAbnormal,
		models.RuleVolumeAbnormal,
		models.RuleRSIOverbought,
		models.RuleMACDCross,
	}, kinds(got))
}
