// Package rules turns indicator transitions into raw signals.
package rules

import (
	"math"

	"QuantWatch/internal/domain/models"
)

// Thresholds configures the rule set.
type Thresholds struct {
	PriceChange   float64 `yaml:"price_change" default:"0.05" validate:"gt=0"`
	VolumeSpike   float64 `yaml:"volume_spike" default:"2.0" validate:"gt=0"`
	RSIOverbought float64 `yaml:"rsi_overbought" default:"70" validate:"gt=0,lte=100"`
	RSIOversold   float64 `yaml:"rsi_oversold" default:"30" validate:"gte=0,lt=100"`
}

// DefaultThresholds returns the stock rule thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PriceChange:   0.05,
		VolumeSpike:   2.0,
		RSIOverbought: 70,
		RSIOversold:   30,
	}
}

// Evaluate compares the snapshots around one accepted append and returns every rule hit,
// in price, volume, RSI, MACD order. Unavailable indicators never trigger.
func Evaluate(tier models.Tier, prev, curr models.IndicatorSnapshot, sample models.Sample, th Thresholds) []models.RawSignal {
	var out []models.RawSignal
	emit := func(p models.Payload) {
		out = append(out, models.RawSignal{
			Symbol:    sample.Symbol,
			Tier:      tier,
			Kind:      p.Kind(),
			Payload:   p,
			Timestamp: sample.Timestamp,
		})
	}

	if p, ok := priceAbnormal(tier, prev, sample, th); ok {
		emit(p)
	}
	if p, ok := volumeSpike(tier, prev, sample, th); ok {
		emit(p)
	}
	if p, ok := rsiCrossing(tier, prev, curr, th); ok {
		emit(p)
	}
	if p, ok := macdCross(tier, prev, curr); ok {
		emit(p)
	}
	return out
}

func priceAbnormal(tier models.Tier, prev models.IndicatorSnapshot, s models.Sample, th Thresholds) (models.PricePayload, bool) {
	last, ok := prev.LastPrice.Get()
	if !ok || last == 0 {
		return models.PricePayload{}, false
	}
	change := math.Abs(s.Price-last) / last
	if change < th.PriceChange {
		return models.PricePayload{}, false
	}
	return models.PricePayload{
		CurrentPrice:  s.Price,
		PreviousPrice: last,
		PriceChange:   change,
		Threshold:     th.PriceChange,
		Interval:      tier,
	}, true
}

// volumeSpike compares against the baseline of the samples before s.
func volumeSpike(tier models.Tier, prev models.IndicatorSnapshot, s models.Sample, th Thresholds) (models.VolumePayload, bool) {
	avg, ok := prev.VolumeAvg20.Get()
	if !ok || avg <= 0 {
		return models.VolumePayload{}, false
	}
	ratio := s.Volume / avg
	if ratio < th.VolumeSpike {
		return models.VolumePayload{}, false
	}
	return models.VolumePayload{
		CurrentVolume: s.Volume,
		VolumeAverage: avg,
		VolumeRatio:   ratio,
		Threshold:     th.VolumeSpike,
		Interval:      tier,
	}, true
}

func rsiCrossing(tier models.Tier, prev, curr models.IndicatorSnapshot, th Thresholds) (models.RSIPayload, bool) {
	before, okPrev := prev.RSI14.Get()
	now, okCurr := curr.RSI14.Get()
	if !okPrev || !okCurr {
		return models.RSIPayload{}, false
	}
	p := models.RSIPayload{RSI: now, PreviousRSI: before, Interval: tier}
	switch {
	case now >= th.RSIOverbought && before < th.RSIOverbought:
		p.Zone, p.Threshold = models.RuleRSIOverbought, th.RSIOverbought
	case now <= th.RSIOversold && before > th.RSIOversold:
		p.Zone, p.Threshold = models.RuleRSIOversold, th.RSIOversold
	default:
		return models.RSIPayload{}, false
	}
	return p, true
}

// macdCross fires on a sign flip of MACD minus signal. Zero counts as non-negative.
func macdCross(tier models.Tier, prev, curr models.IndicatorSnapshot) (models.MACDPayload, bool) {
	pm, ok1 := prev.MACD.Get()
	ps, ok2 := prev.MACDSignal.Get()
	cm, ok3 := curr.MACD.Get()
	cs, ok4 := curr.MACDSignal.Get()
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return models.MACDPayload{}, false
	}
	wasUp := pm-ps >= 0
	isUp := cm-cs >= 0
	if wasUp == isUp {
		return models.MACDPayload{}, false
	}
	dir := models.DirectionBearish
	if isUp {
		dir = models.DirectionBullish
	}
	return models.MACDPayload{
		MACD:           cm,
		Signal:         cs,
		PreviousMACD:   pm,
		PreviousSignal: ps,
		Direction:      dir,
		Interval:       tier,
	}, true
}
