// Package indicator maintains technical indicators incrementally, one sample at a time.
//
// Every update is O(1): moving averages keep running sums over fixed windows,
// EMAs and RSI carry their smoothed state forward. An indicator whose warm-up
// window is not yet satisfied reports an unavailable models.Value, never zero.
package indicator

import "QuantWatch/internal/domain/models"

const (
	SMAShortPeriod = 20
	SMALongPeriod  = 50
	EMAFastPeriod  = 12
	EMASlowPeriod  = 26
	SignalPeriod   = 9
	RSIPeriod      = 14
	BollPeriod     = 20
	BollWidth      = 2.0
	VolumePeriod   = 20

	// MaxWindow is the largest sample window any indicator needs.
	MaxWindow = SMALongPeriod
)

// Engine holds the incremental state behind one IndicatorSnapshot.
// It is not safe for concurrent use; the series store serializes appends.
type Engine struct {
	sma20  *window
	sma50  *window
	vol20  *window
	ema12  *ema
	ema26  *ema
	signal *ema
	rsi    *wilderRSI

	snap models.IndicatorSnapshot
}

// NewEngine returns an engine with every indicator unavailable.
func NewEngine() *Engine {
	return &Engine{
		sma20:  newWindow(SMAShortPeriod),
		sma50:  newWindow(SMALongPeriod),
		vol20:  newWindow(VolumePeriod),
		ema12:  newEMA(EMAFastPeriod),
		ema26:  newEMA(EMASlowPeriod),
		signal: newEMA(SignalPeriod),
		rsi:    newWilderRSI(RSIPeriod),
	}
}

// Update folds s into the indicator state and returns the new snapshot.
func (e *Engine) Update(s models.Sample) models.IndicatorSnapshot {
	price := s.Price

	e.sma20.push(price)
	e.sma50.push(price)
	e.vol20.push(s.Volume)

	next := models.IndicatorSnapshot{
		Samples:   e.snap.Samples + 1,
		LastPrice: models.Some(price),
		EMA12:     e.ema12.push(price),
		EMA26:     e.ema26.push(price),
		RSI14:     e.rsi.push(price),
	}

	if v, ok := e.sma20.mean(); ok {
		next.SMA20 = models.Some(v)
		next.BollMiddle = models.Some(v)
		if sd, ok := e.sma20.stddev(); ok {
			next.BollUpper = models.Some(v + BollWidth*sd)
			next.BollLower = models.Some(v - BollWidth*sd)
		}
	}
	if v, ok := e.sma50.mean(); ok {
		next.SMA50 = models.Some(v)
	}
	if v, ok := e.vol20.mean(); ok {
		next.VolumeAvg20 = models.Some(v)
	}

	fast, okFast := next.EMA12.Get()
	slow, okSlow := next.EMA26.Get()
	if okFast && okSlow {
		macd := fast - slow
		next.MACD = models.Some(macd)
		next.MACDSignal = e.signal.push(macd)
		if sig, ok := next.MACDSignal.Get(); ok {
			next.MACDHist = models.Some(macd - sig)
		}
	}

	e.snap = next
	return next
}

// Snapshot returns the current snapshot.
func (e *Engine) Snapshot() models.IndicatorSnapshot { return e.snap }
