package indicator

import "QuantWatch/internal/domain/models"

// ema is an exponential moving average seeded by the SMA of its first period values.
type ema struct {
	period int
	alpha  float64
	count  int
	seed   float64
	value  float64
}

func newEMA(period int) *ema {
	return &ema{period: period, alpha: 2 / float64(period+1)}
}

func (e *ema) push(v float64) models.Value {
	e.count++
	switch {
	case e.count < e.period:
		e.seed += v
		return models.None()
	case e.count == e.period:
		e.seed += v
		e.value = e.seed / float64(e.period)
	default:
		e.value = e.alpha*v + (1-e.alpha)*e.value
	}
	return models.Some(e.value)
}

// wilderRSI uses Wilder smoothing of average gain and loss.
type wilderRSI struct {
	period  int
	prev    float64
	hasPrev bool
	changes int
	avgGain float64
	avgLoss float64
}

func newWilderRSI(period int) *wilderRSI {
	return &wilderRSI{period: period}
}

func (r *wilderRSI) push(price float64) models.Value {
	if !r.hasPrev {
		r.prev, r.hasPrev = price, true
		return models.None()
	}
	delta := price - r.prev
	r.prev = price

	var gain, loss float64
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	r.changes++
	p := float64(r.period)
	switch {
	case r.changes < r.period:
		r.avgGain += gain
		r.avgLoss += loss
		return models.None()
	case r.changes == r.period:
		r.avgGain = (r.avgGain + gain) / p
		r.avgLoss = (r.avgLoss + loss) / p
	default:
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}
	return models.Some(rsiFrom(r.avgGain, r.avgLoss))
}

// rsiFrom returns 100 when there is no average loss.
func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
