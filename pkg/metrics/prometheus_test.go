package metrics

import (
	"testing"

	"QuantWatch/internal/domain/models"
	domrepo "QuantWatch/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordFetch("binance", models.TierRealtime, domrepo.OutcomeSuccess)
	r.RecordFetch("binance", models.TierRealtime, domrepo.OutcomeSuccess)
	r.RecordFetch("binance", models.TierRealtime, domrepo.OutcomeTimeout)
	r.RecordAppend(models.TierMinute, domrepo.AppendStale)
	r.RecordAlert(models.RuleMACDCross, models.SeverityMedium)
	r.RecordSuppressed(models.RuleMACDCross)
	r.RecordDrop("websocket")
	r.RecordLastPrice("stock:AAPL", 185.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.fetches.WithLabelValues("binance", "realtime", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetches.WithLabelValues("binance", "realtime", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.appends.WithLabelValues("minute", "stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alerts.WithLabelValues("macd_cross", "medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.suppressed.WithLabelValues("macd_cross")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.drops.WithLabelValues("websocket")))
	assert.Equal(t, 185.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("stock:AAPL")))

	r.Untrack("stock:AAPL")
	assert.Equal(t, 0, testutil.CollectAndCount(r.lastPrice))
}

func TestRecordersUseSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegisterer(prometheus.NewRegistry())
		NewWithRegisterer(prometheus.NewRegistry())
	})
}
