package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"QuantWatch/internal/domain/models"
	xhttp "QuantWatch/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairCode(t *testing.T) {
	assert.Equal(t, "BTCUSDT", PairCode("crypto:BTC/USDT"))
	assert.Equal(t, "ETHUSDT", PairCode("crypto:eth-usdt"))
}

func TestFetchTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"43250.10","highPrice":"44000.00","lowPrice":"42000.5","volume":"1234.5","closeTime":1700000000123}`))
	}))
	defer srv.Close()

	c := New(NewAPI(srv.URL+"/", xhttp.WithTimeout(time.Second)))
	s, err := c.Fetch(context.Background(), "crypto:BTC/USDT", models.TierRealtime)
	require.NoError(t, err)
	assert.Equal(t, 43250.10, s.Price)
	assert.Equal(t, 1234.5, s.Volume)
	assert.Equal(t, time.UnixMilli(1700000000123).UTC(), s.Timestamp)
	require.NotNil(t, s.Low)
	assert.Equal(t, 42000.5, *s.Low)
	assert.Equal(t, "binance", s.Source)

	_, err = c.Fetch(context.Background(), "crypto:NOPE/USDT", models.TierRealtime)
	var se *xhttp.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.True(t, errors.Is(err, models.ErrInvalidSymbol))
	assert.True(t, errors.Is(err, models.ErrFetchFailure))
}

func TestFetchTickerServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(NewAPI(srv.URL)).Fetch(context.Background(), "crypto:BTC/USDT", models.TierMinute)
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrInvalidSymbol))
}
