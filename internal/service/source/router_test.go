package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"QuantWatch/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixed struct {
	name  string
	price float64
}

func (f fixed) Name() string { return f.name }

func (f fixed) Fetch(_ context.Context, symbol models.Symbol, _ models.Tier) (models.Sample, error) {
	return models.Sample{Symbol: symbol, Price: f.price, Timestamp: time.Unix(1, 0)}, nil
}

func TestRouterDispatchesByClass(t *testing.T) {
	r := NewRouter().
		Route(models.ClassStock, fixed{name: "finnhub", price: 1}).
		Route(models.ClassCrypto, fixed{name: "binance", price: 2})

	assert.Equal(t, "router(crypto=binance,stock=finnhub)", r.Name())

	s, err := r.Fetch(context.Background(), "crypto:BTC/USDT", models.TierRealtime)
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.Price)

	s, err = r.Fetch(context.Background(), "stock:AAPL", models.TierRealtime)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Price)

	_, err = r.Fetch(context.Background(), "index:^GSPC", models.TierRealtime)
	assert.True(t, errors.Is(err, models.ErrUnsupportedMarket))
}
