// Package binance adapts the Binance 24h ticker endpoint to the engine's source port.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"QuantWatch/internal/domain/models"
	xhttp "QuantWatch/pkg/http"
)

const (
	DefaultBaseURL = "https://api.binance.com"
	Name           = "binance"
)

type Client struct {
	api *xhttp.Client
}

// NewAPI returns an HTTP client bound to the Binance REST API.
func NewAPI(baseURL string, opts ...xhttp.ClientOption) *xhttp.Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return xhttp.NewClient(append([]xhttp.ClientOption{xhttp.WithBaseURL(baseURL)}, opts...)...)
}

func New(api *xhttp.Client) *Client {
	return &Client{api: api}
}

func (c *Client) Name() string { return Name }

// ticker fields are decimal strings.
type ticker struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	HighPrice string `json:"highPrice"`
	LowPrice  string `json:"lowPrice"`
	Volume    string `json:"volume"`
	CloseTime int64  `json:"closeTime"`
}

// PairCode converts "BTC/USDT" to Binance's "BTCUSDT".
func PairCode(symbol models.Symbol) string {
	return strings.ToUpper(strings.NewReplacer("/", "", "-", "").Replace(symbol.Code()))
}

func (c *Client) Fetch(ctx context.Context, symbol models.Symbol, _ models.Tier) (models.Sample, error) {
	var t ticker
	err := c.api.GetJSON(ctx, "/api/v3/ticker/24hr", url.Values{"symbol": {PairCode(symbol)}}, &t)
	var se *xhttp.StatusError
	switch {
	case errors.As(err, &se) && se.Permanent():
		// unknown pairs come back as 400 {"code":-1121}
		return models.Sample{}, fmt.Errorf("binance ticker %s: %w: %w: %w", symbol, models.ErrFetchFailure, models.ErrInvalidSymbol, err)
	case err != nil:
		return models.Sample{}, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return models.Sample{}, fmt.Errorf("binance ticker %s: %w: last price %q", symbol, models.ErrFetchFailure, t.LastPrice)
	}
	volume, _ := strconv.ParseFloat(t.Volume, 64)

	ts := time.Now().UTC()
	if t.CloseTime > 0 {
		ts = time.UnixMilli(t.CloseTime).UTC()
	}

	s := models.Sample{
		Symbol:    symbol,
		Timestamp: ts,
		Price:     price,
		Volume:    volume,
		Source:    Name,
	}
	if v, err := strconv.ParseFloat(t.HighPrice, 64); err == nil {
		s.High = models.Float(v)
	}
	if v, err := strconv.ParseFloat(t.LowPrice, 64); err == nil {
		s.Low = models.Float(v)
	}
	return s, nil
}
