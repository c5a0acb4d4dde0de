// Package finnhub adapts the Finnhub quote API and trade stream to the engine's source port.
package finnhub

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"QuantWatch/internal/domain/models"
	xhttp "QuantWatch/pkg/http"
)

const (
	DefaultBaseURL = "https://finnhub.io/api/v1"
	Name           = "finnhub"
)

// Client fetches quotes over REST. With a Stream attached, realtime fetches
// are served from streamed trades when one arrived since the last fetch.
type Client struct {
	api    *xhttp.Client
	stream *Stream
}

// Option configures Client.
type Option func(*Client)

func WithStream(s *Stream) Option {
	return func(c *Client) { c.stream = s }
}

// NewAPI returns an HTTP client bound to the Finnhub REST API and key.
func NewAPI(baseURL, apiKey string, opts ...xhttp.ClientOption) *xhttp.Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base := []xhttp.ClientOption{xhttp.WithBaseURL(baseURL), xhttp.WithToken("token", apiKey)}
	return xhttp.NewClient(append(base, opts...)...)
}

func New(api *xhttp.Client, opts ...Option) *Client {
	c := &Client{api: api}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

type quote struct {
	Current   float64 `json:"c"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Open      float64 `json:"o"`
	PrevClose float64 `json:"pc"`
	Timestamp int64   `json:"t"`
}

// Fetch returns the latest quote for symbol. Finnhub quotes carry no volume.
func (c *Client) Fetch(ctx context.Context, symbol models.Symbol, tier models.Tier) (models.Sample, error) {
	if tier == models.TierRealtime && c.stream != nil {
		if s, ok := c.stream.Take(symbol); ok {
			return s, nil
		}
	}

	var q quote
	if err := c.api.GetJSON(ctx, "/quote", url.Values{"symbol": {symbol.Code()}}, &q); err != nil {
		return models.Sample{}, fmt.Errorf("finnhub quote %s: %w", symbol, err)
	}
	// unknown symbols come back as all zeroes
	if q.Current == 0 && q.Timestamp == 0 {
		return models.Sample{}, fmt.Errorf("finnhub quote %s: %w: empty quote", symbol, models.ErrFetchFailure)
	}

	// t is the last trade time; a closed market keeps returning the same one
	ts := time.Now().UTC()
	if q.Timestamp > 0 {
		ts = time.Unix(q.Timestamp, 0).UTC()
	}

	s := models.Sample{
		Symbol:    symbol,
		Timestamp: ts,
		Price:     q.Current,
		Source:    Name,
	}
	if q.High > 0 {
		s.High = models.Float(q.High)
	}
	if q.Low > 0 {
		s.Low = models.Float(q.Low)
	}
	return s, nil
}
