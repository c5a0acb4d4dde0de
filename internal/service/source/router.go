// Package source routes fetches to the adapter serving a symbol's market class.
package source

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"QuantWatch/internal/domain/models"
	"QuantWatch/internal/domain/repository"
)

// Router is itself a SourceAdapter.
type Router struct {
	routes map[models.MarketClass]repository.SourceAdapter
}

func NewRouter() *Router {
	return &Router{routes: make(map[models.MarketClass]repository.SourceAdapter)}
}

// Route sends every symbol of class to adapter, replacing any earlier route.
func (r *Router) Route(class models.MarketClass, adapter repository.SourceAdapter) *Router {
	r.routes[class] = adapter
	return r
}

// Name lists the routed adapters, e.g. "router(crypto=binance,stock=finnhub)".
func (r *Router) Name() string {
	parts := make([]string, 0, len(r.routes))
	for class, a := range r.routes {
		parts = append(parts, string(class)+"="+a.Name())
	}
	sort.Strings(parts)
	return "router(" + strings.Join(parts, ",") + ")"
}

// Adapter returns the adapter for symbol.
func (r *Router) Adapter(symbol models.Symbol) (repository.SourceAdapter, error) {
	a, ok := r.routes[symbol.Class()]
	if !ok {
		return nil, fmt.Errorf("route %s: %w: %s", symbol, models.ErrUnsupportedMarket, symbol.Class())
	}
	return a, nil
}

func (r *Router) Fetch(ctx context.Context, symbol models.Symbol, tier models.Tier) (models.Sample, error) {
	a, err := r.Adapter(symbol)
	if err != nil {
		return models.Sample{}, err
	}
	return a.Fetch(ctx, symbol, tier)
}
