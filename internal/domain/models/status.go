package models

import "time"

// Status is the engine status query result.
type Status struct {
	Running          bool               `json:"running"`
	SymbolCount      int                `json:"symbolCount"`
	ActiveAlertCount int                `json:"activeAlertCount"`
	LastUpdate       *time.Time         `json:"lastUpdate"`
	StartedAt        *time.Time         `json:"startedAt,omitempty"`
	ActiveTiers      int                `json:"activeTiers"`
	TierLastTick     map[Tier]time.Time `json:"tierLastTick,omitempty"`
}

// MarketSummary is a point-in-time summary across all symbols.
type MarketSummary struct {
	TotalSymbols     int        `json:"totalSymbols"`
	TotalAlertsToday int64      `json:"totalAlertsToday"`
	AverageChange    float64    `json:"averageChange"`
	LastUpdate       *time.Time `json:"lastUpdate"`
}

// SymbolStatus describes one subscribed symbol.
type SymbolStatus struct {
	Symbol     Symbol     `json:"symbol"`
	Class      string     `json:"class"`
	Tiers      []Tier     `json:"tiers"`
	LastUpdate *time.Time `json:"lastUpdate"`
	LastPrice  *float64   `json:"lastPrice,omitempty"`
}

// SeriesView is a point-in-time copy of one series.
type SeriesView struct {
	Symbol     Symbol            `json:"symbol"`
	Tier       Tier              `json:"tier"`
	Capacity   int               `json:"capacity"`
	Samples    []Sample          `json:"samples"`
	Indicators IndicatorSnapshot `json:"indicators"`
}
