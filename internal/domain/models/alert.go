package models

import (
	"encoding/json"
	"time"
)

// RuleKind identifies the rule that produced a signal.
type RuleKind string

const (
	RulePriceAbnormal  RuleKind = "price_abnormal"
	RuleVolumeAbnormal RuleKind = "volume_abnormal"
	RuleRSIOverbought  RuleKind = "rsi_overbought"
	RuleRSIOversold    RuleKind = "rsi_oversold"
	RuleMACDCross      RuleKind = "macd_cross"
)

// AllRuleKinds lists kinds in evaluation order.
var AllRuleKinds = []RuleKind{RulePriceAbnormal, RuleVolumeAbnormal, RuleRSIOverbought, RuleRSIOversold, RuleMACDCross}

// IsValid reports whether k is a known rule kind.
func (k RuleKind) IsValid() bool {
	for _, v := range AllRuleKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Severity of a dispatched alert.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	return s == SeverityHigh || s == SeverityMedium || s == SeverityLow
}

// Direction of a MACD crossing.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// Payload is the structured data of a signal. One concrete type per rule kind.
type Payload interface {
	Kind() RuleKind
}

type PricePayload struct {
	CurrentPrice  float64 `json:"current_price"`
	PreviousPrice float64 `json:"previous_price"`
	PriceChange   float64 `json:"price_change"`
	Threshold     float64 `json:"threshold"`
	Interval      Tier    `json:"interval"`
}

func (PricePayload) Kind() RuleKind { return RulePriceAbnormal }

type VolumePayload struct {
	CurrentVolume float64 `json:"current_volume"`
	VolumeAverage float64 `json:"volume_average"`
	VolumeRatio   float64 `json:"volume_ratio"`
	Threshold     float64 `json:"threshold"`
	Interval      Tier    `json:"interval"`
}

func (VolumePayload) Kind() RuleKind { return RuleVolumeAbnormal }

type RSIPayload struct {
	Zone        RuleKind `json:"-"`
	RSI         float64  `json:"rsi"`
	PreviousRSI float64  `json:"previous_rsi"`
	Threshold   float64  `json:"threshold"`
	Interval    Tier     `json:"interval"`
}

func (p RSIPayload) Kind() RuleKind { return p.Zone }

type MACDPayload struct {
	MACD           float64   `json:"macd"`
	Signal         float64   `json:"macd_signal"`
	PreviousMACD   float64   `json:"previous_macd"`
	PreviousSignal float64   `json:"previous_macd_signal"`
	Direction      Direction `json:"direction"`
	Interval       Tier      `json:"interval"`
}

func (MACDPayload) Kind() RuleKind { return RuleMACDCross }

// RawSignal is an unclassified rule hit.
type RawSignal struct {
	Symbol    Symbol
	Tier      Tier
	Kind      RuleKind
	Payload   Payload
	Timestamp time.Time
}

// AlertEvent is a classified, dispatched alert. Immutable once created.
type AlertEvent struct {
	ID        string    `json:"id"`
	Symbol    Symbol    `json:"symbol"`
	Tier      Tier      `json:"tier"`
	Type      RuleKind  `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Data      Payload   `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFilter selects alerts from the recent-alerts buffer.
type AlertFilter struct {
	Symbol Symbol
	Type   RuleKind
	Limit  int
}

// AlertSummary aggregates recent alerts.
type AlertSummary struct {
	Hours       int              `json:"hours"`
	TotalAlerts int              `json:"total_alerts"`
	BySeverity  map[Severity]int `json:"by_severity"`
	ByType      map[RuleKind]int `json:"by_type"`
	BySymbol    map[Symbol]int   `json:"by_symbol"`
}

// ArchivedAlert is an alert read back from the archive.
type ArchivedAlert struct {
	ID        string          `json:"id"`
	Symbol    Symbol          `json:"symbol"`
	Tier      Tier            `json:"tier"`
	Type      RuleKind        `json:"type"`
	Severity  Severity        `json:"severity"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}
