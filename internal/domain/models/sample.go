package models

import (
	"encoding/json"
	"time"
)

// Sample is one observation of an instrument. Immutable once produced.
type Sample struct {
	Symbol    Symbol    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	High      *float64  `json:"high,omitempty"`
	Low       *float64  `json:"low,omitempty"`
	MarketCap *float64  `json:"market_cap,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// Float returns a pointer to v, for the optional Sample fields.
func Float(v float64) *float64 { return &v }

// Value is an indicator reading that may not be available yet.
// The zero Value is unavailable.
type Value struct {
	V     float64
	Valid bool
}

// Some returns an available Value.
func Some(v float64) Value { return Value{V: v, Valid: true} }

// None returns an unavailable Value.
func None() Value { return Value{} }

// Get returns the value and whether it is available.
func (v Value) Get() (float64, bool) { return v.V, v.Valid }

// MarshalJSON encodes an unavailable value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

// UnmarshalJSON decodes null as unavailable.
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}

// IndicatorSnapshot is the derived state attached to one series.
type IndicatorSnapshot struct {
	Samples     int   `json:"samples"`
	LastPrice   Value `json:"last_price"`
	SMA20       Value `json:"sma_20"`
	SMA50       Value `json:"sma_50"`
	EMA12       Value `json:"ema_12"`
	EMA26       Value `json:"ema_26"`
	MACD        Value `json:"macd"`
	MACDSignal  Value `json:"macd_signal"`
	MACDHist    Value `json:"macd_hist"`
	RSI14       Value `json:"rsi_14"`
	BollUpper   Value `json:"bb_upper"`
	BollMiddle  Value `json:"bb_middle"`
	BollLower   Value `json:"bb_lower"`
	VolumeAvg20 Value `json:"volume_ma_20"`
}

// InstrumentUpdate is emitted on every accepted append.
type InstrumentUpdate struct {
	Symbol     Symbol            `json:"symbol"`
	Tier       Tier              `json:"tier"`
	Sample     Sample            `json:"sample"`
	Indicators IndicatorSnapshot `json:"indicators"`
	Timestamp  time.Time         `json:"timestamp"`
}
