package models

import (
	"fmt"
	"strings"
	"time"
)

// MarketClass scopes a symbol code to a market.
type MarketClass string

const (
	ClassStock  MarketClass = "stock"
	ClassCrypto MarketClass = "crypto"
	ClassIndex  MarketClass = "index"
)

// IsValid reports whether c is a known market class.
func (c MarketClass) IsValid() bool {
	switch c {
	case ClassStock, ClassCrypto, ClassIndex:
		return true
	default:
		return false
	}
}

// Symbol identifies an instrument as "<class>:<code>", e.g. "crypto:BTC/USDT".
type Symbol string

// NewSymbol builds a symbol from its class and code.
func NewSymbol(class MarketClass, code string) Symbol {
	return Symbol(string(class) + ":" + strings.TrimSpace(code))
}

// ParseSymbol validates raw and returns it as a Symbol.
// A bare code without class prefix is treated as a stock.
func ParseSymbol(raw string) (Symbol, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSymbol)
	}
	class, code, ok := strings.Cut(raw, ":")
	if !ok {
		return NewSymbol(ClassStock, raw), nil
	}
	mc := MarketClass(strings.ToLower(class))
	if !mc.IsValid() {
		return "", fmt.Errorf("%w: unknown market class %q", ErrInvalidSymbol, class)
	}
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: empty code", ErrInvalidSymbol)
	}
	return NewSymbol(mc, code), nil
}

// Class returns the market class part of the symbol.
func (s Symbol) Class() MarketClass {
	class, _, ok := strings.Cut(string(s), ":")
	if !ok {
		return ClassStock
	}
	return MarketClass(class)
}

// Code returns the provider-facing instrument code.
func (s Symbol) Code() string {
	_, code, ok := strings.Cut(string(s), ":")
	if !ok {
		return string(s)
	}
	return code
}

func (s Symbol) String() string { return string(s) }

// Tier is a monitoring cadence with its own fetch period and series.
type Tier string

const (
	TierRealtime Tier = "realtime"
	TierMinute   Tier = "minute"
	TierHour     Tier = "hour"
	TierDay      Tier = "day"
)

// AllTiers lists tiers from fastest to slowest.
var AllTiers = []Tier{TierRealtime, TierMinute, TierHour, TierDay}

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierRealtime, TierMinute, TierHour, TierDay:
		return true
	default:
		return false
	}
}

// DefaultPeriod returns the fetch period used when none is configured.
func (t Tier) DefaultPeriod() time.Duration {
	switch t {
	case TierRealtime:
		return 5 * time.Second
	case TierMinute:
		return time.Minute
	case TierHour:
		return time.Hour
	case TierDay:
		return 24 * time.Hour
	default:
		return 0
	}
}
