// Package alerting classifies raw signals into alerts, suppresses repeats and dispatches them.
package alerting

import (
	"fmt"
	"sync"
	"time"

	"QuantWatch/internal/domain/models"

	"github.com/google/uuid"
)

// SeverityPolicy maps rule hits to severities. Price bands are multiples of the price threshold.
type SeverityPolicy struct {
	PriceHighMultiple   float64         `yaml:"price_high_multiple" default:"2" validate:"gtefield=PriceMediumMultiple"`
	PriceMediumMultiple float64         `yaml:"price_medium_multiple" default:"1" validate:"gt=0"`
	RSI                 models.Severity `yaml:"rsi" default:"medium" validate:"oneof=high medium low"`
	MACD                models.Severity `yaml:"macd" default:"medium" validate:"oneof=high medium low"`
	Volume              models.Severity `yaml:"volume" default:"low" validate:"oneof=high medium low"`
	VolumeWithPrice     models.Severity `yaml:"volume_with_price" default:"high" validate:"oneof=high medium low"`
}

// DefaultSeverityPolicy returns the stock severity bands.
func DefaultSeverityPolicy() SeverityPolicy {
	return SeverityPolicy{
		PriceHighMultiple:   2,
		PriceMediumMultiple: 1,
		RSI:                 models.SeverityMedium,
		MACD:                models.SeverityMedium,
		Volume:              models.SeverityLow,
		VolumeWithPrice:     models.SeverityHigh,
	}
}

type suppressionKey struct {
	symbol models.Symbol
	kind   models.RuleKind
}

// Classifier assigns severity and enforces the per (symbol, rule kind) cool-down.
type Classifier struct {
	mu       sync.Mutex
	policy   SeverityPolicy
	cooldown time.Duration
	lastFire map[suppressionKey]time.Time
	newID    func() string
}

// ClassifierOption configures Classifier.
type ClassifierOption func(*Classifier)

// WithCooldown sets the suppression window. Zero disables suppression.
func WithCooldown(d time.Duration) ClassifierOption {
	return func(c *Classifier) { c.cooldown = d }
}

// WithSeverityPolicy replaces the default severity policy.
func WithSeverityPolicy(p SeverityPolicy) ClassifierOption {
	return func(c *Classifier) { c.policy = p }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) ClassifierOption {
	return func(c *Classifier) { c.newID = fn }
}

func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		policy:   DefaultSeverityPolicy(),
		cooldown: 60 * time.Second,
		lastFire: make(map[suppressionKey]time.Time),
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify turns one signal into an alert, or reports it suppressed.
func (c *Classifier) Classify(sig models.RawSignal) (models.AlertEvent, bool) {
	return c.classify(sig, false)
}

// ClassifyBatch classifies the signals of one sample. A volume spike that
// arrives with a price abnormality on the same sample gets VolumeWithPrice.
// The second return value lists the kinds that were suppressed.
func (c *Classifier) ClassifyBatch(sigs []models.RawSignal) ([]models.AlertEvent, []models.RuleKind) {
	withPrice := false
	for _, s := range sigs {
		if s.Kind == models.RulePriceAbnormal {
			withPrice = true
			break
		}
	}

	var (
		out        []models.AlertEvent
		suppressed []models.RuleKind
	)
	for _, s := range sigs {
		ev, ok := c.classify(s, withPrice)
		if !ok {
			suppressed = append(suppressed, s.Kind)
			continue
		}
		out = append(out, ev)
	}
	return out, suppressed
}

func (c *Classifier) classify(sig models.RawSignal, withPrice bool) (models.AlertEvent, bool) {
	k := suppressionKey{symbol: sig.Symbol, kind: sig.Kind}

	c.mu.Lock()
	if last, ok := c.lastFire[k]; ok && c.cooldown > 0 && sig.Timestamp.Sub(last) < c.cooldown {
		c.mu.Unlock()
		return models.AlertEvent{}, false
	}
	c.lastFire[k] = sig.Timestamp
	c.mu.Unlock()

	return models.AlertEvent{
		ID:        c.newID(),
		Symbol:    sig.Symbol,
		Tier:      sig.Tier,
		Type:      sig.Kind,
		Severity:  c.severity(sig, withPrice),
		Message:   Message(sig),
		Data:      sig.Payload,
		Timestamp: sig.Timestamp,
	}, true
}

func (c *Classifier) severity(sig models.RawSignal, withPrice bool) models.Severity {
	switch p := sig.Payload.(type) {
	case models.PricePayload:
		if p.Threshold <= 0 {
			return models.SeverityMedium
		}
		ratio := p.PriceChange / p.Threshold
		switch {
		case ratio >= c.policy.PriceHighMultiple:
			return models.SeverityHigh
		case ratio >= c.policy.PriceMediumMultiple:
			return models.SeverityMedium
		default:
			return models.SeverityLow
		}
	case models.VolumePayload:
		if withPrice {
			return c.policy.VolumeWithPrice
		}
		return c.policy.Volume
	case models.RSIPayload:
		return c.policy.RSI
	case models.MACDPayload:
		return c.policy.MACD
	default:
		return models.SeverityLow
	}
}

// Forget clears the suppression state of symbol.
func (c *Classifier) Forget(symbol models.Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.lastFire {
		if k.symbol == symbol {
			delete(c.lastFire, k)
		}
	}
}

// Message renders the human readable text of a signal.
func Message(sig models.RawSignal) string {
	switch p := sig.Payload.(type) {
	case models.PricePayload:
		return fmt.Sprintf("%s abnormal price move: %.2f%%", sig.Symbol, p.PriceChange*100)
	case models.VolumePayload:
		return fmt.Sprintf("%s abnormal volume: %.1fx average", sig.Symbol, p.VolumeRatio)
	case models.RSIPayload:
		if p.Zone == models.RuleRSIOversold {
			return fmt.Sprintf("%s RSI oversold: %.1f", sig.Symbol, p.RSI)
		}
		return fmt.Sprintf("%s RSI overbought: %.1f", sig.Symbol, p.RSI)
	case models.MACDPayload:
		if p.Direction == models.DirectionBullish {
			return fmt.Sprintf("%s MACD golden cross", sig.Symbol)
		}
		return fmt.Sprintf("%s MACD death cross", sig.Symbol)
	default:
		return fmt.Sprintf("%s %s", sig.Symbol, sig.Kind)
	}
}
