package repository

import (
	"context"

	"QuantWatch/internal/domain/models"
)

// SourceAdapter fetches one quote/bar for a symbol from an upstream provider.
type SourceAdapter interface {
	Name() string
	Fetch(ctx context.Context, symbol models.Symbol, tier models.Tier) (models.Sample, error)
}

// SampleSink receives successfully fetched samples.
type SampleSink interface {
	Ingest(ctx context.Context, tier models.Tier, sample models.Sample) error
}

// Subscriber receives fan-out bus events. Implementations must not assume ordering across symbols.
type Subscriber interface {
	Name() string
	OnInstrumentUpdate(ctx context.Context, u models.InstrumentUpdate) error
	OnAlert(ctx context.Context, a models.AlertEvent) error
}

// AlertArchive persists dispatched alerts outside the engine.
type AlertArchive interface {
	Store(ctx context.Context, a models.AlertEvent) error
	Recent(ctx context.Context, symbol models.Symbol, limit int) ([]models.ArchivedAlert, error)
	Health(ctx context.Context) error
}

// Metrics records engine observability counters.
type Metrics interface {
	RecordFetch(source string, tier models.Tier, outcome string)
	RecordFetchLatency(source string, seconds float64)
	RecordAppend(tier models.Tier, result string)
	RecordAlert(kind models.RuleKind, severity models.Severity)
	RecordSuppressed(kind models.RuleKind)
	RecordDrop(subscriber string)
	RecordLastPrice(symbol models.Symbol, price float64)
	RecordError(kind string)
}

// Fetch outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeTimeout   = "timeout"
	OutcomeDiscarded = "discarded"
	OutcomeSkipped   = "skipped"
)

// Append results.
const (
	AppendAccepted = "accepted"
	AppendStale    = "stale"
)

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) RecordFetch(string, models.Tier, string) {}
func (NopMetrics) RecordFetchLatency(string, float64) {}
func (NopMetrics) RecordAppend(models.Tier, string) {}
func (NopMetrics) RecordAlert(models.RuleKind, models.Severity) {}
func (NopMetrics) RecordSuppressed(models.RuleKind) {}
func (NopMetrics) RecordDrop(string) {}
func (NopMetrics) RecordLastPrice(models.Symbol, float64) {}
func (NopMetrics) RecordError(string) {}
