package metrics

import (
	"QuantWatch/internal/domain/models"
	domrepo "QuantWatch/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetches      *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	appends      *prometheus.CounterVec
	alerts       *prometheus.CounterVec
	suppressed   *prometheus.CounterVec
	drops        *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantwatch_fetch_total",
				Help: "Source fetch attempts by outcome",
			},
			[]string{"source", "tier", "outcome"},
		),
		fetchLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantwatch_fetch_duration_seconds",
				Help:    "Duration of source adapter calls in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"source"},
		),
		appends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantwatch_series_appends_total",
				Help: "Series appends by result",
			},
			[]string{"tier", "result"},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantwatch_alerts_total",
				Help: "Dispatched alerts by rule and severity",
			},
			[]string{"kind", "severity"},
		),
		suppressed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantwatch_alerts_suppressed_total",
				Help: "Rule hits suppressed by the cool-down",
			},
			[]string{"kind"},
		),
		drops: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantwatch_bus_dropped_total",
				Help: "Bus messages dropped because a subscriber queue was full",
			},
			[]string{"subscriber"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantwatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantwatch_last_price",
				Help: "Last accepted price for a symbol",
			},
			[]string{"symbol"},
		),
	}
}

func (r *Recorder) RecordFetch(source string, tier models.Tier, outcome string) {
	r.fetches.WithLabelValues(source, string(tier), outcome).Inc()
}

func (r *Recorder) RecordFetchLatency(source string, seconds float64) {
	r.fetchLatency.WithLabelValues(source).Observe(seconds)
}

func (r *Recorder) RecordAppend(tier models.Tier, result string) {
	r.appends.WithLabelValues(string(tier), result).Inc()
}

func (r *Recorder) RecordAlert(kind models.RuleKind, severity models.Severity) {
	r.alerts.WithLabelValues(string(kind), string(severity)).Inc()
}

func (r *Recorder) RecordSuppressed(kind models.RuleKind) {
	r.suppressed.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) RecordDrop(subscriber string) {
	r.drops.WithLabelValues(subscriber).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol models.Symbol, price float64) {
	r.lastPrice.WithLabelValues(string(symbol)).Set(price)
}

// ForgetSymbol removes the per-symbol series of a removed symbol.
func (r *Recorder) ForgetSymbol(symbol models.Symbol) {
	r.lastPrice.DeleteLabelValues(string(symbol))
}

// Track satisfies the monitor's symbol hook.
func (r *Recorder) Track(models.Symbol) {}

// Untrack drops the last-price gauge of a removed symbol.
func (r *Recorder) Untrack(symbol models.Symbol) { r.ForgetSymbol(symbol) }

var _ domrepo.Metrics = (*Recorder)(nil)
