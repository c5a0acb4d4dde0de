package alerting

import (
	"sync/atomic"
	"time"

	"QuantWatch/internal/domain/models"
	"QuantWatch/internal/domain/repository"
	"QuantWatch/pkg/logger"

	"github.com/robfig/cron/v3"
)

// AlertPublisher receives dispatched alerts. It must not block.
type AlertPublisher interface {
	PublishAlert(ev models.AlertEvent)
}

// Dispatcher classifies signals, records the survivors and publishes them.
type Dispatcher struct {
	classifier *Classifier
	history    *History
	publisher  AlertPublisher
	log        *logger.Logger
	metrics    repository.Metrics

	today atomic.Int64
	cron  *cron.Cron
	entry cron.EntryID
}

// DispatcherOption configures Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithLogger(l *logger.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

func WithMetrics(m repository.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(classifier *Classifier, history *History, publisher AlertPublisher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		classifier: classifier,
		history:    history,
		publisher:  publisher,
		log:        logger.Nop(),
		metrics:    repository.NopMetrics{},
		cron:       cron.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles the signals of one accepted sample and returns the alerts it published.
func (d *Dispatcher) Dispatch(sigs []models.RawSignal) []models.AlertEvent {
	if len(sigs) == 0 {
		return nil
	}
	events, suppressed := d.classifier.ClassifyBatch(sigs)
	for _, kind := range suppressed {
		d.metrics.RecordSuppressed(kind)
	}
	for _, ev := range events {
		d.history.Add(ev)
		d.today.Add(1)
		d.metrics.RecordAlert(ev.Type, ev.Severity)
		d.logAlert(ev)
		if d.publisher != nil {
			d.publisher.PublishAlert(ev)
		}
	}
	return events
}

func (d *Dispatcher) logAlert(ev models.AlertEvent) {
	fields := []logger.Field{
		logger.String("alert_id", ev.ID),
		logger.String("symbol", ev.Symbol.String()),
		logger.String("tier", string(ev.Tier)),
		logger.String("type", string(ev.Type)),
		logger.String("severity", string(ev.Severity)),
	}
	switch ev.Severity {
	case models.SeverityHigh:
		d.log.Error(ev.Message, fields...)
	case models.SeverityMedium:
		d.log.Warn(ev.Message, fields...)
	default:
		d.log.Info(ev.Message, fields...)
	}
}

// AlertsToday returns the number of alerts dispatched since the last midnight reset.
func (d *Dispatcher) AlertsToday() int64 { return d.today.Load() }

// ResetDaily zeroes the daily alert counter.
func (d *Dispatcher) ResetDaily() {
	n := d.today.Swap(0)
	d.log.Info("daily alert counter reset", logger.Int64("alerts", n))
}

// History exposes the recent-alerts buffer.
func (d *Dispatcher) History() *History { return d.history }

// Classifier exposes the classifier.
func (d *Dispatcher) Classifier() *Classifier { return d.classifier }

// Start schedules the midnight reset. It may be called again after Stop.
func (d *Dispatcher) Start() error {
	if d.entry == 0 {
		id, err := d.cron.AddFunc("0 0 * * *", d.ResetDaily)
		if err != nil {
			return err
		}
		d.entry = id
	}
	d.cron.Start()
	return nil
}

// Stop halts the reset schedule and waits for a running reset.
func (d *Dispatcher) Stop() {
	ctx := d.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}
