package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"QuantWatch/internal/domain/models"
	domrepo "QuantWatch/internal/domain/repository"
	pkghttp "QuantWatch/pkg/http"
	"QuantWatch/pkg/logger"
	"QuantWatch/pkg/queue"
)

// AlertNotifyType is the queue message type for outbound alert notifications.
const AlertNotifyType = "alert.notify"

func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	case models.SeverityLow:
		return 1
	}
	return 0
}

// QueueNotifier enqueues alerts at or above a minimum severity for
// asynchronous delivery.
type QueueNotifier struct {
	queue       queue.Enqueuer
	minSeverity models.Severity
}

func NewQueueNotifier(q queue.Enqueuer, minSeverity models.Severity) *QueueNotifier {
	if !minSeverity.IsValid() {
		minSeverity = models.SeverityMedium
	}
	return &QueueNotifier{queue: q, minSeverity: minSeverity}
}

func (n *QueueNotifier) Name() string { return "notify-queue" }

func (n *QueueNotifier) OnInstrumentUpdate(context.Context, models.InstrumentUpdate) error {
	return nil
}

func (n *QueueNotifier) OnAlert(ctx context.Context, a models.AlertEvent) error {
	if severityRank(a.Severity) < severityRank(n.minSeverity) {
		return nil
	}
	if err := n.queue.Enqueue(ctx, AlertNotifyType, a); err != nil {
		return fmt.Errorf("enqueue alert %s: %w", a.ID, err)
	}
	return nil
}

// webhookBody is what a webhook endpoint receives.
type webhookBody struct {
	Text  string               `json:"text"`
	Alert models.ArchivedAlert `json:"alert"`
}

// AlertNotifyJob delivers queued alerts to the log and, when a webhook
// client is set, to the webhook. A webhook failure is returned so the queue
// retries it.
type AlertNotifyJob struct {
	webhook *pkghttp.Client
	log     *logger.Logger
}

type NotifyJobOption func(*AlertNotifyJob)

// WithWebhook posts every notification through c, bound to the webhook URL.
func WithWebhook(c *pkghttp.Client) NotifyJobOption {
	return func(j *AlertNotifyJob) { j.webhook = c }
}

func WithNotifyLogger(l *logger.Logger) NotifyJobOption {
	return func(j *AlertNotifyJob) {
		if l != nil {
			j.log = l
		}
	}
}

// NewWebhookClient binds an HTTP client to url with extra headers.
func NewWebhookClient(url string, headers map[string]string, opts ...pkghttp.ClientOption) *pkghttp.Client {
	base := []pkghttp.ClientOption{pkghttp.WithBaseURL(url), pkghttp.WithHeaders(headers)}
	return pkghttp.NewClient(append(base, opts...)...)
}

func NewAlertNotifyJob(opts ...NotifyJobOption) *AlertNotifyJob {
	j := &AlertNotifyJob{log: logger.Nop()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *AlertNotifyJob) Name() string { return "alert-notify" }

func (j *AlertNotifyJob) Type() string { return AlertNotifyType }

func (j *AlertNotifyJob) Handle(ctx context.Context, payload json.RawMessage) error {
	a, err := queue.ParsePayload[models.ArchivedAlert](payload)
	if err != nil {
		return err
	}
	if a.ID == "" || a.Symbol == "" {
		return errors.New("alert notification without id or symbol")
	}

	j.log.Info("alert notification",
		logger.String("id", a.ID),
		logger.String("symbol", a.Symbol.String()),
		logger.String("type", string(a.Type)),
		logger.String("severity", string(a.Severity)),
		logger.String("message", a.Message),
	)

	if j.webhook == nil {
		return nil
	}
	body := webhookBody{
		Text:  fmt.Sprintf("[%s] %s: %s", a.Severity, a.Symbol, a.Message),
		Alert: *a,
	}
	if err := j.webhook.PostJSON(ctx, "", body, nil); err != nil {
		return fmt.Errorf("webhook %s: %w", a.ID, err)
	}
	return nil
}

var (
	_ domrepo.Subscriber = (*QueueNotifier)(nil)
	_ queue.Job          = (*AlertNotifyJob)(nil)
)
