package repository

import (
	"context"

	"QuantWatch/internal/domain/models"
	domrepo "QuantWatch/internal/domain/repository"
	"QuantWatch/pkg/logger"
)

// MessageProducer is the part of pkg/kafka.Producer used here.
type MessageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaEventPublisher forwards bus events to Kafka, keyed by symbol so one
// symbol's events stay ordered within a partition.
type KafkaEventPublisher struct {
	producer     MessageProducer
	alertsTopic  string
	updatesTopic string
}

// NewKafkaEventPublisher publishes alerts to alertsTopic and, when
// updatesTopic is set, every instrument update to updatesTopic.
func NewKafkaEventPublisher(producer MessageProducer, alertsTopic, updatesTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, alertsTopic: alertsTopic, updatesTopic: updatesTopic}
}

func (p *KafkaEventPublisher) Name() string { return "kafka" }

func (p *KafkaEventPublisher) OnInstrumentUpdate(ctx context.Context, u models.InstrumentUpdate) error {
	if p.updatesTopic == "" {
		return nil
	}
	return p.producer.Publish(ctx, p.updatesTopic, []byte(u.Symbol), u)
}

func (p *KafkaEventPublisher) OnAlert(ctx context.Context, a models.AlertEvent) error {
	if p.alertsTopic == "" {
		return nil
	}
	return p.producer.Publish(ctx, p.alertsTopic, []byte(a.Symbol), a)
}

// KafkaLogPublisher ships aggregated log batches from the logger collector.
type KafkaLogPublisher struct {
	producer MessageProducer
}

func NewKafkaLogPublisher(producer MessageProducer) *KafkaLogPublisher {
	return &KafkaLogPublisher{producer: producer}
}

func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

var (
	_ domrepo.Subscriber = (*KafkaEventPublisher)(nil)
	_ logger.Publisher   = (*KafkaLogPublisher)(nil)
)
