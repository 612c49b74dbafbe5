package repository

import (
	"context"
	"errors"

	"MetaGate/internal/domain/models"
	domrepo "MetaGate/internal/domain/repository"
	pkgkafka "MetaGate/pkg/kafka"
)

// BatchPublisher is the part of the Kafka producer the publisher needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSignalPublisher publishes gated decisions keyed by asset, so each
// asset's decisions stay ordered within one partition.
type KafkaSignalPublisher struct {
	producer BatchPublisher
	topic    string
}

func NewKafkaSignalPublisher(producer BatchPublisher, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) PublishSignals(ctx context.Context, signals []models.GatedSignal) error {
	if len(signals) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(signals))
	for i, s := range signals {
		msgs[i] = pkgkafka.Message{Key: []byte(s.Asset), Value: s}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// MultiSink fans signals out to every sink and joins their errors.
type MultiSink []domrepo.SignalSink

func (m MultiSink) PublishSignals(ctx context.Context, signals []models.GatedSignal) error {
	var errs []error
	for _, s := range m {
		if err := s.PublishSignals(ctx, signals); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ domrepo.SignalSink = (*KafkaSignalPublisher)(nil)
	_ domrepo.SignalSink = MultiSink(nil)
)
