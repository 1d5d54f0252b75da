package service

import (
	"context"

	apperrors "masjid/pkg/errors"
	"masjid/pkg/kafka"
	"masjid/pkg/logger"
	"masjid/pkg/model"
)

// OutcomeSink receives terminal payment outcomes from the webhook and the
// polling path.
type OutcomeSink interface {
	Deliver(ctx context.Context, outcome model.PaymentOutcome) error
}

// DirectSink applies outcomes inline.
type DirectSink struct {
	processor *OutcomeProcessor
}

func NewDirectSink(processor *OutcomeProcessor) *DirectSink {
	return &DirectSink{processor: processor}
}

func (s *DirectSink) Deliver(ctx context.Context, outcome model.PaymentOutcome) error {
	_, err := s.processor.Apply(ctx, outcome)
	return err
}

// KafkaSink publishes outcomes keyed by date ID so every outcome for one date
// is applied in order by a single consumer.
type KafkaSink struct {
	publisher kafka.Publisher
	log       *logger.Logger
}

func NewKafkaSink(publisher kafka.Publisher, log *logger.Logger) *KafkaSink {
	return &KafkaSink{publisher: publisher, log: log}
}

func (s *KafkaSink) Deliver(ctx context.Context, outcome model.PaymentOutcome) error {
	if outcome.IntentID == "" || outcome.DateID == "" {
		return apperrors.InvalidInput("payment outcome must carry intent and date IDs")
	}

	msg, err := kafka.NewMessage().
		WithKey(outcome.DateID).
		WithValue(outcome).
		WithEventID(outcome.IntentID + ":" + string(outcome.Status)).
		WithEventType(EventPaymentOutcome).
		WithSchemaVersion(schemaVersion).
		WithSource(eventSource).
		Build()
	if err != nil {
		return apperrors.Internal("Failed to encode payment outcome", err)
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.log.Error("Failed to relay payment outcome",
			"intent_id", outcome.IntentID,
			"date_id", outcome.DateID,
			"status", outcome.Status,
			"error", err,
		)
		return apperrors.UnavailableWithCause("payment outcome relay", err)
	}
	return nil
}
