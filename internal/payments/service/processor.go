package service

import (
	"context"
	"errors"
	"fmt"

	ledgerservice "masjid/internal/ledger/service"
	"masjid/pkg/config"
	apperrors "masjid/pkg/errors"
	"masjid/pkg/kafka"
	"masjid/pkg/model"
)

const (
	EventPaymentOutcome       = "iftar.payment_outcome"
	EventSponsorshipCommitted = "iftar.sponsorship_committed"
	eventSource               = "masjid-sponsorships"
	schemaVersion             = "1"
)

// Notifier tells a sponsor their date is confirmed.
type Notifier interface {
	SponsorshipConfirmed(ctx context.Context, date *model.BookableDate, email string) error
}

// OutcomeProcessor applies terminal payment outcomes to the ledger. Every
// outcome may arrive more than once and in any order relative to the
// polling path; the ledger's conditional writes make that safe.
type OutcomeProcessor struct {
	ledger   ledgerservice.LedgerService
	canceler *IntentCanceler
	notifier Notifier
	events   kafka.Publisher
	cfg      *config.Config
}

// NewOutcomeProcessor wires the processor. events may be nil when Kafka is
// disabled.
func NewOutcomeProcessor(
	ledger ledgerservice.LedgerService,
	canceler *IntentCanceler,
	notifier Notifier,
	events kafka.Publisher,
	cfg *config.Config,
) *OutcomeProcessor {
	return &OutcomeProcessor{
		ledger:   ledger,
		canceler: canceler,
		notifier: notifier,
		events:   events,
		cfg:      cfg,
	}
}

func (p *OutcomeProcessor) Apply(ctx context.Context, outcome model.PaymentOutcome) (*model.ClaimResult, error) {
	if outcome.IntentID == "" || outcome.DateID == "" {
		return nil, apperrors.InvalidInput("payment outcome must carry intent and date IDs")
	}

	switch outcome.Status {
	case model.PaymentSucceeded:
		result, err := p.ledger.CommitClaim(ctx, outcome.DateID, outcome.IntentID, outcome.SponsorName)
		if err != nil {
			return nil, err
		}
		if result.Outcome == model.OutcomeCommitted && !result.Duplicate {
			p.afterCommit(ctx, outcome, result)
		}
		return result, nil

	case model.PaymentFailed, model.PaymentCanceled:
		result, err := p.ledger.ReleaseClaim(ctx, outcome.DateID, outcome.IntentID)
		if err != nil {
			return nil, err
		}
		// A declined intent accepts another attempt on the same client
		// secret; once the date is released it must not.
		if result.Outcome == model.OutcomeReleased && outcome.Status == model.PaymentFailed && p.canceler != nil {
			p.canceler.Cancel(ctx, outcome.DateID, outcome.IntentID, "payment failed")
		}
		return result, nil
	}

	return nil, apperrors.InvalidInput(fmt.Sprintf("payment outcome %q is not terminal", outcome.Status))
}

// afterCommit runs the side effects of a fresh commit. Their failures are
// logged only; the sponsorship itself is already durable.
func (p *OutcomeProcessor) afterCommit(ctx context.Context, outcome model.PaymentOutcome, result *model.ClaimResult) {
	date := result.Date
	if date == nil {
		p.cfg.Log.Warn("Committed date not available for follow-up", "date_id", outcome.DateID, "intent_id", outcome.IntentID)
		return
	}

	email := outcome.SponsorEmail
	if email == "" && date.SponsorEmail != nil {
		email = *date.SponsorEmail
	}
	if email != "" && p.notifier != nil {
		if err := p.notifier.SponsorshipConfirmed(ctx, date, email); err != nil {
			p.cfg.Log.Error("Failed to send sponsorship confirmation",
				"date_id", date.ID,
				"intent_id", outcome.IntentID,
				"error", err,
			)
		}
	}

	if p.events == nil {
		return
	}
	event := model.SponsorshipCommitted{
		DateID:      date.ID,
		Date:        date.Date,
		Year:        date.Year,
		IntentID:    outcome.IntentID,
		SponsorName: derefName(date.SponsorName),
	}
	if date.SponsoredAt != nil {
		event.CommittedAt = *date.SponsoredAt
	}

	msg, err := kafka.NewMessage().
		WithKey(date.ID).
		WithValue(event).
		WithEventID(outcome.IntentID).
		WithEventType(EventSponsorshipCommitted).
		WithSchemaVersion(schemaVersion).
		WithSource(eventSource).
		Build()
	if err == nil {
		err = p.events.Publish(ctx, msg)
	}
	if err != nil {
		p.cfg.Log.Error("Failed to publish sponsorship event",
			"date_id", date.ID,
			"intent_id", outcome.IntentID,
			"error", err,
		)
	}
}

// HandleMessage is the consumer side of the Kafka outcome relay.
func (p *OutcomeProcessor) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var outcome model.PaymentOutcome
	if err := msg.DecodeValue(&outcome); err != nil {
		return kafka.NewPermanentError("failed to decode payment outcome", err)
	}

	result, err := p.Apply(ctx, outcome)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Retryable() {
			return kafka.NewTransientError("ledger unavailable", err)
		}
		return kafka.NewPermanentError("failed to apply payment outcome", err)
	}

	p.cfg.Log.Debug("Payment outcome applied",
		"event_id", msg.GetEventID(),
		"intent_id", outcome.IntentID,
		"date_id", outcome.DateID,
		"outcome", result.Outcome,
		"reason", result.Reason,
	)
	return nil
}

func derefName(name *string) string {
	if name == nil {
		return ""
	}
	return *name
}
