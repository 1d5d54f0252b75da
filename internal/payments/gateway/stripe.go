package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"masjid/pkg/logger"
	"masjid/pkg/model"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
	eventIntentCanceled  = "payment_intent.canceled"
)

type stripeGateway struct {
	api           *client.API
	webhookSecret string
	log           *logger.Logger
}

func NewStripeGateway(secretKey, webhookSecret string, log *logger.Logger) Gateway {
	return &stripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		log:           log,
	}
}

func (g *stripeGateway) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	p := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.AmountMinor),
		Currency: stripe.String(params.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	p.Context = ctx
	if params.Description != "" {
		p.Description = stripe.String(params.Description)
	}
	if params.ReceiptEmail != "" {
		p.ReceiptEmail = stripe.String(params.ReceiptEmail)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(p)
	if err != nil {
		return nil, classify("create payment intent", err)
	}

	g.log.Info("Payment intent created",
		"intent_id", pi.ID,
		"amount", pi.Amount,
		"currency", pi.Currency,
		"date_id", params.Metadata[model.MetaDateID],
	)
	return toIntent(pi), nil
}

func (g *stripeGateway) GetIntent(ctx context.Context, id string) (*Intent, error) {
	p := &stripe.PaymentIntentParams{}
	p.Context = ctx

	pi, err := g.api.PaymentIntents.Get(id, p)
	if err != nil {
		return nil, classify("get payment intent", err)
	}
	return toIntent(pi), nil
}

// CancelIntent cancels an intent that can still be canceled. An intent that
// already reached a final state is left alone.
func (g *stripeGateway) CancelIntent(ctx context.Context, id string) error {
	p := &stripe.PaymentIntentCancelParams{}
	p.Context = ctx

	if _, err := g.api.PaymentIntents.Cancel(id, p); err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			g.log.Warn("Payment intent not cancelable", "intent_id", id, "error", stripeErr.Msg)
			return nil
		}
		return classify("cancel payment intent", err)
	}

	g.log.Info("Payment intent canceled", "intent_id", id)
	return nil
}

func (g *stripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}

	var status model.PaymentStatus
	switch out.Type {
	case eventIntentSucceeded:
		status = model.PaymentSucceeded
	case eventIntentFailed:
		status = model.PaymentFailed
	case eventIntentCanceled:
		status = model.PaymentCanceled
	default:
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent from event %s: %w", event.ID, err)
	}
	if pi.Metadata[model.MetaPurpose] != model.PurposeIftarSponsorship {
		return out, nil
	}

	out.Relevant = true
	out.Outcome = OutcomeFromMetadata(pi.ID, status, pi.Metadata)
	out.Outcome.AmountMinor = pi.Amount
	out.Outcome.Currency = string(pi.Currency)
	return out, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       intentStatus(pi),
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}

// intentStatus folds the processor's states into the ledger's. An intent
// waiting for a new payment method after a declined attempt counts as failed,
// matching the payment_failed webhook.
func intentStatus(pi *stripe.PaymentIntent) model.PaymentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return model.PaymentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return model.PaymentCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return model.PaymentFailed
		}
	}
	return model.PaymentPending
}

func classify(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripe.ErrorCodeResourceMissing:
			return fmt.Errorf("%w: %s", ErrIntentNotFound, stripeErr.Msg)
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
			stripeErr.Type == stripe.ErrorTypeAPI:
			return fmt.Errorf("%w: failed to %s: %w", ErrUnavailable, op, err)
		}
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	// transport errors never carry a stripe.Error
	return fmt.Errorf("%w: failed to %s: %w", ErrUnavailable, op, err)
}
