package gateway

import (
	"context"
	"errors"
	"strconv"

	"masjid/pkg/model"
)

var (
	// ErrInvalidSignature means a webhook did not come from the processor.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	ErrIntentNotFound = errors.New("payment intent not found")

	// ErrUnavailable wraps network and 5xx failures. Callers may retry.
	ErrUnavailable = errors.New("payment processor unavailable")
)

type CreateIntentParams struct {
	AmountMinor    int64
	Currency       string
	ReceiptEmail   string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the processor's view of one payment attempt.
type Intent struct {
	ID           string
	ClientSecret string
	Status       model.PaymentStatus
	AmountMinor  int64
	Currency     string
	Metadata     map[string]string
}

// Outcome converts a terminal intent into the outcome the ledger consumes.
// ok is false while the intent is still in progress.
func (i *Intent) Outcome() (model.PaymentOutcome, bool) {
	out := OutcomeFromMetadata(i.ID, i.Status, i.Metadata)
	out.AmountMinor = i.AmountMinor
	out.Currency = i.Currency
	return out, out.Terminal()
}

// OutcomeFromMetadata reads the sponsorship fields stamped on the intent at
// creation.
func OutcomeFromMetadata(intentID string, status model.PaymentStatus, metadata map[string]string) model.PaymentOutcome {
	return model.PaymentOutcome{
		IntentID:     intentID,
		Status:       status,
		DateID:       metadata[model.MetaDateID],
		SponsorName:  metadata[model.MetaSponsorName],
		SponsorEmail: metadata[model.MetaSponsorEmail],
		CampaignYear: campaignYear(metadata[model.MetaCampaignYear]),
	}
}

// Event is a verified webhook notification about one intent. Relevant is
// false for event types and purposes the ledger does not handle.
type Event struct {
	ID       string
	Type     string
	Relevant bool
	Outcome  model.PaymentOutcome
}

type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	CancelIntent(ctx context.Context, id string) error
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

func campaignYear(s string) int {
	year, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return year
}
