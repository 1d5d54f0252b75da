package model

import "time"

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCanceled  PaymentStatus = "canceled"
	PaymentPending   PaymentStatus = "pending"
)

// Intent metadata keys.
const (
	MetaDateID       = "date_id"
	MetaCampaignYear = "campaign_year"
	MetaSponsorName  = "sponsor_name"
	MetaSponsorEmail = "sponsor_email"
	MetaPurpose      = "purpose"

	PurposeIftarSponsorship = "iftar_sponsorship"
)

// PaymentOutcome is a terminal result reported by the payment processor.
// The processor may deliver the same outcome more than once.
type PaymentOutcome struct {
	IntentID     string        `json:"intent_id"`
	Status       PaymentStatus `json:"status"`
	DateID       string        `json:"date_id"`
	CampaignYear int           `json:"campaign_year,omitempty"`
	SponsorName  string        `json:"sponsor_name"`
	SponsorEmail string        `json:"sponsor_email,omitempty"`
	AmountMinor  int64         `json:"amount_minor,omitempty"`
	Currency     string        `json:"currency,omitempty"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

func (o PaymentOutcome) Terminal() bool {
	switch o.Status {
	case PaymentSucceeded, PaymentFailed, PaymentCanceled:
		return true
	}
	return false
}

// SponsorshipCommitted is published after a date becomes sponsored.
type SponsorshipCommitted struct {
	DateID      string    `json:"date_id"`
	Date        string    `json:"date"`
	Year        int       `json:"year"`
	IntentID    string    `json:"intent_id"`
	SponsorName string    `json:"sponsor_name"`
	CommittedAt time.Time `json:"committed_at"`
}
