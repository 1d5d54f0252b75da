package model

import "time"

// SponsorshipRequest starts a paid sponsorship of one date.
type SponsorshipRequest struct {
	DateID      string `json:"date_id" validate:"required,max=64"`
	SponsorName string `json:"sponsor_name" validate:"max=120"`
	Email       string `json:"email" validate:"omitempty,email,max=254"`

	// IdempotencyKey comes from the Idempotency-Key header, not the body.
	IdempotencyKey string `json:"-"`
}

// SponsorshipStarted carries what the browser needs to complete the payment.
// ClaimToken is opaque and is presented again to confirm.
type SponsorshipStarted struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	ClientSecret    string    `json:"client_secret"`
	ClaimToken      string    `json:"claim_token"`
	DateID          string    `json:"date_id"`
	Date            string    `json:"date"`
	AmountMinor     int64     `json:"amount_minor"`
	Currency        string    `json:"currency"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// SponsorshipStatus reports where a payment attempt stands.
type SponsorshipStatus struct {
	PaymentIntentID string        `json:"payment_intent_id"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	Sponsored       bool          `json:"sponsored"`
	Pending         bool          `json:"pending"`
	Date            PublicDate    `json:"date"`
}
