package model

import (
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"

	PendingPrefix = "pending:"
	ManualPrefix  = "manual:"
)

type ClaimState string

const (
	StateAvailable ClaimState = "available"
	StatePending   ClaimState = "pending"
	StateSponsored ClaimState = "sponsored"
)

// BookableDate is one sponsorable iftar evening. available is false exactly
// when SponsorReference is set, whether the date is pending or sponsored.
type BookableDate struct {
	ID               string     `json:"id,omitempty" bson:"_id,omitempty"`
	Date             string     `json:"date" bson:"date"`
	Year             int        `json:"year" bson:"year"`
	Available        bool       `json:"available" bson:"available"`
	SponsorReference *string    `json:"sponsor_reference" bson:"sponsor_reference"`
	SponsorName      *string    `json:"sponsor_name" bson:"sponsor_name"`
	SponsorEmail     *string    `json:"sponsor_email,omitempty" bson:"sponsor_email"`
	Notes            string     `json:"notes" bson:"notes"`
	PendingSince     *time.Time `json:"pending_since,omitempty" bson:"pending_since"`
	SponsoredAt      *time.Time `json:"sponsored_at,omitempty" bson:"sponsored_at"`
	Version          int64      `json:"version" bson:"version"`
	CreatedAt        time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" bson:"updated_at"`
}

// DateUpdate is a manual admin edit. Nil fields are left unchanged.
// ClearSponsor wins over the sponsor fields.
type DateUpdate struct {
	SponsorName      *string `json:"sponsor_name,omitempty" validate:"omitempty,max=120"`
	SponsorReference *string `json:"sponsor_reference,omitempty" validate:"omitempty,max=200,not_pending_ref"`
	SponsorEmail     *string `json:"sponsor_email,omitempty" validate:"omitempty,email"`
	Notes            *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
	ClearSponsor     bool    `json:"clear_sponsor,omitempty"`
}

// PublicDate is the calendar entry shown to visitors.
type PublicDate struct {
	ID          string     `json:"id"`
	Date        string     `json:"date"`
	Year        int        `json:"year"`
	Available   bool       `json:"available"`
	Status      ClaimState `json:"status"`
	SponsorName string     `json:"sponsor_name,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

func PendingReference(intentID string) string {
	return PendingPrefix + intentID
}

func (d *BookableDate) State() ClaimState {
	if d.SponsorReference == nil {
		return StateAvailable
	}
	if strings.HasPrefix(*d.SponsorReference, PendingPrefix) {
		return StatePending
	}
	return StateSponsored
}

// PendingIntent returns the intent holding the pending claim, if any.
func (d *BookableDate) PendingIntent() (string, bool) {
	if d.State() != StatePending {
		return "", false
	}
	return strings.TrimPrefix(*d.SponsorReference, PendingPrefix), true
}

func (d *BookableDate) IsPendingFor(intentID string) bool {
	intent, ok := d.PendingIntent()
	return ok && intent == intentID
}

func (d *BookableDate) IsSponsoredBy(reference string) bool {
	return d.State() == StateSponsored && *d.SponsorReference == reference
}

// IsStale reports whether a pending claim started before cutoff.
func (d *BookableDate) IsStale(cutoff time.Time) bool {
	return d.State() == StatePending && d.PendingSince != nil && d.PendingSince.Before(cutoff)
}

// Public hides payment references and contact details. A pending claim older
// than cutoff is shown as available since the next claim will release it.
func (d *BookableDate) Public(cutoff time.Time) PublicDate {
	p := PublicDate{
		ID:        d.ID,
		Date:      d.Date,
		Year:      d.Year,
		Available: d.Available,
		Status:    d.State(),
		Notes:     d.Notes,
	}
	if d.IsStale(cutoff) {
		p.Available = true
		p.Status = StateAvailable
	}
	if p.Status == StateSponsored && d.SponsorName != nil {
		p.SponsorName = *d.SponsorName
	}
	return p
}
