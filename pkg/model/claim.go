package model

type ClaimOutcome string

const (
	OutcomeClaimed   ClaimOutcome = "claimed"
	OutcomeCommitted ClaimOutcome = "committed"
	OutcomeReleased  ClaimOutcome = "released"
	OutcomeRejected  ClaimOutcome = "rejected"
)

// Rejection reasons.
const (
	ReasonUnavailable = "date_unavailable"
	ReasonNotPending  = "claim_not_pending"
	ReasonTakenOver   = "claim_taken_over"
	ReasonNotStale    = "claim_not_stale"

	// ReasonDateMissing marks a payment for a date that no longer exists,
	// e.g. after the year was regenerated.
	ReasonDateMissing = "date_missing"
)

// ClaimResult is the outcome of a claim protocol step. Rejected is a normal
// result, not an error.
type ClaimResult struct {
	Outcome   ClaimOutcome  `json:"outcome"`
	DateID    string        `json:"date_id"`
	IntentID  string        `json:"intent_id"`
	Reason    string        `json:"reason,omitempty"`
	Duplicate bool          `json:"duplicate,omitempty"`
	Date      *BookableDate `json:"date,omitempty"`
}

func (r *ClaimResult) Rejected() bool {
	return r.Outcome == OutcomeRejected
}
