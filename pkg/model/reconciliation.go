package model

import "time"

// Reconciliation records a payment that was collected but could not be bound
// to its date. Operators resolve these by hand.
type Reconciliation struct {
	ID                string     `json:"id,omitempty" bson:"_id,omitempty"`
	DateID            string     `json:"date_id" bson:"date_id"`
	PaymentIntentID   string     `json:"payment_intent_id" bson:"payment_intent_id"`
	SponsorName       string     `json:"sponsor_name" bson:"sponsor_name"`
	ObservedReference *string    `json:"observed_reference" bson:"observed_reference"`
	Reason            string     `json:"reason" bson:"reason"`
	Resolved          bool       `json:"resolved" bson:"resolved"`
	ResolutionNote    string     `json:"resolution_note,omitempty" bson:"resolution_note"`
	CreatedAt         time.Time  `json:"created_at" bson:"created_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
}
