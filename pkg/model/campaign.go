package model

import "time"

// CampaignSettings configures one Ramadan season. CostPerSlot is in the
// currency's minor units.
type CampaignSettings struct {
	Year        int       `json:"year" bson:"year" validate:"required,min=2000,max=2100"`
	StartDate   string    `json:"start_date" bson:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string    `json:"end_date" bson:"end_date" validate:"required,datetime=2006-01-02"`
	CostPerSlot int64     `json:"cost_per_slot" bson:"cost_per_slot" validate:"required,gt=0"`
	Currency    string    `json:"currency" bson:"currency" validate:"omitempty,len=3,lowercase"`
	Capacity    int       `json:"capacity" bson:"capacity" validate:"min=0,max=10000"`
	Title       string    `json:"title" bson:"title" validate:"max=200"`
	Description string    `json:"description" bson:"description" validate:"max=5000"`
	IsActive    bool      `json:"is_active" bson:"is_active"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}
