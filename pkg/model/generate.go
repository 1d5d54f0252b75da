package model

type GenerateRequest struct {
	Year       int    `json:"year" validate:"required,min=2000,max=2100"`
	StartDate  string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Regenerate bool   `json:"regenerate"`
}

type GeneratedDates struct {
	Year    int             `json:"year"`
	Created int             `json:"created"`
	Dates   []*BookableDate `json:"dates"`
}
