package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"masjid/pkg/logger"
	"masjid/pkg/model"

	"github.com/go-playground/validator/v10"
)

// MaxCampaignDays bounds a season; Ramadan plus the nights around it.
const MaxCampaignDays = 60

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type CampaignValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewCampaignValidator(log *logger.Logger) *CampaignValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &CampaignValidator{
		validate: v,
		logger:   log,
	}
}

// Validate checks the settings for one season. The season must start in its
// own year; it may end in the next one.
func (v *CampaignValidator) Validate(settings *model.CampaignSettings) error {
	if err := v.validate.Struct(settings); err != nil {
		return translate(err)
	}

	start, _ := time.Parse(model.DateLayout, settings.StartDate)
	end, _ := time.Parse(model.DateLayout, settings.EndDate)

	var errs ValidationErrors
	if start.Year() != settings.Year {
		errs = append(errs, ValidationError{Field: "start_date", Message: fmt.Sprintf("start_date must fall in %d", settings.Year)})
	}
	if end.Before(start) {
		errs = append(errs, ValidationError{Field: "end_date", Message: "end_date must not be before start_date"})
	} else if days := int(end.Sub(start).Hours()/24) + 1; days > MaxCampaignDays {
		errs = append(errs, ValidationError{Field: "end_date", Message: fmt.Sprintf("campaign covers %d days, at most %d allowed", days, MaxCampaignDays)})
	}

	if len(errs) > 0 {
		v.logger.Debug("Campaign settings rejected", "year", settings.Year, "errors", errs)
		return errs
	}
	return nil
}

func translate(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	var out ValidationErrors
	for _, fe := range validationErrs {
		field := fe.Field()
		message := fe.Error()

		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", field, fe.Param())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", field, fe.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", field, fe.Param())
		case "datetime":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field)
		case "len", "lowercase":
			message = fmt.Sprintf("%s must be a lowercase 3-letter currency code", field)
		}

		out = append(out, ValidationError{Field: field, Message: message})
	}
	return out
}
