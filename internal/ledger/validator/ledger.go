package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"masjid/pkg/logger"
	"masjid/pkg/model"

	"github.com/go-playground/validator/v10"
)

// MaxGenerateDays bounds a single generation request. Ramadan is at most 30
// days; the slack covers the days around it that some sites also offer.
const MaxGenerateDays = 60

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

type LedgerValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewLedgerValidator(log *logger.Logger) *LedgerValidator {
	v := validator.New()

	if err := v.RegisterValidation("not_pending_ref", validateNotPendingReference); err != nil {
		log.Fatal("Failed to register 'not_pending_ref' validator", "error", err)
	}

	return &LedgerValidator{
		validate: v,
		logger:   log,
	}
}

// validateNotPendingReference keeps admins from forging a payment claim.
func validateNotPendingReference(fl validator.FieldLevel) bool {
	return !strings.HasPrefix(strings.TrimSpace(fl.Field().String()), model.PendingPrefix)
}

func (v *LedgerValidator) ValidateGenerate(req *model.GenerateRequest) error {
	if err := v.validate.Struct(req); err != nil {
		return v.translate(err)
	}

	start, _ := time.Parse(model.DateLayout, req.StartDate)
	end, _ := time.Parse(model.DateLayout, req.EndDate)

	var errs ValidationErrors
	if end.Before(start) {
		errs = append(errs, ValidationError{Field: "end_date", Message: "end_date must not be before start_date"})
	} else if days := int(end.Sub(start).Hours()/24) + 1; days > MaxGenerateDays {
		errs = append(errs, ValidationError{Field: "end_date", Message: fmt.Sprintf("range covers %d days, at most %d allowed", days, MaxGenerateDays)})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *LedgerValidator) ValidateUpdate(update *model.DateUpdate) error {
	if err := v.validate.Struct(update); err != nil {
		return v.translate(err)
	}

	var errs ValidationErrors
	if update.SponsorReference != nil && strings.TrimSpace(*update.SponsorReference) == "" {
		errs = append(errs, ValidationError{Field: "sponsor_reference", Message: "sponsor_reference cannot be blank; use clear_sponsor instead"})
	}
	if update.ClearSponsor && (update.SponsorReference != nil || update.SponsorName != nil || update.SponsorEmail != nil) {
		errs = append(errs, ValidationError{Field: "clear_sponsor", Message: "clear_sponsor cannot be combined with sponsor fields"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *LedgerValidator) translate(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	var out ValidationErrors
	for _, fe := range validationErrs {
		field := jsonFieldName(fe.Field())
		message := fe.Error()

		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "min":
			message = fmt.Sprintf("%s must be at least %s", field, fe.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", field, fe.Param())
		case "datetime":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field)
		case "email":
			message = fmt.Sprintf("%s must be a valid e-mail address", field)
		case "not_pending_ref":
			message = fmt.Sprintf("%s cannot start with %q", field, model.PendingPrefix)
		}

		out = append(out, ValidationError{Field: field, Message: message})
	}
	return out
}

var fieldNames = map[string]string{
	"Year":             "year",
	"StartDate":        "start_date",
	"EndDate":          "end_date",
	"SponsorName":      "sponsor_name",
	"SponsorReference": "sponsor_reference",
	"SponsorEmail":     "sponsor_email",
	"Notes":            "notes",
}

func jsonFieldName(field string) string {
	if name, ok := fieldNames[field]; ok {
		return name
	}
	return field
}
