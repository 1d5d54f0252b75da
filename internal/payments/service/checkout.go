package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	campaignservice "masjid/internal/campaigns/service"
	ledgerservice "masjid/internal/ledger/service"
	paymenterrors "masjid/internal/payments/errors"
	"masjid/internal/payments/gateway"
	"masjid/internal/payments/validator"
	"masjid/pkg/config"
	apperrors "masjid/pkg/errors"
	"masjid/pkg/model"
	"masjid/pkg/sanitizer"
	"masjid/pkg/sealer"
)

// ExpiryScheduler arranges for a claim to be expired once the claim timeout
// has passed.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, dateID, intentID string) error
}

const maxIntentAttempts = 3

type CheckoutService interface {
	StartSponsorship(ctx context.Context, req *model.SponsorshipRequest) (*model.SponsorshipStarted, error)
	Confirm(ctx context.Context, claimToken string) (*model.SponsorshipStatus, error)
}

type checkoutService struct {
	ledger    ledgerservice.LedgerService
	campaigns campaignservice.CampaignService
	gateway   gateway.Gateway
	sink      OutcomeSink
	scheduler ExpiryScheduler
	sealer    *sealer.Sealer
	validator *validator.SponsorshipValidator
	cfg       *config.Config
	now       func() time.Time
}

func NewCheckoutService(
	ledger ledgerservice.LedgerService,
	campaigns campaignservice.CampaignService,
	gw gateway.Gateway,
	sink OutcomeSink,
	scheduler ExpiryScheduler,
	sealer *sealer.Sealer,
	cfg *config.Config,
) CheckoutService {
	return &checkoutService{
		ledger:    ledger,
		campaigns: campaigns,
		gateway:   gw,
		sink:      sink,
		scheduler: scheduler,
		sealer:    sealer,
		validator: validator.NewSponsorshipValidator(),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartSponsorship creates a payment intent for the date and claims the date
// for it. If the claim loses a race the intent is canceled so the payer is
// never charged for a date they cannot have.
func (s *checkoutService) StartSponsorship(ctx context.Context, req *model.SponsorshipRequest) (*model.SponsorshipStarted, error) {
	req.DateID = strings.TrimSpace(req.DateID)
	req.SponsorName = sanitizer.NormalizeSponsorName(req.SponsorName)
	req.Email = sanitizer.NormalizeEmail(req.Email)
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.Validation("Sponsorship request is invalid", map[string]any{
			"errors": err,
		})
	}

	campaign, err := s.campaigns.GetActive(ctx)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil, apperrors.Conflict("Iftar sponsorships are not open right now")
		}
		return nil, err
	}

	date, err := s.ledger.GetDate(ctx, req.DateID)
	if err != nil {
		return nil, err
	}
	if date.Year != campaign.Year {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Date %s is not part of the %d campaign", date.Date, campaign.Year))
	}
	now := s.now()
	if !date.Public(now.Add(-s.cfg.ClaimTimeout)).Available {
		return nil, apperrors.Conflict("This date has already been sponsored")
	}

	intent, err := s.createIntent(ctx, gateway.CreateIntentParams{
		AmountMinor:    campaign.CostPerSlot,
		Currency:       campaign.Currency,
		ReceiptEmail:   req.Email,
		Description:    fmt.Sprintf("Iftar sponsorship for %s", date.Date),
		IdempotencyKey: intentIdempotencyKey(req, campaign),
		Metadata: map[string]string{
			model.MetaDateID:       date.ID,
			model.MetaCampaignYear: strconv.Itoa(campaign.Year),
			model.MetaSponsorName:  req.SponsorName,
			model.MetaSponsorEmail: req.Email,
			model.MetaPurpose:      model.PurposeIftarSponsorship,
		},
	})
	if err != nil {
		return nil, err
	}

	var email *string
	if req.Email != "" {
		email = &req.Email
	}
	claim, err := s.ledger.BeginClaim(ctx, date.ID, intent.ID, email)
	if err != nil {
		s.cancelIntent(ctx, intent.ID, date.ID)
		return nil, err
	}
	if claim.Rejected() {
		s.cancelIntent(ctx, intent.ID, date.ID)
		s.cfg.Log.Info("Sponsorship lost the claim race",
			"date_id", date.ID,
			"intent_id", intent.ID,
			"reason", claim.Reason,
		)
		return nil, apperrors.Conflict("This date was just taken, please choose another")
	}

	if err := s.scheduler.ScheduleExpiry(ctx, date.ID, intent.ID); err != nil {
		s.cfg.Log.Warn("Failed to schedule claim expiry, relying on sweep",
			"date_id", date.ID,
			"intent_id", intent.ID,
			"error", err,
		)
	}

	token, err := s.sealer.CreateOpaqueToken(date.ID, intent.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to create claim token", err)
	}

	s.cfg.Log.Info("Sponsorship started",
		"date_id", date.ID,
		"date", date.Date,
		"intent_id", intent.ID,
		"duplicate", claim.Duplicate,
	)

	return &model.SponsorshipStarted{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		ClaimToken:      token,
		DateID:          date.ID,
		Date:            date.Date,
		AmountMinor:     campaign.CostPerSlot,
		Currency:        campaign.Currency,
		ExpiresAt:       now.Add(s.cfg.ClaimTimeout),
	}, nil
}

// Confirm is the polling path. It asks the processor about the intent and,
// once the intent is final, delivers its outcome just as a webhook would.
func (s *checkoutService) Confirm(ctx context.Context, claimToken string) (*model.SponsorshipStatus, error) {
	dateID, intentID, err := s.sealer.ParseOpaqueToken(claimToken)
	if err != nil {
		s.cfg.Log.Debug("Rejected claim token", "error", err)
		return nil, apperrors.InvalidInput(paymenterrors.ErrInvalidClaimToken.Error())
	}

	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return nil, s.gatewayError("get payment intent", err)
	}
	if intent.Metadata[model.MetaDateID] != dateID {
		s.cfg.Log.Warn("Claim token names a different date than its intent",
			"intent_id", intentID,
			"token_date_id", dateID,
			"intent_date_id", intent.Metadata[model.MetaDateID],
		)
		return nil, apperrors.InvalidInput(paymenterrors.ErrTokenMismatch.Error())
	}

	if outcome, ok := intent.Outcome(); ok {
		if err := s.sink.Deliver(ctx, outcome); err != nil {
			return nil, err
		}
	}

	date, err := s.ledger.GetDate(ctx, dateID)
	if err != nil {
		return nil, err
	}

	return &model.SponsorshipStatus{
		PaymentIntentID: intentID,
		PaymentStatus:   intent.Status,
		Sponsored:       date.IsSponsoredBy(intentID),
		Pending:         date.IsPendingFor(intentID),
		Date:            date.Public(s.now().Add(-s.cfg.ClaimTimeout)),
	}, nil
}

// createIntent returns a payable intent. The processor replays the original
// intent for a reused idempotency key even after that intent was canceled, so
// a canceled replay is retried under a key chained to the dead intent.
func (s *checkoutService) createIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
	baseKey := params.IdempotencyKey
	for attempt := 0; ; attempt++ {
		intent, err := s.gateway.CreateIntent(ctx, params)
		if err != nil {
			return nil, s.gatewayError("create payment intent", err)
		}
		if baseKey == "" {
			return intent, nil
		}

		current, err := s.gateway.GetIntent(ctx, intent.ID)
		if err != nil {
			return nil, s.gatewayError("get payment intent", err)
		}
		if current.Status != model.PaymentCanceled {
			return current, nil
		}
		if attempt+1 >= maxIntentAttempts {
			s.cfg.Log.Error("Idempotency key keeps replaying canceled intents", "intent_id", intent.ID, "attempts", maxIntentAttempts)
			return nil, apperrors.Conflict("This sponsorship could not be started, please try again")
		}

		s.cfg.Log.Info("Idempotency key replayed a canceled intent, creating a new one", "intent_id", intent.ID)
		params.IdempotencyKey = baseKey + "-" + intent.ID
	}
}

func (s *checkoutService) cancelIntent(ctx context.Context, intentID, dateID string) {
	if err := s.gateway.CancelIntent(ctx, intentID); err != nil {
		s.cfg.Log.Error("Failed to cancel payment intent for unclaimed date",
			"intent_id", intentID,
			"date_id", dateID,
			"error", err,
		)
	}
}

func (s *checkoutService) gatewayError(op string, err error) error {
	switch {
	case errors.Is(err, gateway.ErrIntentNotFound):
		return apperrors.NotFound("Payment")
	case errors.Is(err, gateway.ErrUnavailable):
		s.cfg.Log.Warn("Payment processor unavailable", "operation", op, "error", err)
		return apperrors.UnavailableWithCause("payment processor", err)
	}
	s.cfg.Log.Error("Payment processor call failed", "operation", op, "error", err)
	return apperrors.Internal("Failed to "+op, err)
}

// intentIdempotencyKey makes a retried request reuse the processor's intent.
// Without a client key or e-mail every request gets a fresh intent.
func intentIdempotencyKey(req *model.SponsorshipRequest, campaign *model.CampaignSettings) string {
	client := req.IdempotencyKey
	if client == "" {
		client = req.Email
	}
	if client == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(strings.Join([]string{
		"iftar",
		req.DateID,
		client,
		req.SponsorName,
		strconv.FormatInt(campaign.CostPerSlot, 10),
		campaign.Currency,
	}, "|")))
	return "iftar-" + hex.EncodeToString(sum[:])
}
