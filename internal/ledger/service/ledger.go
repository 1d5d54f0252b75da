package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ledgererrors "masjid/internal/ledger/errors"
	"masjid/internal/ledger/repository"
	"masjid/internal/ledger/validator"
	"masjid/pkg/config"
	apperrors "masjid/pkg/errors"
	"masjid/pkg/model"
	"masjid/pkg/sanitizer"

	"github.com/google/uuid"
)

const (
	// AnonymousSponsor is shown when a payer leaves the name empty.
	AnonymousSponsor = "Anonymous"

	adminUpdateAttempts = 3
	maxSweepRounds      = 10
)

type LedgerService interface {
	GenerateDates(ctx context.Context, req *model.GenerateRequest) (*model.GeneratedDates, error)
	ListAvailable(ctx context.Context, year int, onlyAvailable bool) ([]model.PublicDate, error)
	ListDates(ctx context.Context, year int) ([]*model.BookableDate, error)
	ListYears(ctx context.Context) ([]int, error)
	GetDate(ctx context.Context, id string) (*model.BookableDate, error)

	BeginClaim(ctx context.Context, dateID, intentID string, email *string) (*model.ClaimResult, error)
	CommitClaim(ctx context.Context, dateID, intentID, sponsorName string) (*model.ClaimResult, error)
	ReleaseClaim(ctx context.Context, dateID, intentID string) (*model.ClaimResult, error)
	ExpireClaim(ctx context.Context, dateID, intentID string) (*model.ClaimResult, error)
	ReleaseExpired(ctx context.Context) (int, error)

	UpdateDate(ctx context.Context, id string, update *model.DateUpdate, expectedVersion *int64) (*model.BookableDate, error)

	ListReconciliations(ctx context.Context, onlyOpen bool, limit int, offset int64) ([]*model.Reconciliation, error)
	ResolveReconciliation(ctx context.Context, id, note string) error
}

// ExpiryListener is told about every claim released because it went stale,
// whichever path released it.
type ExpiryListener interface {
	ClaimExpired(ctx context.Context, dateID, intentID string)
}

type Option func(*ledgerService)

func WithExpiryListener(l ExpiryListener) Option {
	return func(s *ledgerService) {
		s.expiry = l
	}
}

type ledgerService struct {
	dates     repository.DateRepository
	recons    repository.ReconciliationRepository
	validator *validator.LedgerValidator
	expiry    ExpiryListener
	cfg       *config.Config
	now       func() time.Time
}

func NewLedgerService(
	dates repository.DateRepository,
	recons repository.ReconciliationRepository,
	validator *validator.LedgerValidator,
	cfg *config.Config,
	opts ...Option,
) LedgerService {
	s := &ledgerService{
		dates:     dates,
		recons:    recons,
		validator: validator,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ledgerService) GenerateDates(ctx context.Context, req *model.GenerateRequest) (*model.GeneratedDates, error) {
	if err := s.validator.ValidateGenerate(req); err != nil {
		s.cfg.Log.Warn("Date generation request rejected",
			"year", req.Year,
			"start_date", req.StartDate,
			"end_date", req.EndDate,
			"error", err,
		)
		return nil, apperrors.Validation("Date generation request is invalid", map[string]any{
			"errors": err,
		})
	}

	days := expandDays(req.StartDate, req.EndDate)
	created, err := s.dates.Generate(ctx, req.Year, days, req.Regenerate)
	if err != nil {
		return nil, s.storeError("generate dates", err, "year", req.Year)
	}

	dates, err := s.dates.ListByYear(ctx, req.Year, false)
	if err != nil {
		return nil, s.storeError("list dates", err, "year", req.Year)
	}

	s.cfg.Log.Info("Iftar dates generated",
		"year", req.Year,
		"start_date", req.StartDate,
		"end_date", req.EndDate,
		"regenerate", req.Regenerate,
		"created", created,
		"total", len(dates),
	)

	return &model.GeneratedDates{Year: req.Year, Created: created, Dates: dates}, nil
}

// expandDays lists every calendar day from start to end inclusive. Both
// bounds have been validated.
func expandDays(start, end string) []string {
	from, _ := time.Parse(model.DateLayout, start)
	to, _ := time.Parse(model.DateLayout, end)

	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(model.DateLayout))
	}
	return days
}

// ListAvailable returns the public calendar for year. Pending claims past the
// claim timeout are reported as available.
func (s *ledgerService) ListAvailable(ctx context.Context, year int, onlyAvailable bool) ([]model.PublicDate, error) {
	dates, err := s.dates.ListByYear(ctx, year, false)
	if err != nil {
		return nil, s.storeError("list dates", err, "year", year)
	}

	cutoff := s.staleCutoff()
	out := make([]model.PublicDate, 0, len(dates))
	for _, d := range dates {
		p := d.Public(cutoff)
		if onlyAvailable && !p.Available {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *ledgerService) ListDates(ctx context.Context, year int) ([]*model.BookableDate, error) {
	dates, err := s.dates.ListByYear(ctx, year, false)
	if err != nil {
		return nil, s.storeError("list dates", err, "year", year)
	}
	return dates, nil
}

func (s *ledgerService) ListYears(ctx context.Context) ([]int, error) {
	years, err := s.dates.ListYears(ctx)
	if err != nil {
		return nil, s.storeError("list years", err)
	}
	return years, nil
}

func (s *ledgerService) GetDate(ctx context.Context, id string) (*model.BookableDate, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Date ID cannot be empty")
	}

	date, err := s.dates.FindByID(ctx, id)
	if err != nil {
		return nil, s.findError(id, err)
	}
	return date, nil
}

// BeginClaim moves an available date to pending for intentID. When the row
// is held by a claim older than the claim timeout, that claim is released
// and the claim retried once.
func (s *ledgerService) BeginClaim(ctx context.Context, dateID, intentID string, email *string) (*model.ClaimResult, error) {
	if err := requireClaimIDs(dateID, intentID); err != nil {
		return nil, err
	}
	email = sanitizer.NormalizeOptional(email, sanitizer.NormalizeEmail)
	pendingRef := model.PendingReference(intentID)

	for attempt := 0; ; attempt++ {
		now := s.now()
		ok, err := s.dates.ClaimIfAvailable(ctx, dateID, pendingRef, email, now)
		if unmatchedID(err) {
			return nil, apperrors.NotFoundWithID("Iftar date", dateID)
		}
		if err != nil {
			return nil, s.storeError("claim date", err, "date_id", dateID, "intent_id", intentID)
		}
		if ok {
			s.cfg.Log.Info("Date claimed", "date_id", dateID, "intent_id", intentID)
			return &model.ClaimResult{Outcome: model.OutcomeClaimed, DateID: dateID, IntentID: intentID}, nil
		}

		date, err := s.dates.FindByID(ctx, dateID)
		if err != nil {
			return nil, s.findError(dateID, err)
		}

		if date.IsPendingFor(intentID) {
			return &model.ClaimResult{Outcome: model.OutcomeClaimed, DateID: dateID, IntentID: intentID, Duplicate: true}, nil
		}

		cutoff := now.Add(-s.cfg.ClaimTimeout)
		if attempt == 0 && date.IsStale(cutoff) {
			staleIntent, _ := date.PendingIntent()
			released, err := s.dates.ReleaseIfPending(ctx, dateID, *date.SponsorReference, &cutoff, now)
			if err != nil {
				return nil, s.storeError("release stale claim", err, "date_id", dateID, "stale_intent_id", staleIntent)
			}
			if released {
				s.cfg.Log.Warn("Released stale claim",
					"date_id", dateID,
					"stale_intent_id", staleIntent,
					"pending_since", date.PendingSince,
					"claimed_by", intentID,
				)
				s.claimExpired(ctx, dateID, staleIntent)
			}
			continue
		}

		s.cfg.Log.Info("Claim rejected, date unavailable",
			"date_id", dateID,
			"intent_id", intentID,
			"state", date.State(),
		)
		return rejected(dateID, intentID, model.ReasonUnavailable, date), nil
	}
}

// CommitClaim binds a completed payment to the date it claimed. A repeated
// commit for the same intent succeeds without writing. Any other failed
// precondition means money was collected without a date; it is recorded for
// manual reconciliation and never resolved automatically.
func (s *ledgerService) CommitClaim(ctx context.Context, dateID, intentID, sponsorName string) (*model.ClaimResult, error) {
	if err := requireClaimIDs(dateID, intentID); err != nil {
		return nil, err
	}
	name := sanitizer.NormalizeSponsorName(sponsorName)
	if name == "" {
		name = AnonymousSponsor
	}

	ok, err := s.dates.CommitIfPending(ctx, dateID, model.PendingReference(intentID), intentID, name, s.now())
	if unmatchedID(err) {
		ok, err = false, nil
	}
	if err != nil {
		return nil, s.storeError("commit claim", err, "date_id", dateID, "intent_id", intentID)
	}
	if ok {
		s.cfg.Log.Info("Sponsorship committed", "date_id", dateID, "intent_id", intentID, "sponsor_name", name)
		date, err := s.dates.FindByID(ctx, dateID)
		if err != nil {
			s.cfg.Log.Warn("Failed to reload committed date", "date_id", dateID, "error", err)
		}
		return &model.ClaimResult{Outcome: model.OutcomeCommitted, DateID: dateID, IntentID: intentID, Date: date}, nil
	}

	date, err := s.dates.FindByID(ctx, dateID)
	if err != nil && !errors.Is(err, ledgererrors.ErrNotFound) && !errors.Is(err, ledgererrors.ErrInvalidID) {
		return nil, s.storeError("find date", err, "date_id", dateID)
	}

	if date != nil && date.IsSponsoredBy(intentID) {
		s.cfg.Log.Info("Duplicate commit ignored", "date_id", dateID, "intent_id", intentID)
		return &model.ClaimResult{Outcome: model.OutcomeCommitted, DateID: dateID, IntentID: intentID, Duplicate: true, Date: date}, nil
	}

	reason := model.ReasonTakenOver
	var observed *string
	switch {
	case date == nil:
		reason = model.ReasonDateMissing
	case date.State() == model.StateAvailable:
		reason = model.ReasonNotPending
	default:
		observed = date.SponsorReference
	}

	if err := s.recordReconciliation(ctx, dateID, intentID, name, observed, reason); err != nil {
		return nil, err
	}
	return rejected(dateID, intentID, reason, date), nil
}

func (s *ledgerService) recordReconciliation(ctx context.Context, dateID, intentID, name string, observed *string, reason string) error {
	rec := &model.Reconciliation{
		DateID:            dateID,
		PaymentIntentID:   intentID,
		SponsorName:       name,
		ObservedReference: observed,
		Reason:            reason,
		CreatedAt:         s.now(),
	}

	created, err := s.recons.Record(ctx, rec)
	if err != nil {
		s.cfg.Log.Error("Failed to record reconciliation for collected payment",
			"date_id", dateID,
			"intent_id", intentID,
			"reason", reason,
			"error", err,
		)
		return s.storeError("record reconciliation", err, "date_id", dateID, "intent_id", intentID)
	}

	if created {
		s.cfg.Log.Error("Payment collected but claim lost, manual reconciliation required",
			"reconciliation_id", rec.ID,
			"date_id", dateID,
			"intent_id", intentID,
			"sponsor_name", name,
			"observed_reference", observed,
			"reason", reason,
		)
	}
	return nil
}

func (s *ledgerService) ReleaseClaim(ctx context.Context, dateID, intentID string) (*model.ClaimResult, error) {
	if err := requireClaimIDs(dateID, intentID); err != nil {
		return nil, err
	}

	ok, err := s.dates.ReleaseIfPending(ctx, dateID, model.PendingReference(intentID), nil, s.now())
	if unmatchedID(err) {
		ok, err = false, nil
	}
	if err != nil {
		return nil, s.storeError("release claim", err, "date_id", dateID, "intent_id", intentID)
	}
	if !ok {
		s.cfg.Log.Debug("Release ignored, claim not pending", "date_id", dateID, "intent_id", intentID)
		return rejected(dateID, intentID, model.ReasonNotPending, nil), nil
	}

	s.cfg.Log.Info("Claim released", "date_id", dateID, "intent_id", intentID)
	return &model.ClaimResult{Outcome: model.OutcomeReleased, DateID: dateID, IntentID: intentID}, nil
}

// ExpireClaim releases the claim only if it is still pending for intentID and
// older than the claim timeout.
func (s *ledgerService) ExpireClaim(ctx context.Context, dateID, intentID string) (*model.ClaimResult, error) {
	if err := requireClaimIDs(dateID, intentID); err != nil {
		return nil, err
	}

	now := s.now()
	cutoff := now.Add(-s.cfg.ClaimTimeout)
	ok, err := s.dates.ReleaseIfPending(ctx, dateID, model.PendingReference(intentID), &cutoff, now)
	if unmatchedID(err) {
		ok, err = false, nil
	}
	if err != nil {
		return nil, s.storeError("expire claim", err, "date_id", dateID, "intent_id", intentID)
	}
	if !ok {
		return rejected(dateID, intentID, model.ReasonNotStale, nil), nil
	}

	s.cfg.Log.Warn("Claim expired", "date_id", dateID, "intent_id", intentID)
	s.claimExpired(ctx, dateID, intentID)
	return &model.ClaimResult{Outcome: model.OutcomeReleased, DateID: dateID, IntentID: intentID}, nil
}

// ReleaseExpired sweeps pending claims older than the claim timeout. Each
// release is conditional on the exact reference it saw, so a claim that
// committed in the meantime is left alone.
func (s *ledgerService) ReleaseExpired(ctx context.Context) (int, error) {
	released := 0
	for round := 0; round < maxSweepRounds; round++ {
		now := s.now()
		cutoff := now.Add(-s.cfg.ClaimTimeout)

		stale, err := s.dates.FindStalePending(ctx, cutoff, s.cfg.SweepBatchSize)
		if err != nil {
			return released, s.storeError("find stale claims", err)
		}

		for _, date := range stale {
			if date.SponsorReference == nil {
				continue
			}
			ok, err := s.dates.ReleaseIfPending(ctx, date.ID, *date.SponsorReference, &cutoff, now)
			if err != nil {
				return released, s.storeError("release stale claim", err, "date_id", date.ID)
			}
			if ok {
				released++
				intent, _ := date.PendingIntent()
				s.cfg.Log.Warn("Stale claim released by sweep",
					"date_id", date.ID,
					"date", date.Date,
					"intent_id", intent,
					"pending_since", date.PendingSince,
				)
				s.claimExpired(ctx, date.ID, intent)
			}
		}

		if len(stale) < s.cfg.SweepBatchSize {
			break
		}
	}

	if released > 0 {
		s.cfg.Log.Info("Stale claim sweep finished", "released", released)
	}
	return released, nil
}

// UpdateDate applies a manual admin edit. Without expectedVersion the last
// writer wins, but the write is still conditional on the version that was
// read so a concurrent claim is never overwritten.
func (s *ledgerService) UpdateDate(ctx context.Context, id string, update *model.DateUpdate, expectedVersion *int64) (*model.BookableDate, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Date ID cannot be empty")
	}
	s.sanitizeUpdate(update)
	if err := s.validator.ValidateUpdate(update); err != nil {
		return nil, apperrors.Validation("Date update is invalid", map[string]any{
			"errors": err,
		})
	}

	for attempt := 0; attempt < adminUpdateAttempts; attempt++ {
		existing, err := s.dates.FindByID(ctx, id)
		if err != nil {
			return nil, s.findError(id, err)
		}
		if expectedVersion != nil && existing.Version != *expectedVersion {
			return nil, versionConflict(id, existing.Version)
		}

		now := s.now()
		change, err := mergeDateUpdate(existing, update, now)
		if err != nil {
			return nil, err
		}

		ok, err := s.dates.AdminUpdate(ctx, id, change, existing.Version, now)
		if err != nil {
			return nil, s.storeError("update date", err, "date_id", id)
		}
		if ok {
			s.cfg.Log.Info("Date updated by admin",
				"date_id", id,
				"date", existing.Date,
				"previous_state", existing.State(),
				"sponsor_reference", change.SponsorReference,
			)
			return s.GetDate(ctx, id)
		}
		if expectedVersion != nil {
			return nil, versionConflict(id, existing.Version+1)
		}
	}

	return nil, apperrors.Conflict("Date is being modified concurrently, please retry")
}

func versionConflict(id string, current int64) error {
	return apperrors.Conflict(fmt.Sprintf("Date %s was modified by someone else", id)).WithDetails(map[string]any{
		"current_version": current,
	})
}

// mergeDateUpdate computes the sponsor state after update. Admins cannot
// create or override a pending claim.
func mergeDateUpdate(existing *model.BookableDate, update *model.DateUpdate, now time.Time) (*repository.AdminChange, error) {
	change := &repository.AdminChange{
		SponsorReference: existing.SponsorReference,
		SponsorName:      existing.SponsorName,
		SponsorEmail:     existing.SponsorEmail,
		SponsoredAt:      existing.SponsoredAt,
		PendingSince:     existing.PendingSince,
		Notes:            existing.Notes,
	}
	if update.Notes != nil {
		change.Notes = *update.Notes
	}

	touchesSponsor := update.ClearSponsor || update.SponsorReference != nil || update.SponsorName != nil || update.SponsorEmail != nil
	if !touchesSponsor {
		return change, nil
	}
	if existing.State() == model.StatePending {
		return nil, apperrors.Conflict("Date has a payment in progress and cannot be edited until it completes or expires")
	}

	change.PendingSince = nil
	if update.ClearSponsor {
		change.SponsorReference = nil
		change.SponsorName = nil
		change.SponsorEmail = nil
		change.SponsoredAt = nil
		return change, nil
	}

	if update.SponsorReference != nil {
		change.SponsorReference = update.SponsorReference
	}
	if update.SponsorName != nil {
		change.SponsorName = update.SponsorName
	}
	if update.SponsorEmail != nil {
		change.SponsorEmail = update.SponsorEmail
	}

	if change.SponsorReference == nil {
		if change.SponsorName == nil {
			return nil, apperrors.InvalidInput("sponsor_name or sponsor_reference is required to sponsor a date")
		}
		manual := model.ManualPrefix + uuid.NewString()
		change.SponsorReference = &manual
	}

	if existing.SponsorReference == nil || *existing.SponsorReference != *change.SponsorReference {
		sponsoredAt := now
		change.SponsoredAt = &sponsoredAt
	}
	return change, nil
}

func (s *ledgerService) sanitizeUpdate(update *model.DateUpdate) {
	update.SponsorName = sanitizer.NormalizeOptional(update.SponsorName, sanitizer.NormalizeSponsorName)
	update.SponsorEmail = sanitizer.NormalizeOptional(update.SponsorEmail, sanitizer.NormalizeEmail)
	if update.SponsorReference != nil {
		ref := strings.TrimSpace(*update.SponsorReference)
		update.SponsorReference = &ref
	}
	if update.Notes != nil {
		notes := sanitizer.NormalizeNotes(*update.Notes)
		update.Notes = &notes
	}
}

func (s *ledgerService) ListReconciliations(ctx context.Context, onlyOpen bool, limit int, offset int64) ([]*model.Reconciliation, error) {
	records, err := s.recons.List(ctx, onlyOpen, config.NormalizePaginationLimit(limit), config.NormalizeOffset(offset))
	if err != nil {
		return nil, s.storeError("list reconciliations", err)
	}
	return records, nil
}

func (s *ledgerService) ResolveReconciliation(ctx context.Context, id, note string) error {
	if id == "" {
		return apperrors.InvalidInput("Reconciliation ID cannot be empty")
	}
	note = sanitizer.NormalizeNotes(note)
	if note == "" {
		return apperrors.InvalidInput("A resolution note is required")
	}

	resolved, err := s.recons.Resolve(ctx, id, note, s.now())
	if err != nil {
		if errors.Is(err, ledgererrors.ErrReconciliationNotFound) {
			return apperrors.NotFoundWithID("Reconciliation", id)
		}
		return s.storeError("resolve reconciliation", err, "reconciliation_id", id)
	}
	if !resolved {
		return apperrors.Conflict("Reconciliation is already resolved")
	}

	s.cfg.Log.Info("Reconciliation resolved", "reconciliation_id", id, "note", note)
	return nil
}

func (s *ledgerService) claimExpired(ctx context.Context, dateID, intentID string) {
	if s.expiry == nil || intentID == "" {
		return
	}
	s.expiry.ClaimExpired(ctx, dateID, intentID)
}

func (s *ledgerService) staleCutoff() time.Time {
	return s.now().Add(-s.cfg.ClaimTimeout)
}

func (s *ledgerService) findError(id string, err error) error {
	if errors.Is(err, ledgererrors.ErrNotFound) || errors.Is(err, ledgererrors.ErrInvalidID) {
		return apperrors.NotFoundWithID("Iftar date", id)
	}
	return s.storeError("find date", err, "date_id", id)
}

// storeError maps a repository failure to an AppError. Connectivity problems
// become a retryable 503.
func (s *ledgerService) storeError(op string, err error, args ...any) error {
	attrs := append([]any{"operation", op, "error", err}, args...)
	if errors.Is(err, ledgererrors.ErrStoreUnavailable) {
		s.cfg.Log.Warn("Ledger store unavailable", attrs...)
		return apperrors.UnavailableWithCause("ledger store", err)
	}
	s.cfg.Log.Error("Ledger store operation failed", attrs...)
	return apperrors.Internal("Failed to "+op, err)
}

// unmatchedID reports an ID the store cannot parse. No row can match it, so
// conditional writes treat it like a failed precondition.
func unmatchedID(err error) bool {
	return errors.Is(err, ledgererrors.ErrInvalidID)
}

func requireClaimIDs(dateID, intentID string) error {
	if dateID == "" {
		return apperrors.InvalidInput("Date ID cannot be empty")
	}
	if intentID == "" {
		return apperrors.InvalidInput("Payment intent ID cannot be empty")
	}
	return nil
}

func rejected(dateID, intentID, reason string, date *model.BookableDate) *model.ClaimResult {
	return &model.ClaimResult{
		Outcome:  model.OutcomeRejected,
		DateID:   dateID,
		IntentID: intentID,
		Reason:   reason,
		Date:     date,
	}
}
