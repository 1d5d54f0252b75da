package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	ledgererrors "masjid/internal/ledger/errors"
	"masjid/internal/ledger/repository"
	"masjid/internal/ledger/validator"
	"masjid/pkg/client"
	"masjid/pkg/config"
	apperrors "masjid/pkg/errors"
	"masjid/pkg/logger"
	"masjid/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc    *ledgerService
	recons repository.ReconciliationRepository
	clock  *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := client.OpenSQLite(client.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.DB.Close() })

	cfg := &config.Config{
		Log:            logger.Discard(),
		ClaimTimeout:   15 * time.Minute,
		SweepBatchSize: 2,
	}
	clock := &testClock{now: time.Date(2025, 2, 20, 18, 0, 0, 0, time.UTC)}
	recons := repository.NewSQLiteReconciliationRepository(store)

	svc := NewLedgerService(
		repository.NewSQLiteDateRepository(store),
		recons,
		validator.NewLedgerValidator(cfg.Log),
		cfg,
	).(*ledgerService)
	svc.now = clock.Now

	return &fixture{svc: svc, recons: recons, clock: clock}
}

func (f *fixture) generate(t *testing.T, start, end string) []*model.BookableDate {
	t.Helper()
	out, err := f.svc.GenerateDates(context.Background(), &model.GenerateRequest{Year: 2025, StartDate: start, EndDate: end})
	require.NoError(t, err)
	return out.Dates
}

func TestGenerateDates_TwiceKeepsThreeRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := &model.GenerateRequest{Year: 2025, StartDate: "2025-03-01", EndDate: "2025-03-03"}

	first, err := f.svc.GenerateDates(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)

	second, err := f.svc.GenerateDates(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	require.Len(t, second.Dates, 3)
	assert.Equal(t, []string{"2025-03-01", "2025-03-02", "2025-03-03"},
		[]string{second.Dates[0].Date, second.Dates[1].Date, second.Dates[2].Date})
}

func TestGenerateDates_RejectsInvertedRangeBeforeWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateDates(ctx, &model.GenerateRequest{Year: 2025, StartDate: "2025-03-03", EndDate: "2025-03-01"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	dates, err := f.svc.ListDates(ctx, 2025)
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestGenerateDates_SpansMonthBoundary(t *testing.T) {
	f := newFixture(t)
	dates := f.generate(t, "2025-02-27", "2025-03-02")

	require.Len(t, dates, 4)
	assert.Equal(t, "2025-02-28", dates[1].Date)
	assert.Equal(t, "2025-03-01", dates[2].Date)
}

func TestBeginClaim_ConcurrentBeginsHaveExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]

	var wg sync.WaitGroup
	results := make([]*model.ClaimResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.BeginClaim(context.Background(), date.ID, fmt.Sprintf("pi_%d", i), nil)
		}(i)
	}
	wg.Wait()

	claimed := 0
	for i, res := range results {
		require.NoError(t, errs[i])
		if res.Outcome == model.OutcomeClaimed {
			claimed++
		} else {
			assert.Equal(t, model.ReasonUnavailable, res.Reason)
		}
	}
	assert.Equal(t, 1, claimed)
}

func TestClaim_AtMostOneCommitPerDate(t *testing.T) {
	f := newFixture(t)
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]

	const payers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0

	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			intent := fmt.Sprintf("pi_%02d", i)

			begin, err := f.svc.BeginClaim(ctx, date.ID, intent, nil)
			if err != nil {
				t.Errorf("begin %s: %v", intent, err)
				return
			}
			// every payer reports success, even those that lost the claim
			commit, err := f.svc.CommitClaim(ctx, date.ID, intent, "Payer "+intent)
			if err != nil {
				t.Errorf("commit %s: %v", intent, err)
				return
			}
			if commit.Outcome == model.OutcomeCommitted {
				mu.Lock()
				committed++
				mu.Unlock()
				if begin.Rejected() {
					t.Errorf("%s committed without holding the claim", intent)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, committed)

	got, err := f.svc.GetDate(context.Background(), date.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateSponsored, got.State())

	records, err := f.recons.List(context.Background(), true, 100, 0)
	require.NoError(t, err)
	assert.Len(t, records, payers-1)
}

func TestReleaseThenBeginByAnotherPayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]

	res, err := f.svc.BeginClaim(ctx, date.ID, "pi_a", nil)
	require.NoError(t, err)
	require.Equal(t, model.OutcomeClaimed, res.Outcome)

	res, err = f.svc.BeginClaim(ctx, date.ID, "pi_b", nil)
	require.NoError(t, err)
	require.True(t, res.Rejected())

	res, err = f.svc.ReleaseClaim(ctx, date.ID, "pi_a")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeReleased, res.Outcome)

	res, err = f.svc.BeginClaim(ctx, date.ID, "pi_b", nil)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeClaimed, res.Outcome)
	assert.False(t, res.Duplicate)
}

func TestReleaseClaim_DuplicateIsRejectedWithoutWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]

	res, err := f.svc.ReleaseClaim(ctx, date.ID, "pi_never")
	require.NoError(t, err)
	assert.True(t, res.Rejected())

	got, err := f.svc.GetDate(ctx, date.ID)
	require.NoError(t, err)
	assert.Equal(t, date.Version, got.Version)
}

func TestBeginClaim_SameIntentIsDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]

	_, err := f.svc.BeginClaim(ctx, date.ID, "pi_a", nil)
	require.NoError(t, err)

	res, err := f.svc.BeginClaim(ctx, date.ID, "pi_a", nil)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeClaimed, res.Outcome)
	assert.True(t, res.Duplicate)
}

func TestCommitClaim_DuplicateIsNoOpSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]

	_, err := f.svc.BeginClaim(ctx, date.ID, "pi_a", nil)
	require.NoError(t, err)

	first, err := f.svc.CommitClaim(ctx, date.ID, "pi_a", "  Aisha   B. ")
	require.NoError(t, err)
	require.Equal(t, model.OutcomeCommitted, first.Outcome)
	require.NotNil(t, first.Date)
	assert.Equal(t, "Aisha B.", *first.Date.SponsorName)

	second, err := f.svc.CommitClaim(ctx, date.ID, "pi_a", "Aisha B.")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCommitted, second.Outcome)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Date.Version, second.Date.Version)

	records, err := f.recons.List(ctx, false, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCommitClaim_EmptyNameIsAnonymous(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]

	_, err := f.svc.BeginClaim(ctx, date.ID, "pi_a", nil)
	require.NoError(t, err)

	res, err := f.svc.CommitClaim(ctx, date.ID, "pi_a", "   ")
	require.NoError(t, err)
	assert.Equal(t, AnonymousSponsor, *res.Date.SponsorName)
}

func TestStaleClaim_IsReleasedLazilyAndReclaimable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]

	_, err := f.svc.BeginClaim(ctx, date.ID, "pi_slow", nil)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	res, err := f.svc.BeginClaim(ctx, date.ID, "pi_fast", nil)
	require.NoError(t, err)
	assert.True(t, res.Rejected(), "claim is not stale yet")

	public, err := f.svc.ListAvailable(ctx, 2025, false)
	require.NoError(t, err)
	assert.False(t, public[0].Available)

	f.clock.Advance(11 * time.Minute)

	public, err = f.svc.ListAvailable(ctx, 2025, true)
	require.NoError(t, err)
	require.Len(t, public, 1, "stale pending dates are offered again")

	res, err = f.svc.BeginClaim(ctx, date.ID, "pi_fast", nil)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeClaimed, res.Outcome)

	got, err := f.svc.GetDate(ctx, date.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPendingFor("pi_fast"))
}

func TestReleaseExpired_SweepsOnlyStaleClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dates := f.generate(t, "2025-03-01", "2025-03-05")

	for i := 0; i < 3; i++ {
		_, err := f.svc.BeginClaim(ctx, dates[i].ID, fmt.Sprintf("pi_old_%d", i), nil)
		require.NoError(t, err)
	}
	f.clock.Advance(10 * time.Minute)
	_, err := f.svc.BeginClaim(ctx, dates[3].ID, "pi_new", nil)
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	released, err := f.svc.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, released, "sweep continues past one batch")

	got, err := f.svc.GetDate(ctx, dates[3].ID)
	require.NoError(t, err)
	assert.True(t, got.IsPendingFor("pi_new"))

	for i := 0; i < 3; i++ {
		res, err := f.svc.BeginClaim(ctx, dates[i].ID, fmt.Sprintf("pi_next_%d", i), nil)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeClaimed, res.Outcome)
	}
}

func TestExpireClaim_OnlyAfterTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]

	_, err := f.svc.BeginClaim(ctx, date.ID, "pi_a", nil)
	require.NoError(t, err)

	res, err := f.svc.ExpireClaim(ctx, date.ID, "pi_a")
	require.NoError(t, err)
	assert.Equal(t, model.ReasonNotStale, res.Reason)

	f.clock.Advance(16 * time.Minute)
	res, err = f.svc.ExpireClaim(ctx, date.ID, "pi_a")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeReleased, res.Outcome)
}

func TestCommitClaim_AfterTakeoverRecordsReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]

	_, err := f.svc.BeginClaim(ctx, date.ID, "pi_slow", nil)
	require.NoError(t, err)
	f.clock.Advance(20 * time.Minute)
	_, err = f.svc.BeginClaim(ctx, date.ID, "pi_fast", nil)
	require.NoError(t, err)
	_, err = f.svc.CommitClaim(ctx, date.ID, "pi_fast", "Fast payer")
	require.NoError(t, err)

	res, err := f.svc.CommitClaim(ctx, date.ID, "pi_slow", "Slow payer")
	require.NoError(t, err)
	assert.True(t, res.Rejected())
	assert.Equal(t, model.ReasonTakenOver, res.Reason)

	got, err := f.svc.GetDate(ctx, date.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSponsoredBy("pi_fast"), "the existing sponsor is never overwritten")

	// the processor may deliver the same outcome twice
	_, err = f.svc.CommitClaim(ctx, date.ID, "pi_slow", "Slow payer")
	require.NoError(t, err)

	records, err := f.svc.ListReconciliations(ctx, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pi_slow", records[0].PaymentIntentID)
	assert.Equal(t, "pi_fast", *records[0].ObservedReference)

	require.NoError(t, f.svc.ResolveReconciliation(ctx, records[0].ID, "Refunded via dashboard"))
	err = f.svc.ResolveReconciliation(ctx, records[0].ID, "again")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestUpdateDate_ManualSponsor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]
	name := "Sisters committee"

	got, err := f.svc.UpdateDate(ctx, date.ID, &model.DateUpdate{SponsorName: &name}, nil)
	require.NoError(t, err)
	assert.False(t, got.Available)
	assert.Equal(t, model.StateSponsored, got.State())
	assert.Contains(t, *got.SponsorReference, model.ManualPrefix)
	assert.NotNil(t, got.SponsoredAt)

	notes := "paid in cash"
	got, err = f.svc.UpdateDate(ctx, date.ID, &model.DateUpdate{Notes: &notes}, &got.Version)
	require.NoError(t, err)
	assert.Equal(t, "paid in cash", got.Notes)
	assert.Equal(t, model.StateSponsored, got.State())

	stale := got.Version - 1
	_, err = f.svc.UpdateDate(ctx, date.ID, &model.DateUpdate{ClearSponsor: true}, &stale)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	got, err = f.svc.UpdateDate(ctx, date.ID, &model.DateUpdate{ClearSponsor: true}, nil)
	require.NoError(t, err)
	assert.True(t, got.Available)
	assert.Nil(t, got.SponsorReference)
	assert.Nil(t, got.SponsorName)
	assert.Equal(t, "paid in cash", got.Notes)
}

func TestUpdateDate_CannotTouchPendingClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]
	_, err := f.svc.BeginClaim(ctx, date.ID, "pi_a", nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateDate(ctx, date.ID, &model.DateUpdate{ClearSponsor: true}, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	notes := "reserved for the imam's family"
	got, err := f.svc.UpdateDate(ctx, date.ID, &model.DateUpdate{Notes: &notes}, nil)
	require.NoError(t, err)
	assert.True(t, got.IsPendingFor("pi_a"), "a notes edit keeps the claim")
	require.NotNil(t, got.PendingSince)
	assert.True(t, got.PendingSince.Equal(f.clock.Now()))
}

func TestUpdateDate_NotesEditLeavesClaimExpirable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]
	_, err := f.svc.BeginClaim(ctx, date.ID, "pi_a", nil)
	require.NoError(t, err)

	notes := "family of five"
	_, err = f.svc.UpdateDate(ctx, date.ID, &model.DateUpdate{Notes: &notes}, nil)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	released, err := f.svc.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	result, err := f.svc.BeginClaim(ctx, date.ID, "pi_b", nil)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeClaimed, result.Outcome)
}

func TestUpdateDate_RejectsForgedPendingReference(t *testing.T) {
	f := newFixture(t)
	date := f.generate(t, "2025-03-01", "2025-03-01")[0]
	ref := "pending:pi_fake"

	_, err := f.svc.UpdateDate(context.Background(), date.ID, &model.DateUpdate{SponsorReference: &ref}, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestGetDate_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetDate(context.Background(), "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.svc.BeginClaim(context.Background(), "missing", "pi_a", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

type unavailableDates struct {
	repository.DateRepository
}

func (unavailableDates) ListByYear(context.Context, int, bool) ([]*model.BookableDate, error) {
	return nil, fmt.Errorf("%w: server selection timeout", ledgererrors.ErrStoreUnavailable)
}

func (unavailableDates) ClaimIfAvailable(context.Context, string, string, *string, time.Time) (bool, error) {
	return false, fmt.Errorf("%w: connection reset", ledgererrors.ErrStoreUnavailable)
}

func (unavailableDates) FindByID(context.Context, string) (*model.BookableDate, error) {
	return nil, errors.New("decode failed")
}

func TestStoreUnavailable_IsRetryable(t *testing.T) {
	cfg := &config.Config{Log: logger.Discard(), ClaimTimeout: time.Minute}
	svc := NewLedgerService(unavailableDates{}, nil, validator.NewLedgerValidator(cfg.Log), cfg)

	_, err := svc.ListAvailable(context.Background(), 2025, false)
	appErr := apperrors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.StatusCode())
	assert.True(t, appErr.Retryable())

	_, err = svc.BeginClaim(context.Background(), "d1", "pi_a", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnavailable))

	_, err = svc.GetDate(context.Background(), "d1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternal))
}

type malformedIDDates struct {
	repository.DateRepository
}

func (malformedIDDates) ClaimIfAvailable(_ context.Context, id, _ string, _ *string, _ time.Time) (bool, error) {
	return false, fmt.Errorf("%w: %s", ledgererrors.ErrInvalidID, id)
}

func (malformedIDDates) CommitIfPending(_ context.Context, id, _, _, _ string, _ time.Time) (bool, error) {
	return false, fmt.Errorf("%w: %s", ledgererrors.ErrInvalidID, id)
}

func (malformedIDDates) ReleaseIfPending(_ context.Context, id, _ string, _ *time.Time, _ time.Time) (bool, error) {
	return false, fmt.Errorf("%w: %s", ledgererrors.ErrInvalidID, id)
}

func (malformedIDDates) FindByID(_ context.Context, id string) (*model.BookableDate, error) {
	return nil, fmt.Errorf("%w: %s", ledgererrors.ErrInvalidID, id)
}

func TestClaimTransitions_MalformedDateID(t *testing.T) {
	f := newFixture(t)
	f.svc.dates = malformedIDDates{}
	ctx := context.Background()

	_, err := f.svc.BeginClaim(ctx, "not-an-id", "pi_a", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	released, err := f.svc.ReleaseClaim(ctx, "not-an-id", "pi_a")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRejected, released.Outcome)

	expired, err := f.svc.ExpireClaim(ctx, "not-an-id", "pi_a")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRejected, expired.Outcome)

	committed, err := f.svc.CommitClaim(ctx, "not-an-id", "pi_a", "Yusuf")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRejected, committed.Outcome)
	assert.Equal(t, model.ReasonDateMissing, committed.Reason)

	open, err := f.recons.List(ctx, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "pi_a", open[0].PaymentIntentID)
}

type recordingExpiry struct {
	mu      sync.Mutex
	intents []string
}

func (r *recordingExpiry) ClaimExpired(_ context.Context, dateID, intentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intentID)
}

func TestExpiryListener_HearsEveryStaleRelease(t *testing.T) {
	f := newFixture(t)
	expiry := &recordingExpiry{}
	f.svc.expiry = expiry
	ctx := context.Background()
	dates := f.generate(t, "2025-03-01", "2025-03-03")

	for i, intent := range []string{"pi_a", "pi_b", "pi_c"} {
		_, err := f.svc.BeginClaim(ctx, dates[i].ID, intent, nil)
		require.NoError(t, err)
	}
	f.clock.Advance(time.Hour)

	result, err := f.svc.BeginClaim(ctx, dates[2].ID, "pi_d", nil)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeClaimed, result.Outcome)

	result, err = f.svc.ExpireClaim(ctx, dates[0].ID, "pi_a")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeReleased, result.Outcome)

	released, err := f.svc.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	assert.Equal(t, []string{"pi_c", "pi_a", "pi_b"}, expiry.intents)

	_, err = f.svc.ReleaseClaim(ctx, dates[2].ID, "pi_d")
	require.NoError(t, err)
	assert.Len(t, expiry.intents, 3, "an explicit release is not an expiry")
}
