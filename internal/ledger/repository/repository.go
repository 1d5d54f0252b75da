package repository

import (
	"context"
	"time"

	"masjid/pkg/config"
	"masjid/pkg/model"
)

const (
	DatesCollection           = "Iftar_dates"
	ReconciliationsCollection = "Iftar_reconciliations"
)

// DateRepository is the ledger's store. Every claim transition is a single
// conditional write; a false result means the precondition did not hold and
// nothing was written.
type DateRepository interface {
	// Generate inserts the missing days of year and returns how many rows were
	// created. With regenerate, the year's rows are removed first.
	Generate(ctx context.Context, year int, days []string, regenerate bool) (int, error)
	ListByYear(ctx context.Context, year int, onlyAvailable bool) ([]*model.BookableDate, error)
	ListYears(ctx context.Context) ([]int, error)
	FindByID(ctx context.Context, id string) (*model.BookableDate, error)

	ClaimIfAvailable(ctx context.Context, id, pendingRef string, email *string, now time.Time) (bool, error)
	CommitIfPending(ctx context.Context, id, pendingRef, reference, sponsorName string, now time.Time) (bool, error)
	// ReleaseIfPending clears the claim held by pendingRef. When pendingBefore
	// is set, the claim must also have started before it.
	ReleaseIfPending(ctx context.Context, id, pendingRef string, pendingBefore *time.Time, now time.Time) (bool, error)
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*model.BookableDate, error)

	// AdminUpdate overwrites the sponsor fields if the row is still at version.
	AdminUpdate(ctx context.Context, id string, change *AdminChange, version int64, now time.Time) (bool, error)
}

// AdminChange is the complete sponsor state after a manual edit.
// A nil SponsorReference makes the date available. PendingSince is only
// carried through when a notes edit touches a pending row.
type AdminChange struct {
	SponsorReference *string
	SponsorName      *string
	SponsorEmail     *string
	SponsoredAt      *time.Time
	PendingSince     *time.Time
	Notes            string
}

type ReconciliationRepository interface {
	// Record stores rec unless one already exists for the same date and
	// payment; created reports which happened.
	Record(ctx context.Context, rec *model.Reconciliation) (bool, error)
	List(ctx context.Context, onlyOpen bool, limit int, offset int64) ([]*model.Reconciliation, error)
	// Resolve marks an open record resolved. It returns false if the record
	// was already resolved.
	Resolve(ctx context.Context, id, note string, now time.Time) (bool, error)
}

// NewDateRepository returns the implementation for the configured store driver.
func NewDateRepository(cfg *config.Config) DateRepository {
	if cfg.StoreDriver == config.StoreSQLite {
		return NewSQLiteDateRepository(cfg.Client.SQLite)
	}
	return NewMongoDateRepository(cfg)
}

func NewReconciliationRepository(cfg *config.Config) ReconciliationRepository {
	if cfg.StoreDriver == config.StoreSQLite {
		return NewSQLiteReconciliationRepository(cfg.Client.SQLite)
	}
	return NewMongoReconciliationRepository(cfg)
}
