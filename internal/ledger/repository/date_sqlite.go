package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ledgererrors "masjid/internal/ledger/errors"
	"masjid/pkg/client"
	"masjid/pkg/model"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

const dateColumns = `id, date, year, available, sponsor_reference, sponsor_name, sponsor_email,
	notes, pending_since, sponsored_at, version, created_at, updated_at`

type sqliteDateRepository struct {
	db *sql.DB
}

// NewSQLiteDateRepository stores the ledger in the embedded database.
// Conditional writes are single UPDATE statements, so the same guarantees
// hold as with Mongo.
func NewSQLiteDateRepository(store *client.SQLite) DateRepository {
	return &sqliteDateRepository{db: store.DB}
}

func (r *sqliteDateRepository) Generate(ctx context.Context, year int, days []string, regenerate bool) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, sqliteStoreError("begin generate", err)
	}
	defer tx.Rollback()

	if regenerate {
		if _, err := tx.ExecContext(ctx, `DELETE FROM iftar_dates WHERE year = ?`, year); err != nil {
			return 0, sqliteStoreError("delete dates", err)
		}
	}

	now := time.Now().UTC().UnixNano()
	created := 0
	for _, day := range days {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO iftar_dates (id, date, year, available, notes, version, created_at, updated_at)
			 VALUES (?, ?, ?, 1, '', 1, ?, ?)
			 ON CONFLICT(date, year) DO NOTHING`,
			uuid.NewString(), day, year, now, now,
		)
		if err != nil {
			return 0, sqliteStoreError("insert date", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, sqliteStoreError("insert date", err)
		}
		created += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, sqliteStoreError("commit generate", err)
	}
	return created, nil
}

func (r *sqliteDateRepository) ListByYear(ctx context.Context, year int, onlyAvailable bool) ([]*model.BookableDate, error) {
	query := `SELECT ` + dateColumns + ` FROM iftar_dates WHERE year = ?`
	if onlyAvailable {
		query += ` AND available = 1`
	}
	query += ` ORDER BY date ASC`

	return r.queryDates(ctx, "list dates", query, year)
}

func (r *sqliteDateRepository) ListYears(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT year FROM iftar_dates ORDER BY year`)
	if err != nil {
		return nil, sqliteStoreError("list years", err)
	}
	defer rows.Close()

	years := make([]int, 0)
	for rows.Next() {
		var year int
		if err := rows.Scan(&year); err != nil {
			return nil, sqliteStoreError("scan year", err)
		}
		years = append(years, year)
	}
	return years, rows.Err()
}

func (r *sqliteDateRepository) FindByID(ctx context.Context, id string) (*model.BookableDate, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+dateColumns+` FROM iftar_dates WHERE id = ?`, id)
	date, err := scanDate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledgererrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, sqliteStoreError("find date", err)
	}
	return date, nil
}

func (r *sqliteDateRepository) ClaimIfAvailable(ctx context.Context, id, pendingRef string, email *string, now time.Time) (bool, error) {
	return r.exec(ctx, "claim date",
		`UPDATE iftar_dates
		 SET available = 0, sponsor_reference = ?, sponsor_email = ?, pending_since = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND available = 1 AND sponsor_reference IS NULL`,
		pendingRef, email, now.UnixNano(), now.UnixNano(), id,
	)
}

func (r *sqliteDateRepository) CommitIfPending(ctx context.Context, id, pendingRef, reference, sponsorName string, now time.Time) (bool, error) {
	return r.exec(ctx, "commit claim",
		`UPDATE iftar_dates
		 SET available = 0, sponsor_reference = ?, sponsor_name = ?, pending_since = NULL,
		     sponsored_at = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND sponsor_reference = ?`,
		reference, sponsorName, now.UnixNano(), now.UnixNano(), id, pendingRef,
	)
}

func (r *sqliteDateRepository) ReleaseIfPending(ctx context.Context, id, pendingRef string, pendingBefore *time.Time, now time.Time) (bool, error) {
	query := `UPDATE iftar_dates
		 SET available = 1, sponsor_reference = NULL, sponsor_name = NULL, sponsor_email = NULL,
		     pending_since = NULL, version = version + 1, updated_at = ?
		 WHERE id = ? AND sponsor_reference = ?`
	args := []any{now.UnixNano(), id, pendingRef}
	if pendingBefore != nil {
		query += ` AND pending_since < ?`
		args = append(args, pendingBefore.UnixNano())
	}
	return r.exec(ctx, "release claim", query, args...)
}

func (r *sqliteDateRepository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*model.BookableDate, error) {
	return r.queryDates(ctx, "list stale claims",
		`SELECT `+dateColumns+` FROM iftar_dates
		 WHERE pending_since IS NOT NULL AND pending_since < ?
		 ORDER BY pending_since ASC LIMIT ?`,
		cutoff.UnixNano(), limit,
	)
}

func (r *sqliteDateRepository) AdminUpdate(ctx context.Context, id string, change *AdminChange, version int64, now time.Time) (bool, error) {
	available := 0
	if change.SponsorReference == nil {
		available = 1
	}
	return r.exec(ctx, "update date",
		`UPDATE iftar_dates
		 SET available = ?, sponsor_reference = ?, sponsor_name = ?, sponsor_email = ?,
		     sponsored_at = ?, pending_since = ?, notes = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		available, change.SponsorReference, change.SponsorName, change.SponsorEmail,
		nullableNanos(change.SponsoredAt), nullableNanos(change.PendingSince), change.Notes, now.UnixNano(), id, version,
	)
}

func (r *sqliteDateRepository) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, sqliteStoreError(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, sqliteStoreError(op, err)
	}
	return n == 1, nil
}

func (r *sqliteDateRepository) queryDates(ctx context.Context, op, query string, args ...any) ([]*model.BookableDate, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteStoreError(op, err)
	}
	defer rows.Close()

	dates := make([]*model.BookableDate, 0)
	for rows.Next() {
		date, err := scanDate(rows)
		if err != nil {
			return nil, sqliteStoreError(op, err)
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteStoreError(op, err)
	}
	return dates, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDate(s scanner) (*model.BookableDate, error) {
	var (
		date                      model.BookableDate
		available                 int
		reference, name, email    sql.NullString
		pendingSince, sponsoredAt sql.NullInt64
		createdAt, updatedAt      int64
	)

	err := s.Scan(&date.ID, &date.Date, &date.Year, &available, &reference, &name, &email,
		&date.Notes, &pendingSince, &sponsoredAt, &date.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	date.Available = available == 1
	date.SponsorReference = nullableString(reference)
	date.SponsorName = nullableString(name)
	date.SponsorEmail = nullableString(email)
	date.PendingSince = nullableTime(pendingSince)
	date.SponsoredAt = nullableTime(sponsoredAt)
	date.CreatedAt = time.Unix(0, createdAt).UTC()
	date.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &date, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullableTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

// sqliteStoreError marks lock contention and cancelled contexts as
// unavailability so callers can retry.
func sqliteStoreError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: failed to %s: %w", ledgererrors.ErrStoreUnavailable, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: failed to %s: %w", ledgererrors.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
