package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	campaignerrors "masjid/internal/campaigns/errors"
	"masjid/pkg/client"
	"masjid/pkg/model"

	"github.com/mattn/go-sqlite3"
)

const campaignColumns = `year, start_date, end_date, cost_per_slot, currency, capacity,
	title, description, is_active, updated_at`

type sqliteCampaignRepository struct {
	db *sql.DB
}

func NewSQLiteCampaignRepository(store *client.SQLite) CampaignRepository {
	return &sqliteCampaignRepository{db: store.DB}
}

func (r *sqliteCampaignRepository) Upsert(ctx context.Context, settings *model.CampaignSettings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO iftar_campaigns (`+campaignColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		 ON CONFLICT(year) DO UPDATE SET
		     start_date = excluded.start_date,
		     end_date = excluded.end_date,
		     cost_per_slot = excluded.cost_per_slot,
		     currency = excluded.currency,
		     capacity = excluded.capacity,
		     title = excluded.title,
		     description = excluded.description,
		     updated_at = excluded.updated_at`,
		settings.Year, settings.StartDate, settings.EndDate, settings.CostPerSlot, settings.Currency,
		settings.Capacity, settings.Title, settings.Description, settings.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return sqliteStoreError("upsert campaign", err)
	}
	return nil
}

func (r *sqliteCampaignRepository) FindByYear(ctx context.Context, year int) (*model.CampaignSettings, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM iftar_campaigns WHERE year = ?`, year)
	settings, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", campaignerrors.ErrNotFound, year)
	}
	if err != nil {
		return nil, sqliteStoreError("find campaign", err)
	}
	return settings, nil
}

func (r *sqliteCampaignRepository) FindActive(ctx context.Context) (*model.CampaignSettings, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM iftar_campaigns WHERE is_active = 1`)
	settings, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaignerrors.ErrNoActiveCampaign
	}
	if err != nil {
		return nil, sqliteStoreError("find active campaign", err)
	}
	return settings, nil
}

func (r *sqliteCampaignRepository) List(ctx context.Context) ([]*model.CampaignSettings, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+campaignColumns+` FROM iftar_campaigns ORDER BY year DESC`)
	if err != nil {
		return nil, sqliteStoreError("list campaigns", err)
	}
	defer rows.Close()

	campaigns := make([]*model.CampaignSettings, 0)
	for rows.Next() {
		settings, err := scanCampaign(rows)
		if err != nil {
			return nil, sqliteStoreError("scan campaign", err)
		}
		campaigns = append(campaigns, settings)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteStoreError("list campaigns", err)
	}
	return campaigns, nil
}

func (r *sqliteCampaignRepository) Activate(ctx context.Context, year int, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return sqliteStoreError("begin activate", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE iftar_campaigns SET is_active = 0, updated_at = ? WHERE is_active = 1 AND year != ?`,
		now.UnixNano(), year,
	); err != nil {
		return sqliteStoreError("deactivate other campaigns", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE iftar_campaigns SET is_active = 1, updated_at = ? WHERE year = ?`,
		now.UnixNano(), year,
	)
	if err != nil {
		return sqliteStoreError("activate campaign", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return sqliteStoreError("activate campaign", err)
	} else if n == 0 {
		return fmt.Errorf("%w: %d", campaignerrors.ErrNotFound, year)
	}

	if err := tx.Commit(); err != nil {
		return sqliteStoreError("commit activate", err)
	}
	return nil
}

func (r *sqliteCampaignRepository) Deactivate(ctx context.Context, year int, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE iftar_campaigns SET is_active = 0, updated_at = ? WHERE year = ? AND is_active = 1`,
		now.UnixNano(), year,
	)
	if err != nil {
		return false, sqliteStoreError("deactivate campaign", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, sqliteStoreError("deactivate campaign", err)
	}
	if n == 1 {
		return true, nil
	}

	if _, err := r.FindByYear(ctx, year); err != nil {
		return false, err
	}
	return false, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(s scanner) (*model.CampaignSettings, error) {
	var (
		settings  model.CampaignSettings
		active    int
		updatedAt int64
	)
	err := s.Scan(&settings.Year, &settings.StartDate, &settings.EndDate, &settings.CostPerSlot,
		&settings.Currency, &settings.Capacity, &settings.Title, &settings.Description, &active, &updatedAt)
	if err != nil {
		return nil, err
	}
	settings.IsActive = active == 1
	settings.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &settings, nil
}

func sqliteStoreError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: failed to %s: %w", campaignerrors.ErrStoreUnavailable, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: failed to %s: %w", campaignerrors.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
