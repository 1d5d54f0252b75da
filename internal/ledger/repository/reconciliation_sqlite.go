package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	ledgererrors "masjid/internal/ledger/errors"
	"masjid/pkg/client"
	"masjid/pkg/model"

	"github.com/google/uuid"
)

type sqliteReconciliationRepository struct {
	db *sql.DB
}

func NewSQLiteReconciliationRepository(store *client.SQLite) ReconciliationRepository {
	return &sqliteReconciliationRepository{db: store.DB}
}

func (r *sqliteReconciliationRepository) Record(ctx context.Context, rec *model.Reconciliation) (bool, error) {
	id := uuid.NewString()
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO iftar_reconciliations
		 (id, date_id, payment_intent_id, sponsor_name, observed_reference, reason, resolved, resolution_note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, '', ?)
		 ON CONFLICT(date_id, payment_intent_id) DO NOTHING`,
		id, rec.DateID, rec.PaymentIntentID, rec.SponsorName, rec.ObservedReference, rec.Reason, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return false, sqliteStoreError("record reconciliation", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, sqliteStoreError("record reconciliation", err)
	}
	if n == 0 {
		return false, nil
	}
	rec.ID = id
	return true, nil
}

func (r *sqliteReconciliationRepository) List(ctx context.Context, onlyOpen bool, limit int, offset int64) ([]*model.Reconciliation, error) {
	query := `SELECT id, date_id, payment_intent_id, sponsor_name, observed_reference, reason,
		resolved, resolution_note, created_at, resolved_at
		FROM iftar_reconciliations`
	if onlyOpen {
		query += ` WHERE resolved = 0`
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, sqliteStoreError("list reconciliations", err)
	}
	defer rows.Close()

	records := make([]*model.Reconciliation, 0)
	for rows.Next() {
		var (
			rec        model.Reconciliation
			observed   sql.NullString
			resolved   int
			createdAt  int64
			resolvedAt sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.DateID, &rec.PaymentIntentID, &rec.SponsorName, &observed,
			&rec.Reason, &resolved, &rec.ResolutionNote, &createdAt, &resolvedAt); err != nil {
			return nil, sqliteStoreError("scan reconciliation", err)
		}
		rec.ObservedReference = nullableString(observed)
		rec.Resolved = resolved == 1
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		rec.ResolvedAt = nullableTime(resolvedAt)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteStoreError("list reconciliations", err)
	}
	return records, nil
}

func (r *sqliteReconciliationRepository) Resolve(ctx context.Context, id, note string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE iftar_reconciliations SET resolved = 1, resolution_note = ?, resolved_at = ?
		 WHERE id = ? AND resolved = 0`,
		note, now.UnixNano(), id,
	)
	if err != nil {
		return false, sqliteStoreError("resolve reconciliation", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, sqliteStoreError("resolve reconciliation", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM iftar_reconciliations WHERE id = ?`, id).Scan(&exists); err != nil {
		return false, sqliteStoreError("find reconciliation", err)
	}
	if exists == 0 {
		return false, fmt.Errorf("%w: %s", ledgererrors.ErrReconciliationNotFound, id)
	}
	return false, nil
}
