package database

import (
	"context"
	"database/sql"
	"fmt"

	"birthday_notification_bot/internal/domain/ledger"

	"github.com/lib/pq" // For pq.Array and driver registration
)

type PostgresLedgerRepository struct {
	db *sql.DB
}

func NewPostgresLedgerRepository(db *sql.DB) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{db: db}
}

// InsertIfAbsent records the notification key and reports whether a new row
// was created. The insert is resolved by the database against the composite
// unique key, so two concurrent runs racing on the same occurrence cannot
// both observe "inserted".
func (r *PostgresLedgerRepository) InsertIfAbsent(ctx context.Context, key ledger.Key) (bool, error) {
	query := `INSERT INTO notification_ledger (date_key, chat_id, subject_id, kind)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (date_key, chat_id, subject_id, kind) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, key.DateKey, key.ChatID, key.SubjectID, string(key.Kind))
	if err != nil {
		return false, fmt.Errorf("error inserting ledger entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading ledger insert result: %w", err)
	}
	return affected > 0, nil
}

func (r *PostgresLedgerRepository) Exists(ctx context.Context, key ledger.Key) (bool, error) {
	query := `SELECT EXISTS (
                   SELECT 1 FROM notification_ledger
                   WHERE date_key = $1 AND chat_id = $2 AND subject_id = $3 AND kind = $4
               )`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, key.DateKey, key.ChatID, key.SubjectID, string(key.Kind)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking ledger entry: %w", err)
	}
	return exists, nil
}

// DeleteKeysNotIn removes every entry whose date key is outside the
// retained window. The caller computes the window with real calendar
// arithmetic; "DD.MM" strings cannot be compared in SQL across a year
// boundary.
func (r *PostgresLedgerRepository) DeleteKeysNotIn(ctx context.Context, retained []string) (int64, error) {
	if len(retained) == 0 {
		return 0, nil
	}

	query := `DELETE FROM notification_ledger WHERE date_key <> ALL($1::char(5)[])`

	res, err := r.db.ExecContext(ctx, query, pq.Array(retained))
	if err != nil {
		return 0, fmt.Errorf("error sweeping ledger entries: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading ledger sweep result: %w", err)
	}
	return removed, nil
}
