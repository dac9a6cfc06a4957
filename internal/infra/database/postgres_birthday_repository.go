package database

import (
	"context"
	"database/sql"
	"fmt"

	"birthday_notification_bot/internal/domain/birthday"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type PostgresBirthdayRepository struct {
	db *sql.DB
}

func NewPostgresBirthdayRepository(db *sql.DB) *PostgresBirthdayRepository {
	return &PostgresBirthdayRepository{db: db}
}

// Upsert inserts the record or overwrites the stored date and display name
// when the (chat, subject) pair already exists. Resubmitting a birthday is
// the normal way to correct it.
func (r *PostgresBirthdayRepository) Upsert(ctx context.Context, rec *birthday.TrackedRecord) error {
	query := `INSERT INTO birthday_records (chat_id, subject_id, display_name, occurs_on)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (chat_id, subject_id)
               DO UPDATE SET display_name = EXCLUDED.display_name, occurs_on = EXCLUDED.occurs_on, updated_at = NOW()
               RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, rec.ChatID, rec.SubjectID, rec.DisplayName, rec.OccursOn).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error upserting birthday record: %w", err)
	}
	return nil
}

func (r *PostgresBirthdayRepository) ListAll(ctx context.Context) ([]*birthday.TrackedRecord, error) {
	query := `SELECT id, chat_id, subject_id, display_name, occurs_on, created_at, updated_at
               FROM birthday_records ORDER BY chat_id, subject_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing birthday records: %w", err)
	}
	defer rows.Close()
	return scanBirthdayRecords(rows)
}

func (r *PostgresBirthdayRepository) ListByChat(ctx context.Context, chatID int64) ([]*birthday.TrackedRecord, error) {
	query := `SELECT id, chat_id, subject_id, display_name, occurs_on, created_at, updated_at
               FROM birthday_records WHERE chat_id = $1 ORDER BY occurs_on, subject_id`

	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("error listing birthday records for chat %d: %w", chatID, err)
	}
	defer rows.Close()
	return scanBirthdayRecords(rows)
}

func scanBirthdayRecords(rows *sql.Rows) ([]*birthday.TrackedRecord, error) {
	records := make([]*birthday.TrackedRecord, 0)
	for rows.Next() {
		rec := &birthday.TrackedRecord{}
		if err := rows.Scan(&rec.ID, &rec.ChatID, &rec.SubjectID, &rec.DisplayName, &rec.OccursOn, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning birthday record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating birthday records: %w", err)
	}
	return records, nil
}
