package app

import (
	"context"
	"database/sql"
	"fmt"

	"birthday_notification_bot/internal/domain/birthday"
)

// SubscriptionService handles birthday date submissions coming from chat
// commands. It is the only writer of TrackedRecord: dates are normalized
// and validated here, so the store never sees a malformed key.
type SubscriptionService struct {
	records birthday.Repository
}

func NewSubscriptionService(records birthday.Repository) *SubscriptionService {
	return &SubscriptionService{records: records}
}

// Subscribe normalizes rawDate and upserts the tracked record for the
// (subject, chat) pair. Resubmitting overwrites the previous date.
// Normalization failures are returned unwrapped so handlers can map them to
// user-facing replies.
func (s *SubscriptionService) Subscribe(ctx context.Context, chatID, subjectID int64, displayName, rawDate string) (*birthday.TrackedRecord, error) {
	key, err := birthday.Normalize(rawDate)
	if err != nil {
		return nil, err
	}

	var name sql.NullString
	if displayName != "" {
		name = sql.NullString{String: displayName, Valid: true}
	}

	rec := &birthday.TrackedRecord{
		ChatID:      chatID,
		SubjectID:   subjectID,
		DisplayName: name,
		OccursOn:    key,
	}
	if err := s.records.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store birthday record: %w", err)
	}
	return rec, nil
}

// ListForChat returns every tracked birthday for one chat.
func (s *SubscriptionService) ListForChat(ctx context.Context, chatID int64) ([]*birthday.TrackedRecord, error) {
	recs, err := s.records.ListByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list birthdays for chat %d: %w", chatID, err)
	}
	return recs, nil
}
