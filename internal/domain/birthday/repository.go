package birthday

import (
	"context"
)

// Repository defines the operations for persisting and retrieving
// TrackedRecord entities. Upsert overwrites an existing record for the same
// (chat, subject) pair; records are never deleted automatically.
type Repository interface {
	Upsert(ctx context.Context, rec *TrackedRecord) error
	ListAll(ctx context.Context) ([]*TrackedRecord, error)
	ListByChat(ctx context.Context, chatID int64) ([]*TrackedRecord, error)
}
