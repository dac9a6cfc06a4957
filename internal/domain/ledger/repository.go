package ledger

import "context"

// Repository is the idempotency store behind notification dispatch. It is
// the sole synchronization point between overlapping runs, so InsertIfAbsent
// must be atomic per key at the storage layer (a true insert-if-absent, not
// a read-then-write pair).
type Repository interface {
	// InsertIfAbsent records the key and reports whether a new entry was
	// created. Inserting an existing key is a no-op, never an error.
	InsertIfAbsent(ctx context.Context, key Key) (bool, error)

	// Exists reports whether an entry with exactly this key is recorded.
	Exists(ctx context.Context, key Key) (bool, error)

	// DeleteKeysNotIn removes every entry whose date key is outside the
	// retained window and returns the number of rows removed.
	DeleteKeysNotIn(ctx context.Context, retained []string) (int64, error)
}
