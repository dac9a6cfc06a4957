package ledger

import "time"

// Kind is the notification category a ledger entry belongs to.
type Kind string

const (
	KindToday    Kind = "today"    // same-day congratulation
	KindReminder Kind = "reminder" // 7-day look-ahead reminder
)

// Key uniquely identifies one notification occurrence. DateKey is the
// "DD.MM" key the match was computed against: today's key for KindToday,
// the horizon key for KindReminder. At most one entry per Key ever exists.
type Key struct {
	DateKey   string
	ChatID    int64
	SubjectID int64
	Kind      Kind
}

// Entry records that the notification identified by Key has been acted on.
// Corresponds to the 'notification_ledger' table.
type Entry struct {
	ID        int64
	Key       Key
	CreatedAt time.Time
}
