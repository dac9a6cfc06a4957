package birthday

import (
	"database/sql"
	"strconv"
	"time"
)

// TrackedRecord is one tracked birthday for a (subject, chat) pair.
// Corresponds to the 'birthday_records' table.
type TrackedRecord struct {
	ID          int64
	ChatID      int64          // Telegram chat the congratulation goes to
	SubjectID   int64          // Telegram user whose birthday is tracked
	DisplayName sql.NullString // @username or first name; optional
	OccursOn    string         // canonical "DD.MM" key, validated before storage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Label returns the human-readable reference used in messages.
func (r *TrackedRecord) Label() string {
	if r.DisplayName.Valid && r.DisplayName.String != "" {
		return r.DisplayName.String
	}
	return "id:" + strconv.FormatInt(r.SubjectID, 10)
}
