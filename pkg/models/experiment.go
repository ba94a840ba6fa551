package models

import (
	"time"

	"github.com/google/uuid"
)

// Experiment is a user-saved snapshot of a job's verdict scores. Immutable
// after creation; its lifetime is independent of the originating job.
type Experiment struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	UserID         uuid.UUID `db:"user_id"         json:"user_id"`
	JobID          uuid.UUID `db:"job_id"          json:"job_id"`
	ItemA          string    `db:"item_a"          json:"item_a"`
	ItemB          string    `db:"item_b"          json:"item_b"`
	ScoresSnapshot any       `db:"scores_snapshot" json:"scores_snapshot"`
	ChangeTags     []string  `db:"change_tags"     json:"change_tags"`
	Notes          *string   `db:"notes"           json:"notes,omitempty"`
	IsPinned       bool      `db:"is_pinned"       json:"is_pinned"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}
