package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	StageStatusPending    = "pending"
	StageStatusInProgress = "in_progress"
	StageStatusCompleted  = "completed"
	StageStatusFailed     = "failed"
	StageStatusSkipped    = "skipped"
)

// StageCount is the fixed number of pipeline stages per job.
const StageCount = 6

// StageRecord is one pipeline step of a job. StageNumber is dense in [0,5]
// and has a fixed semantic role; Output is an opaque payload whose shape
// depends on StageNumber and is only ever read defensively.
type StageRecord struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	JobID       uuid.UUID  `db:"job_id"       json:"job_id"`
	StageNumber int        `db:"stage_number" json:"stage_number"`
	Status      string     `db:"status"       json:"status"`
	Output      any        `db:"output"       json:"output"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
