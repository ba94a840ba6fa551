package models

import (
	"time"

	"github.com/google/uuid"
)

// EventStageCompleted marks a stage finishing; its properties carry duration_ms.
const EventStageCompleted = "stage_completed"

// AnalyticsEvent is an append-only usage event produced by external actors
// and consumed here in bulk. Properties is a free-form bag.
type AnalyticsEvent struct {
	ID          uuid.UUID      `db:"id"           json:"id"`
	EventName   string         `db:"event_name"   json:"event_name"`
	JobID       *uuid.UUID     `db:"job_id"       json:"job_id,omitempty"`
	StageNumber *int           `db:"stage_number" json:"stage_number,omitempty"`
	Properties  map[string]any `db:"properties"   json:"properties"`
	CreatedAt   time.Time      `db:"created_at"   json:"created_at"`
}
