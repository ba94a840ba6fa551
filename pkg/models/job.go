// Package models contains shared data models used across the compareboard codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is one comparison run between two catalog items. Immutable once
// created except for Status.
type Job struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	UserID    uuid.UUID `db:"user_id"    json:"user_id"`
	ItemA     string    `db:"item_a"     json:"item_a"`
	ItemB     string    `db:"item_b"     json:"item_b"`
	Status    string    `db:"status"     json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
