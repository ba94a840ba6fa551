package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"compareboard/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string) error
	ListRecentJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Job, error)

	// ListStages returns all stage records for a job ordered ascending by
	// stage_number. Each result is an authoritative snapshot: consumers
	// replace their aggregated view wholesale, never merge partially.
	ListStages(ctx context.Context, jobID uuid.UUID) ([]models.StageRecord, error)
	UpsertStage(ctx context.Context, rec *models.StageRecord) error

	InsertExperiment(ctx context.Context, exp *models.Experiment) error
	ListExperiments(ctx context.Context, filter ExperimentFilter) ([]*models.Experiment, error)
	GetExperimentsByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]*models.Experiment, error)

	InsertAnalyticsEvent(ctx context.Context, event *models.AnalyticsEvent) error
	ListAnalyticsEvents(ctx context.Context, limit int) ([]models.AnalyticsEvent, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// ExperimentFilter narrows an experiment listing.
type ExperimentFilter struct {
	UserID     uuid.UUID
	Item       string // case-insensitive substring match on either item identifier
	PinnedOnly bool
	Limit      int
}
