package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"compareboard/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, item_a, item_b, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.UserID, job.ItemA, job.ItemB, job.Status, job.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, item_a, item_b, status, created_at
		 FROM jobs WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&j.ID, &j.UserID, &j.ItemA, &j.ItemB, &j.Status, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListRecentJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, item_a, item_b, status, created_at
		 FROM jobs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.UserID, &j.ItemA, &j.ItemB, &j.Status, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// --- Stage records ---

func (s *PostgresStore) ListStages(ctx context.Context, jobID uuid.UUID) ([]models.StageRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, stage_number, status, output, created_at, completed_at
		 FROM job_stages WHERE job_id = $1 ORDER BY stage_number ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var stages []models.StageRecord
	for rows.Next() {
		var rec models.StageRecord
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.StageNumber, &rec.Status,
			&rec.Output, &rec.CreatedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		stages = append(stages, rec)
	}
	return stages, rows.Err()
}

func (s *PostgresStore) UpsertStage(ctx context.Context, rec *models.StageRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_stages (id, job_id, stage_number, status, output, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (job_id, stage_number) DO UPDATE SET
		   status = EXCLUDED.status,
		   output = EXCLUDED.output,
		   completed_at = EXCLUDED.completed_at`,
		rec.ID, rec.JobID, rec.StageNumber, rec.Status, rec.Output, rec.CreatedAt, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("upsert stage: %w", err)
	}
	return nil
}

// --- Experiments ---

func (s *PostgresStore) InsertExperiment(ctx context.Context, exp *models.Experiment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO experiments (id, user_id, job_id, item_a, item_b, scores_snapshot, change_tags, notes, is_pinned, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		exp.ID, exp.UserID, exp.JobID, exp.ItemA, exp.ItemB, exp.ScoresSnapshot,
		exp.ChangeTags, exp.Notes, exp.IsPinned, exp.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert experiment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListExperiments(ctx context.Context, filter ExperimentFilter) ([]*models.Experiment, error) {
	conditions := []string{"user_id = $1"}
	args := []any{filter.UserID}
	argIdx := 2

	if filter.Item != "" {
		conditions = append(conditions,
			fmt.Sprintf("(item_a ILIKE $%d OR item_b ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+filter.Item+"%")
		argIdx++
	}
	if filter.PinnedOnly {
		conditions = append(conditions, "is_pinned")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := fmt.Sprintf(
		`SELECT id, user_id, job_id, item_a, item_b, scores_snapshot, change_tags, notes, is_pinned, created_at
		 FROM experiments WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		strings.Join(conditions, " AND "), argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()
	return scanExperiments(rows)
}

func (s *PostgresStore) GetExperimentsByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]*models.Experiment, error) {
	if len(ids) == 0 {
		return []*models.Experiment{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, job_id, item_a, item_b, scores_snapshot, change_tags, notes, is_pinned, created_at
		 FROM experiments WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("get experiments by ids: %w", err)
	}
	defer rows.Close()
	return scanExperiments(rows)
}

func scanExperiments(rows pgx.Rows) ([]*models.Experiment, error) {
	var exps []*models.Experiment
	for rows.Next() {
		var e models.Experiment
		if err := rows.Scan(&e.ID, &e.UserID, &e.JobID, &e.ItemA, &e.ItemB,
			&e.ScoresSnapshot, &e.ChangeTags, &e.Notes, &e.IsPinned, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		exps = append(exps, &e)
	}
	return exps, rows.Err()
}

// --- Analytics events ---

func (s *PostgresStore) InsertAnalyticsEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analytics_events (id, event_name, job_id, stage_number, properties, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.EventName, event.JobID, event.StageNumber, event.Properties, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAnalyticsEvents(ctx context.Context, limit int) ([]models.AnalyticsEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_name, job_id, stage_number, properties, created_at
		 FROM analytics_events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list analytics events: %w", err)
	}
	defer rows.Close()

	var events []models.AnalyticsEvent
	for rows.Next() {
		var e models.AnalyticsEvent
		if err := rows.Scan(&e.ID, &e.EventName, &e.JobID, &e.StageNumber,
			&e.Properties, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analytics event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// isDuplicateKeyError reports whether err is a Postgres unique violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
