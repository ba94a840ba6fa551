package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"compareboard/internal/store"
	"compareboard/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("compareboard_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newJob(userID uuid.UUID) *models.Job {
	return &models.Job{
		ID:        uuid.New(),
		UserID:    userID,
		ItemA:     "B0ALPHA001",
		ItemB:     "B0BRAVO002",
		Status:    models.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// --- Job Tests ---

func TestJob_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	job := newJob(userID)
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "B0ALPHA001", got.ItemA)
	assert.Equal(t, models.JobStatusPending, got.Status)
}

func TestJob_GetScopedToUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))

	_, err := s.GetJob(ctx, job.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_UpdateStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	job := newJob(userID)
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted))

	got, err := s.GetJob(ctx, job.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
}

func TestJob_UpdateStatus_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.UpdateJobStatus(context.Background(), uuid.New(), models.JobStatusFailed)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_ListRecent_OrderAndLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	var newest uuid.UUID
	for i := 0; i < 5; i++ {
		job := newJob(userID)
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateJob(ctx, job))
		newest = job.ID
	}

	jobs, err := s.ListRecentJobs(ctx, userID, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, newest, jobs[0].ID)
}

// --- Stage Tests ---

func TestStage_UpsertReplacesSlot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))

	first := &models.StageRecord{
		ID:          uuid.New(),
		JobID:       job.ID,
		StageNumber: 1,
		Status:      models.StageStatusInProgress,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.UpsertStage(ctx, first))

	now := time.Now().UTC().Truncate(time.Millisecond)
	second := &models.StageRecord{
		ID:          uuid.New(),
		JobID:       job.ID,
		StageNumber: 1,
		Status:      models.StageStatusCompleted,
		Output:      map[string]any{"evidence": []any{map[string]any{"factor": "contrast"}}},
		CreatedAt:   now,
		CompletedAt: &now,
	}
	require.NoError(t, s.UpsertStage(ctx, second))

	stages, err := s.ListStages(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, stages, 1, "same slot must not produce a second row")
	assert.Equal(t, models.StageStatusCompleted, stages[0].Status)
	assert.NotNil(t, stages[0].CompletedAt)
	assert.NotNil(t, stages[0].Output)
}

func TestStage_ListOrderedByNumber(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))

	for _, n := range []int{5, 0, 3} {
		rec := &models.StageRecord{
			ID:          uuid.New(),
			JobID:       job.ID,
			StageNumber: n,
			Status:      models.StageStatusCompleted,
			CreatedAt:   time.Now().UTC(),
		}
		require.NoError(t, s.UpsertStage(ctx, rec))
	}

	stages, err := s.ListStages(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, stages, 3)
	assert.Equal(t, 0, stages[0].StageNumber)
	assert.Equal(t, 3, stages[1].StageNumber)
	assert.Equal(t, 5, stages[2].StageNumber)
}

func TestStage_OutOfRangeRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))

	rec := &models.StageRecord{
		ID:          uuid.New(),
		JobID:       job.ID,
		StageNumber: 6,
		Status:      models.StageStatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
	assert.Error(t, s.UpsertStage(ctx, rec))
}

// --- Experiment Tests ---

func seedExperiment(t *testing.T, s store.Store, userID uuid.UUID, itemA string, pinned bool) *models.Experiment {
	t.Helper()
	exp := &models.Experiment{
		ID:     uuid.New(),
		UserID: userID,
		JobID:  uuid.New(),
		ItemA:  itemA,
		ItemB:  "B0BRAVO002",
		ScoresSnapshot: map[string]any{
			"scores": map[string]any{
				"item_a": map[string]any{"total": 0.81},
				"item_b": map[string]any{"total": 0.70},
			},
		},
		ChangeTags: []string{"new main image"},
		IsPinned:   pinned,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.InsertExperiment(context.Background(), exp))
	return exp
}

func TestExperiment_InsertAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	userID := uuid.New()
	seedExperiment(t, s, userID, "B0ALPHA001", false)
	seedExperiment(t, s, userID, "B0CHARLIE3", true)

	exps, err := s.ListExperiments(context.Background(), store.ExperimentFilter{UserID: userID})
	require.NoError(t, err)
	assert.Len(t, exps, 2)
	assert.Equal(t, []string{"new main image"}, exps[0].ChangeTags)
}

func TestExperiment_ListFilters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	seedExperiment(t, s, userID, "B0ALPHA001", false)
	pinned := seedExperiment(t, s, userID, "B0CHARLIE3", true)

	byItem, err := s.ListExperiments(ctx, store.ExperimentFilter{UserID: userID, Item: "charlie"})
	require.NoError(t, err)
	require.Len(t, byItem, 1)
	assert.Equal(t, "B0CHARLIE3", byItem[0].ItemA)

	onlyPinned, err := s.ListExperiments(ctx, store.ExperimentFilter{UserID: userID, PinnedOnly: true})
	require.NoError(t, err)
	require.Len(t, onlyPinned, 1)
	assert.Equal(t, pinned.ID, onlyPinned[0].ID)
}

func TestExperiment_GetByIDs_ScopedToUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	mine := seedExperiment(t, s, userID, "B0ALPHA001", false)
	other := seedExperiment(t, s, uuid.New(), "B0DELTA004", false)

	exps, err := s.GetExperimentsByIDs(ctx, userID, []uuid.UUID{mine.ID, other.ID})
	require.NoError(t, err)
	require.Len(t, exps, 1)
	assert.Equal(t, mine.ID, exps[0].ID)

	snapshot, ok := exps[0].ScoresSnapshot.(map[string]any)
	require.True(t, ok, "snapshot should round-trip as an object")
	_, hasScores := snapshot["scores"]
	assert.True(t, hasScores)
}

// --- Analytics Event Tests ---

func TestAnalyticsEvent_InsertAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	jobID := uuid.New()
	stageNum := 2
	for i, duration := range []float64{120, 480} {
		event := &models.AnalyticsEvent{
			ID:          uuid.New(),
			EventName:   models.EventStageCompleted,
			JobID:       &jobID,
			StageNumber: &stageNum,
			Properties:  map[string]any{"duration_ms": duration},
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.InsertAnalyticsEvent(ctx, event))
	}

	events, err := s.ListAnalyticsEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first.
	assert.Equal(t, 480.0, events[0].Properties["duration_ms"])
	require.NotNil(t, events[0].StageNumber)
	assert.Equal(t, 2, *events[0].StageNumber)
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGetByPrefix(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Name:      "pipeline",
		KeyHash:   "$2a$04$notarealhashnotarealhashnotarealhash",
		KeyPrefix: "cb_12345",
		Scopes:    []string{"read", "ingest"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "cb_12345")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "pipeline", keys[0].Name)
	assert.Equal(t, []string{"read", "ingest"}, keys[0].Scopes)
	assert.Nil(t, keys[0].LastUsedAt)
}

func TestAPIKey_UpdateLastUsed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Name:      "dashboard",
		KeyHash:   "$2a$04$notarealhashnotarealhashnotarealhash",
		KeyPrefix: "cb_67890",
		Scopes:    []string{"read"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))

	keys, err := s.GetAPIKeyByPrefix(ctx, "cb_67890")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	assert.NoError(t, s.Ping(context.Background()))
}
