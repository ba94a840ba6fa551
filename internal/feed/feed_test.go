package feed_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"compareboard/internal/feed"
	"compareboard/internal/notify"
	"compareboard/internal/store"
	"compareboard/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	ch chan notify.StageChange
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan notify.StageChange, error) {
	return s.ch, nil
}

type fetchOutcome struct {
	stages []models.StageRecord
	err    error
}

// fakeFetcher serves one scripted outcome per ListStages call. A call with
// a gate blocks until the gate closes, which lets tests control fetch
// completion order.
type fakeFetcher struct {
	job      *models.Job
	jobErr   error
	outcomes []fetchOutcome
	gates    []chan struct{}
	entered  chan int
	calls    atomic.Int32
}

func (f *fakeFetcher) GetJob(ctx context.Context, id, userID uuid.UUID) (*models.Job, error) {
	return f.job, f.jobErr
}

func (f *fakeFetcher) ListStages(ctx context.Context, jobID uuid.UUID) ([]models.StageRecord, error) {
	n := int(f.calls.Add(1)) - 1
	if f.entered != nil {
		f.entered <- n
	}
	if n < len(f.gates) && f.gates[n] != nil {
		<-f.gates[n]
	}
	out := f.outcomes[n]
	return out.stages, out.err
}

func stageRec(jobID uuid.UUID, number int, status string) models.StageRecord {
	return models.StageRecord{
		ID:          uuid.New(),
		JobID:       jobID,
		StageNumber: number,
		Status:      status,
		CreatedAt:   time.Now(),
	}
}

// waitForSnapshot reads updates until a snapshot satisfies ok or the test
// times out.
func waitForSnapshot(t *testing.T, updates <-chan feed.Snapshot, ok func(feed.Snapshot) bool) feed.Snapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap, open := <-updates:
			if !open {
				t.Fatal("updates channel closed before expected snapshot")
			}
			if ok(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestWatcher_InitialFetchCommits(t *testing.T) {
	jobID := uuid.New()
	userID := uuid.New()
	job := &models.Job{ID: jobID, UserID: userID, ItemA: "A1", ItemB: "B1", Status: models.JobStatusInProgress}

	fetcher := &fakeFetcher{
		job: job,
		outcomes: []fetchOutcome{
			{stages: []models.StageRecord{
				stageRec(jobID, 0, models.StageStatusCompleted),
				stageRec(jobID, 1, models.StageStatusInProgress),
			}},
		},
	}
	sub := &fakeSubscriber{ch: make(chan notify.StageChange)}
	w := feed.NewWatcher(fetcher, sub, jobID, userID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	snap := waitForSnapshot(t, w.Updates(), func(s feed.Snapshot) bool {
		return s.State == feed.StateSubscribed && s.Job != nil
	})
	assert.Equal(t, "A1", snap.Job.ItemA)
	assert.Len(t, snap.Stages, 2)
	assert.Equal(t, models.StageStatusCompleted, snap.Stages[0].Status)
	assert.NoError(t, snap.Err)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_StaleFetchDiscarded(t *testing.T) {
	jobID := uuid.New()
	userID := uuid.New()
	job := &models.Job{ID: jobID, UserID: userID, ItemA: "A1", ItemB: "B1"}

	older := []models.StageRecord{
		stageRec(jobID, 0, models.StageStatusCompleted),
	}
	newer := []models.StageRecord{
		stageRec(jobID, 0, models.StageStatusCompleted),
		stageRec(jobID, 1, models.StageStatusCompleted),
	}

	gateA := make(chan struct{})
	fetcher := &fakeFetcher{
		job:      job,
		outcomes: []fetchOutcome{{stages: older}, {stages: newer}},
		gates:    []chan struct{}{gateA, nil},
		entered:  make(chan int, 4),
	}
	sub := &fakeSubscriber{ch: make(chan notify.StageChange)}
	w := feed.NewWatcher(fetcher, sub, jobID, userID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Fetch A is in flight and blocked.
	require.Equal(t, 0, <-fetcher.entered)

	// A signal initiates fetch B while A is still in flight.
	sub.ch <- notify.StageChange{JobID: jobID, StageNumber: 1, Status: models.StageStatusCompleted}
	require.Equal(t, 1, <-fetcher.entered)

	// B completes first and commits.
	snap := waitForSnapshot(t, w.Updates(), func(s feed.Snapshot) bool {
		return s.State == feed.StateSubscribed && len(s.Stages) == 2
	})
	assert.Equal(t, uint64(2), snap.Seq)

	// A resolves late; its result must be discarded.
	close(gateA)
	time.Sleep(100 * time.Millisecond)

	current := w.Current()
	assert.Equal(t, uint64(2), current.Seq)
	assert.Len(t, current.Stages, 2)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_NotFoundIsTerminal(t *testing.T) {
	fetcher := &fakeFetcher{jobErr: store.ErrNotFound}
	sub := &fakeSubscriber{ch: make(chan notify.StageChange)}
	w := feed.NewWatcher(fetcher, sub, uuid.New(), uuid.New())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	snap := waitForSnapshot(t, w.Updates(), func(s feed.Snapshot) bool {
		return s.State == feed.StateNotFound
	})
	assert.ErrorIs(t, snap.Err, store.ErrNotFound)

	// The watcher stops on its own; no retry.
	require.NoError(t, <-done)
	assert.Equal(t, int32(0), fetcher.calls.Load(), "stages must not be fetched for a missing job")
}

func TestWatcher_TransientErrorKeepsSubscription(t *testing.T) {
	jobID := uuid.New()
	userID := uuid.New()
	job := &models.Job{ID: jobID, UserID: userID, ItemA: "A1", ItemB: "B1"}
	transient := errors.New("connection reset")

	fetcher := &fakeFetcher{
		job: job,
		outcomes: []fetchOutcome{
			{err: transient},
			{stages: []models.StageRecord{stageRec(jobID, 0, models.StageStatusCompleted)}},
		},
	}
	sub := &fakeSubscriber{ch: make(chan notify.StageChange)}
	w := feed.NewWatcher(fetcher, sub, jobID, userID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	snap := waitForSnapshot(t, w.Updates(), func(s feed.Snapshot) bool {
		return s.Err != nil
	})
	assert.Equal(t, feed.StateSubscribed, snap.State, "transient errors keep the subscription alive")
	assert.ErrorIs(t, snap.Err, transient)

	// The next signal recovers.
	sub.ch <- notify.StageChange{JobID: jobID, StageNumber: 0, Status: models.StageStatusCompleted}
	snap = waitForSnapshot(t, w.Updates(), func(s feed.Snapshot) bool {
		return s.Err == nil && len(s.Stages) == 1
	})
	assert.Equal(t, feed.StateSubscribed, snap.State)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_TeardownClosesUpdates(t *testing.T) {
	jobID := uuid.New()
	userID := uuid.New()
	fetcher := &fakeFetcher{
		job:      &models.Job{ID: jobID, UserID: userID},
		outcomes: []fetchOutcome{{stages: nil}},
	}
	sub := &fakeSubscriber{ch: make(chan notify.StageChange)}
	w := feed.NewWatcher(fetcher, sub, jobID, userID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitForSnapshot(t, w.Updates(), func(s feed.Snapshot) bool {
		return s.State == feed.StateSubscribed
	})

	cancel()
	require.NoError(t, <-done)

	_, open := <-w.Updates()
	for open {
		_, open = <-w.Updates()
	}
}
