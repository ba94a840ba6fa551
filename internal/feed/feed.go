// Package feed implements the live update loop for one job's stage set.
// A Watcher subscribes to stage-change signals and re-fetches the full job
// plus stage set on every signal, committing each result as an atomic
// snapshot. Fetches carry a monotonically increasing sequence number and
// only the most recently initiated fetch may commit, so a slow fetch can
// never overwrite a fresher one.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"compareboard/internal/notify"
	"compareboard/internal/stage"
	"compareboard/internal/store"
	"compareboard/pkg/models"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Watcher.
type State string

const (
	StateConnecting State = "connecting"
	StateSubscribed State = "subscribed"
	StateClosed     State = "closed"
	// StateNotFound is terminal: the job does not exist or is not
	// accessible. The watcher stops and does not retry.
	StateNotFound State = "not_found"
)

// Fetcher is the read surface the watcher needs from the data store.
// store.Store satisfies it.
type Fetcher interface {
	GetJob(ctx context.Context, id, userID uuid.UUID) (*models.Job, error)
	ListStages(ctx context.Context, jobID uuid.UUID) ([]models.StageRecord, error)
}

// Subscriber opens a stage-change signal stream for one job.
// notify.Notifier satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan notify.StageChange, error)
}

// Snapshot is one atomic view of a job and its aggregated stages. Stages is
// rebuilt whole on every commit; consumers must treat it as immutable.
type Snapshot struct {
	State  State
	Job    *models.Job
	Stages map[int]models.StageRecord
	// Err holds the most recent transient fetch error. The subscription
	// stays alive; the next signal may clear it.
	Err error
	// Seq identifies the fetch that produced this snapshot.
	Seq uint64
}

type fetchResult struct {
	seq    uint64
	job    *models.Job
	stages []models.StageRecord
	err    error
}

// Watcher drives the live update loop for a single job. Create with
// NewWatcher, start with Run, and consume snapshots from Updates. All state
// mutation happens inside Run's goroutine.
type Watcher struct {
	fetcher Fetcher
	sub     Subscriber
	jobID   uuid.UUID
	userID  uuid.UUID

	lastSeq uint64
	results chan fetchResult
	updates chan Snapshot

	mu      sync.Mutex
	current Snapshot
}

func NewWatcher(fetcher Fetcher, sub Subscriber, jobID, userID uuid.UUID) *Watcher {
	return &Watcher{
		fetcher: fetcher,
		sub:     sub,
		jobID:   jobID,
		userID:  userID,
		results: make(chan fetchResult),
		updates: make(chan Snapshot, 1),
	}
}

// Updates delivers snapshots in commit order. The channel holds the latest
// snapshot only: a slow consumer sees the freshest state, not a backlog.
// Closed when Run returns.
func (w *Watcher) Updates() <-chan Snapshot {
	return w.updates
}

// Current returns the most recently committed snapshot.
func (w *Watcher) Current() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run owns the watcher until ctx is cancelled or a terminal state is
// reached. It opens the subscription, performs the initial fetch, and
// re-fetches on every inbound signal. Returns nil on clean shutdown.
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(w.updates)

	w.publish(Snapshot{State: StateConnecting})

	signals, err := w.sub.Subscribe(ctx, w.jobID)
	if err != nil {
		w.publish(Snapshot{State: StateClosed, Err: err})
		return fmt.Errorf("opening stage subscription: %w", err)
	}

	w.startFetch(ctx)

	for {
		select {
		case <-ctx.Done():
			w.publish(Snapshot{State: StateClosed})
			return nil
		case _, ok := <-signals:
			if !ok {
				w.publish(Snapshot{State: StateClosed})
				return nil
			}
			w.startFetch(ctx)
		case res := <-w.results:
			if res.seq != w.lastSeq {
				// Superseded fetch; a newer one is in flight or
				// already committed.
				continue
			}
			if errors.Is(res.err, store.ErrNotFound) {
				w.publish(Snapshot{State: StateNotFound, Err: res.err, Seq: res.seq})
				return nil
			}
			if res.err != nil {
				prev := w.Current()
				w.publish(Snapshot{
					State:  StateSubscribed,
					Job:    prev.Job,
					Stages: prev.Stages,
					Err:    res.err,
					Seq:    res.seq,
				})
				continue
			}
			w.publish(Snapshot{
				State:  StateSubscribed,
				Job:    res.job,
				Stages: stage.Aggregate(res.stages),
				Seq:    res.seq,
			})
		}
	}
}

// startFetch initiates a new authoritative fetch. Only Run's goroutine
// calls this, so the sequence bump needs no synchronization.
func (w *Watcher) startFetch(ctx context.Context) {
	w.lastSeq++
	seq := w.lastSeq

	go func() {
		job, err := w.fetcher.GetJob(ctx, w.jobID, w.userID)
		if err != nil {
			w.deliver(ctx, fetchResult{seq: seq, err: err})
			return
		}
		stages, err := w.fetcher.ListStages(ctx, w.jobID)
		if err != nil {
			w.deliver(ctx, fetchResult{seq: seq, err: err})
			return
		}
		w.deliver(ctx, fetchResult{seq: seq, job: job, stages: stages})
	}()
}

func (w *Watcher) deliver(ctx context.Context, res fetchResult) {
	select {
	case w.results <- res:
	case <-ctx.Done():
		// Torn down; the result is discarded.
	}
}

func (w *Watcher) publish(snap Snapshot) {
	w.mu.Lock()
	w.current = snap
	w.mu.Unlock()

	for {
		select {
		case w.updates <- snap:
			return
		default:
			// Drop the stale buffered snapshot and retry.
			select {
			case <-w.updates:
			default:
			}
		}
	}
}
