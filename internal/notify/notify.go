// Package notify carries stage-change signals between the ingest path and
// live feed subscribers over Redis pub/sub. The signal is intentionally
// thin: it tells subscribers that something changed for a job, never what
// changed. Subscribers re-fetch the full stage set from the store, which
// keeps the store the single source of truth.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StageChange is published whenever a stage row is inserted or updated.
type StageChange struct {
	JobID       uuid.UUID `json:"job_id"`
	StageNumber int       `json:"stage_number"`
	Status      string    `json:"status"`
	At          time.Time `json:"at"`
}

// Notifier is the pub/sub interface for stage-change signals.
// Implementations must be safe for concurrent use.
type Notifier interface {
	PublishStageChange(ctx context.Context, change StageChange) error
	// Subscribe returns a channel of stage changes for one job. The channel
	// closes when ctx is cancelled. Malformed payloads are dropped.
	Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan StageChange, error)
	Ping(ctx context.Context) error
	Close() error
}

// ChannelFor names the pub/sub channel carrying changes for one job.
func ChannelFor(jobID uuid.UUID) string {
	return fmt.Sprintf("job-stages:%s", jobID)
}

// RedisNotifier implements Notifier using go-redis/v9 pub/sub.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a new RedisNotifier from a Redis URL.
func NewRedisNotifier(redisURL string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisNotifier{client: redis.NewClient(opts)}, nil
}

func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

func (n *RedisNotifier) PublishStageChange(ctx context.Context, change StageChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshaling stage change: %w", err)
	}
	if err := n.client.Publish(ctx, ChannelFor(change.JobID), payload).Err(); err != nil {
		return fmt.Errorf("publishing stage change: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan StageChange, error) {
	sub := n.client.Subscribe(ctx, ChannelFor(jobID))

	// Force the subscription onto the wire before we report success, so a
	// change published right after Subscribe returns is not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", ChannelFor(jobID), err)
	}

	out := make(chan StageChange)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change StageChange
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
