package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotTTL is how long a live snapshot survives in Redis. Long enough
// for pollers to catch the terminal state, short enough that abandoned
// jobs don't pile up.
const SnapshotTTL = 24 * time.Hour

// ErrNoSnapshot is returned when no live snapshot exists for a job. The
// caller falls back to projecting the persisted job row.
var ErrNoSnapshot = errors.New("no live progress snapshot")

// Tracker publishes live progress snapshots to Redis so pollers see
// counter movement between database flushes. A nil client disables
// tracking: Publish becomes a no-op and Fetch always misses.
type Tracker struct {
	redis *redis.Client
}

func NewTracker(client *redis.Client) *Tracker {
	return &Tracker{redis: client}
}

func (t *Tracker) key(jobID string) string {
	return fmt.Sprintf("ingest:progress:%s", jobID)
}

// Publish writes the snapshot for its job. Errors are returned for the
// caller to log; a failed publish never fails the import.
func (t *Tracker) Publish(ctx context.Context, s Snapshot) error {
	if t.redis == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := t.redis.Set(ctx, t.key(s.JobID), data, SnapshotTTL).Err(); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Fetch returns the live snapshot for a job, or ErrNoSnapshot when none
// is stored (or no Redis is configured).
func (t *Tracker) Fetch(ctx context.Context, jobID string) (Snapshot, error) {
	if t.redis == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	data, err := t.redis.Get(ctx, t.key(jobID)).Bytes()
	if err == redis.Nil {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// Drop removes a job's snapshot, used when the job itself is deleted.
func (t *Tracker) Drop(ctx context.Context, jobID string) error {
	if t.redis == nil {
		return nil
	}
	return t.redis.Del(ctx, t.key(jobID)).Err()
}
