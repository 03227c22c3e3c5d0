package vigilance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clearvet/screening-backend/internal/infrastructure/cache"
)

// DueQueue indexes monitoring schedules by next-check time in a redis
// sorted set so the scheduler tick does not poll the database. The
// schedule store remains the source of truth; the queue is rebuildable.
type DueQueue struct {
	client *redis.Client
}

// NewDueQueue creates the queue over a redis client.
func NewDueQueue(client *redis.Client) *DueQueue {
	return &DueQueue{client: client}
}

// Schedule inserts or moves a subject to its next check time.
func (q *DueQueue) Schedule(ctx context.Context, subjectID uuid.UUID, at time.Time) error {
	err := q.client.ZAdd(ctx, cache.DueQueueKey, redis.Z{
		Score:  float64(at.Unix()),
		Member: subjectID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("due queue schedule failed: %w", err)
	}
	return nil
}

// Remove drops a subject from the queue.
func (q *DueQueue) Remove(ctx context.Context, subjectID uuid.UUID) error {
	if err := q.client.ZRem(ctx, cache.DueQueueKey, subjectID.String()).Err(); err != nil {
		return fmt.Errorf("due queue remove failed: %w", err)
	}
	return nil
}

// Due returns up to limit subjects whose check time has passed, oldest
// first. Entries stay queued until rescheduled or removed, so a crashed
// run is retried on the next tick.
func (q *DueQueue) Due(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	members, err := q.client.ZRangeByScore(ctx, cache.DueQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("due queue scan failed: %w", err)
	}

	out := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			// Unparseable members are garbage; drop them.
			q.client.ZRem(ctx, cache.DueQueueKey, m)
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
