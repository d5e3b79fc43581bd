package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const runLockPrefix = "health:run:"

// RunLock serializes analysis runs per farm across all service replicas.
// The lock carries a TTL so a crashed run never blocks the farm forever.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	return &RunLock{client: client, ttl: ttl}
}

// Acquire takes the farm's run lock. It returns a release function on
// success; release only deletes the lock if this holder still owns it.
func (l *RunLock) Acquire(ctx context.Context, farmID string) (release func(), ok bool, err error) {
	key := runLockPrefix + farmID
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire run lock for farm %s: %w", farmID, err)
	}
	if !acquired {
		return nil, false, nil
	}

	release = func() {
		// Best effort compare-and-delete; an expired lock held by a newer
		// run must not be removed.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(releaseCtx, script, []string{key}, token).Err(); err != nil {
			slog.Warn("Failed to release run lock", "farm_id", farmID, "error", err)
		}
	}
	return release, true, nil
}
