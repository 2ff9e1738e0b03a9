package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotLeader is returned by Renew when another instance holds the lease.
var ErrNotLeader = errors.New("not leader")

var (
	renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// LeaderElector holds a single-owner lease on a Redis key. The holder must
// renew before ttl elapses.
type LeaderElector struct {
	rdb        goredis.UniversalClient
	instanceID string
	key        string
	ttl        time.Duration
}

func NewLeaderElector(rdb goredis.UniversalClient, instanceID, key string, ttl time.Duration) *LeaderElector {
	return &LeaderElector{rdb: rdb, instanceID: instanceID, key: key, ttl: ttl}
}

func (l *LeaderElector) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire %s: %w", l.key, err)
	}
	return ok, nil
}

func (l *LeaderElector) Renew(ctx context.Context) error {
	renewed, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to renew %s: %w", l.key, err)
	}
	if renewed == 0 {
		return ErrNotLeader
	}
	return nil
}

// Release gives the lease up if this instance still holds it.
func (l *LeaderElector) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", l.key, err)
	}
	return nil
}
