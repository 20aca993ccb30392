package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobLock is a single-flight guard for scheduled jobs. The cleanup jobs
// are not safe to run twice against the same cutoff window, so when
// multiple instances share a database they must also share this lock.
type JobLock interface {
	// TryAcquire returns true when this instance may run the job
	TryAcquire(ctx context.Context) (bool, error)
	// Release frees the lock early; TTL expiry is the fallback
	Release(ctx context.Context) error
}

// redisLock implements JobLock with SET NX + TTL. The TTL must exceed
// the longest expected job run.
type redisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	holder string
}

// NewRedisLock creates a redis-backed JobLock for the named job.
func NewRedisLock(client *redis.Client, job string, ttl time.Duration) JobLock {
	return &redisLock{
		client: client,
		key:    "stashd:joblock:" + job,
		ttl:    ttl,
		holder: uuid.NewString(),
	}
}

func (l *redisLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.holder, l.ttl).Result()
}

func (l *redisLock) Release(ctx context.Context) error {
	// Only delete a lock this instance holds; a crashed holder's lock
	// expires via TTL instead.
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	return l.client.Eval(ctx, script, []string{l.key}, l.holder).Err()
}

// noopLock always grants the lock. Used when redis is not configured;
// single-flight then holds only within one instance.
type noopLock struct{}

// NewNoopLock creates a JobLock that always grants.
func NewNoopLock() JobLock { return noopLock{} }

func (noopLock) TryAcquire(context.Context) (bool, error) { return true, nil }
func (noopLock) Release(context.Context) error            { return nil }
