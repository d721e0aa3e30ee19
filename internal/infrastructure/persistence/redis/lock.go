package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/xiebiao/freshmart/pkg/errors"
)

// ErrLockNotAcquired another holder owns the lock
var ErrLockNotAcquired = errors.New("lock held by another owner")

// releaseScript deletes the key only when it still holds our token, so a lock
// that expired and was taken over is never released by the old holder
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker SET NX PX mutual exclusion across replicas
//
// Used by the expiry sweeper so one replica sweeps at a time. A lock is a
// lease: work longer than its TTL may overlap with the next holder, which the
// sweeper tolerates because every transition is a conditional update.
type Locker struct {
	client *redis.Client
}

// NewLocker creates a locker
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Lock a held lease
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire takes key for ttl or returns ErrLockNotAcquired
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to acquire lock")
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release frees the lock if it is still ours; releasing a lost lease is not an error
func (lk *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Err(); err != nil {
		return apperrors.Wrap(err, "failed to release lock")
	}
	return nil
}

// Key locked key
func (lk *Lock) Key() string {
	return lk.key
}
