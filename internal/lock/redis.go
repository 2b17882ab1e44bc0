package lock

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by someone else is left alone.
var unlockScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// Redis is a Locker shared by every API instance using the same Redis.
// Locks expire after TTL so a crashed holder cannot wedge a spot.
type Redis struct {
    rdb    *redis.Client
    ttl    time.Duration
    wait   time.Duration
    retry  time.Duration
    logger *slog.Logger
}

// NewRedis returns a Redis locker.  ttl bounds how long a lock survives its
// holder; wait bounds how long Acquire keeps retrying.
func NewRedis(rdb *redis.Client, ttl, wait time.Duration, logger *slog.Logger) *Redis {
    if ttl <= 0 {
        ttl = 10 * time.Second
    }
    if wait <= 0 {
        wait = 5 * time.Second
    }
    if logger == nil {
        logger = slog.Default()
    }
    return &Redis{rdb: rdb, ttl: ttl, wait: wait, retry: 25 * time.Millisecond, logger: logger}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
    token := uuid.NewString()
    ctx, cancel := context.WithTimeout(ctx, r.wait)
    defer cancel()

    for {
        ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
        if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
            return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
        }
        if ok {
            return func() { r.release(key, token) }, nil
        }
        select {
        case <-ctx.Done():
            return nil, fmt.Errorf("%w: %s", ErrTimeout, key)
        case <-time.After(r.retry):
        }
    }
}

func (r *Redis) release(key, token string) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := unlockScript.Run(ctx, r.rdb, []string{key}, token).Err(); err != nil {
        r.logger.Warn("lock release failed", slog.String("key", key), slog.Any("error", err))
    }
}
