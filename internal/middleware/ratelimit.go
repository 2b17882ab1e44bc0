package middleware

import (
    "context"
    "fmt"
    "log/slog"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/smart-parking/internal/config"
)

// bucketScript refills and takes one token atomically.  It returns
// {allowed, remaining, retry_after_ms}.
var bucketScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])
    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    local elapsed = math.max(0, now_ms - last_refill)
    local intervals = math.floor(elapsed / interval_ms)
    if intervals > 0 then
        tokens = math.min(capacity, tokens + intervals * refill_tokens)
        last_refill = last_refill + intervals * interval_ms
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)
    return { allowed, tokens, retry_after_ms }
`)

// Decision is the outcome of taking one token.
type Decision struct {
    Allowed   bool
    Remaining int64
    RetryMs   int64
}

// Bucket takes a token for key.
type Bucket interface {
    Take(ctx context.Context, key string) (Decision, error)
}

// RedisBucket keeps token buckets in Redis so every API instance shares the
// same budget.
type RedisBucket struct {
    cfg config.RateLimitConfig
    rdb *redis.Client
}

// NewRedisBucket returns nil when rdb is nil.
func NewRedisBucket(cfg config.RateLimitConfig, rdb *redis.Client) *RedisBucket {
    if rdb == nil {
        return nil
    }
    return &RedisBucket{cfg: cfg, rdb: rdb}
}

func (b *RedisBucket) Take(ctx context.Context, key string) (Decision, error) {
    args := []interface{}{
        time.Now().UnixMilli(),
        b.cfg.Capacity,
        b.cfg.RefillTokens,
        b.cfg.RefillInterval.Milliseconds(),
        int64(b.cfg.TTL / time.Second),
    }
    vals, err := bucketScript.Run(ctx, b.rdb, []string{key}, args...).Int64Slice()
    if err != nil {
        return Decision{}, err
    }
    if len(vals) != 3 {
        return Decision{}, fmt.Errorf("rate limit script returned %d values", len(vals))
    }
    return Decision{Allowed: vals[0] == 1, Remaining: vals[1], RetryMs: vals[2]}, nil
}

// NewTokenBucket limits requests through a Redis bucket.  With rate limiting
// disabled or no Redis it is a no-op.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, logger *slog.Logger) echo.MiddlewareFunc {
    if rdb == nil {
        return RateLimit(cfg, nil, logger)
    }
    return RateLimit(cfg, NewRedisBucket(cfg, rdb), logger)
}

// RateLimit takes a token from bucket per request.  It reads the caller set
// by JWTAuth, so on authenticated routes it must be registered after it.
// Roles listed in cfg.ExemptRoles skip the limiter and bucket errors let the
// request through.
func RateLimit(cfg config.RateLimitConfig, bucket Bucket, logger *slog.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || bucket == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    if logger == nil {
        logger = slog.Default()
    }
    exempt := make(map[string]bool, len(cfg.ExemptRoles))
    for _, r := range cfg.ExemptRoles {
        exempt[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if role := CurrentRole(c); role != "" && exempt[role] {
                return next(c)
            }
            key := buildRateKey(cfg, c)
            d, err := bucket.Take(c.Request().Context(), key)
            if err != nil {
                if cfg.Debug {
                    logger.Warn("rate limit check skipped", slog.String("key", key), slog.Any("error", err))
                }
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
            if !d.Allowed {
                secs := int(math.Ceil(float64(d.RetryMs) / 1000.0))
                h.Set("Retry-After", strconv.Itoa(secs))
                if cfg.Debug {
                    logger.Info("rate limited", slog.String("key", key), slog.Int64("retry_ms", d.RetryMs))
                }
                return c.JSON(http.StatusTooManyRequests, echo.Map{
                    "error":       "rate limit exceeded",
                    "retry_after": secs,
                })
            }
            return next(c)
        }
    }
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    // Anonymous callers are told apart by address.
    uid := CurrentUser(c)
    if uid == "" {
        uid = "anon-" + ip
    }
    route := c.Request().Method + " " + c.Path()

    parts := []string{cfg.Prefix}
    switch cfg.KeyStrategy {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", uid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "user_route":
        parts = append(parts, "user", uid, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}
