package middleware

import (
    "fmt"
    "log/slog"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/convocation-seating/internal/config"
)

// takeToken refills the bucket at KEYS[1] by whole intervals, then takes
// one token if any is left.  Returns {allowed, remaining, retry_after_ms}.
var takeToken = redis.NewScript(`
    local now_ms   = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill   = tonumber(ARGV[3])
    local every_ms = tonumber(ARGV[4])
    local ttl_s    = tonumber(ARGV[5])

    local state  = redis.call('HMGET', KEYS[1], 'tokens', 'at')
    local tokens = tonumber(state[1])
    local at     = tonumber(state[2])
    if tokens == nil or at == nil then
        tokens = capacity
        at = now_ms
    end

    local steps = math.floor(math.max(0, now_ms - at) / every_ms)
    if steps > 0 then
        tokens = math.min(capacity, tokens + steps * refill)
        at = at + steps * every_ms
    end

    local allowed, retry_ms = 0, 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        retry_ms = math.max(0, every_ms - (now_ms - at))
    end

    redis.call('HSET', KEYS[1], 'tokens', tokens, 'at', at)
    redis.call('EXPIRE', KEYS[1], ttl_s)
    return {allowed, tokens, retry_ms}
`)

// bucketReply is the decoded result of one takeToken call.
type bucketReply struct {
    Allowed    bool
    Remaining  int64
    RetryAfter time.Duration
}

func parseBucketReply(v interface{}) (bucketReply, error) {
    arr, ok := v.([]interface{})
    if !ok || len(arr) != 3 {
        return bucketReply{}, fmt.Errorf("unexpected limiter reply %#v", v)
    }
    return bucketReply{
        Allowed:    asInt64(arr[0]) == 1,
        Remaining:  asInt64(arr[1]),
        RetryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
    }, nil
}

// NewTokenBucket limits callers with a Redis token bucket shared by all
// instances.  It guards the public self-service routes, where CRR
// guessing is the main abuse.  Redis errors fail open.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, logger *slog.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    if logger == nil {
        logger = slog.Default()
    }
    log := logger.With(slog.String("component", "ratelimit"))
    every := cfg.RefillInterval
    if every <= 0 {
        every = time.Second
    }
    ttlSeconds := int64(math.Max(1, cfg.TTL.Seconds()))

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            ctx := c.Request().Context()
            key := buildRateKey(cfg, c)

            raw, err := takeToken.Run(ctx, rdb, []string{key},
                time.Now().UnixMilli(), cfg.Capacity, cfg.RefillTokens, every.Milliseconds(), ttlSeconds).Result()
            if err != nil {
                log.WarnContext(ctx, "redis error, allowing request", slog.String("key", key), slog.String("error", err.Error()))
                return next(c)
            }
            reply, err := parseBucketReply(raw)
            if err != nil {
                log.WarnContext(ctx, "allowing request", slog.String("key", key), slog.String("error", err.Error()))
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(reply.Remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if reply.Allowed {
                return next(c)
            }

            secs := int(math.Ceil(reply.RetryAfter.Seconds()))
            h.Set("Retry-After", strconv.Itoa(secs))
            log.DebugContext(ctx, "blocked", slog.String("key", key), slog.Duration("retry_after", reply.RetryAfter))
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":       "rate limit exceeded",
                "retry_after": secs,
            })
        }
    }
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        n, _ := strconv.ParseInt(t, 10, 64)
        return n
    }
    return 0
}

// buildRateKey joins the request parts chosen by cfg.KeyStrategy.  The
// route is the registered pattern, so every identifier tried against
// /registrants/:identifier lands in the same bucket.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    route := c.Request().Method + " " + c.Path()

    parts := []string{cfg.Prefix}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "route":
        parts = append(parts, "route", route)
    case "user":
        parts = append(parts, "user", UserID(c))
    case "ip_user":
        parts = append(parts, "ip", ip, "user", UserID(c))
    default: // ip_route
        parts = append(parts, "ip", ip, "route", route)
    }
    return strings.Join(parts, ":")
}
