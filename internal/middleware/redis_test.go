package middleware

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strconv"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/convocation-seating/internal/config"
    "github.com/iliyamo/convocation-seating/internal/testutil"
)

func fromIP(e *echo.Echo, method, path, ip string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, nil)
    req.Header.Set(echo.HeaderXRealIP, ip)
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestTokenBucketBlocksOnceCapacityIsSpent(t *testing.T) {
    rdb, mr := testutil.NewRedis(t)
    cfg := config.RateLimitConfig{
        Enabled:        true,
        Capacity:       2,
        RefillTokens:   1,
        RefillInterval: time.Minute,
        TTL:            10 * time.Minute,
        KeyStrategy:    "ip_route",
        Prefix:         "rl",
    }
    e := echo.New()
    calls := 0
    e.POST("/v1/public/tickets/reveal", func(c echo.Context) error {
        calls++
        return c.NoContent(http.StatusUnauthorized)
    }, NewTokenBucket(cfg, rdb, nil))

    first := fromIP(e, http.MethodPost, "/v1/public/tickets/reveal", "10.0.0.7")
    assert.Equal(t, http.StatusUnauthorized, first.Code)
    assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
    assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
    assert.Equal(t, http.StatusUnauthorized, fromIP(e, http.MethodPost, "/v1/public/tickets/reveal", "10.0.0.7").Code)

    blocked := fromIP(e, http.MethodPost, "/v1/public/tickets/reveal", "10.0.0.7")
    require.Equal(t, http.StatusTooManyRequests, blocked.Code)
    assert.Equal(t, "0", blocked.Header().Get("X-RateLimit-Remaining"))
    retry, err := strconv.Atoi(blocked.Header().Get("Retry-After"))
    require.NoError(t, err)
    assert.True(t, retry >= 1 && retry <= 60, "retry after %d", retry)

    var body struct {
        Error      string `json:"error"`
        RetryAfter int    `json:"retry_after"`
    }
    require.NoError(t, json.Unmarshal(blocked.Body.Bytes(), &body))
    assert.Equal(t, "rate limit exceeded", body.Error)
    assert.Equal(t, retry, body.RetryAfter)
    assert.Equal(t, 2, calls, "blocked request never reaches the handler")

    other := fromIP(e, http.MethodPost, "/v1/public/tickets/reveal", "10.0.0.8")
    assert.Equal(t, http.StatusUnauthorized, other.Code, "buckets are per caller")

    key := "rl:ip:10.0.0.7:route:POST /v1/public/tickets/reveal"
    assert.True(t, mr.Exists(key))
    assert.Equal(t, 10*time.Minute, mr.TTL(key))
}

func TestTokenBucketRefillsAfterInterval(t *testing.T) {
    rdb, mr := testutil.NewRedis(t)
    cfg := config.RateLimitConfig{
        Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute,
        TTL: 10 * time.Minute, KeyStrategy: "ip", Prefix: "rl",
    }
    e := echo.New()
    e.GET("/v1/public/registrants/:identifier", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
        NewTokenBucket(cfg, rdb, nil))

    assert.Equal(t, http.StatusOK, fromIP(e, http.MethodGet, "/v1/public/registrants/E1", "10.0.0.9").Code)
    assert.Equal(t, http.StatusTooManyRequests, fromIP(e, http.MethodGet, "/v1/public/registrants/E2", "10.0.0.9").Code)

    // pretend the last refill happened two intervals ago
    at := time.Now().Add(-2 * time.Minute).UnixMilli()
    mr.HSet("rl:ip:10.0.0.9", "at", strconv.FormatInt(at, 10))
    assert.Equal(t, http.StatusOK, fromIP(e, http.MethodGet, "/v1/public/registrants/E3", "10.0.0.9").Code)
}

func TestTokenBucketFailsOpenWhenRedisIsDown(t *testing.T) {
    rdb, mr := testutil.NewRedis(t)
    cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute, TTL: time.Minute, Prefix: "rl"}
    e := echo.New()
    e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb, nil))

    mr.Close()
    for i := 0; i < 3; i++ {
        assert.Equal(t, http.StatusOK, fromIP(e, http.MethodGet, "/x", "10.0.0.1").Code)
    }
}

func TestRedisCacheHitMissAndPurge(t *testing.T) {
    rdb, _ := testutil.NewRedis(t)
    cfg := config.CacheConfig{
        Enabled:      true,
        Methods:      map[string]bool{"GET": true},
        TTL:          time.Minute,
        KeyStrategy:  "route_query",
        Prefix:       "cache",
        MaxBodyBytes: 1 << 20,
    }
    e := echo.New()
    calls := 0
    e.GET("/v1/admin/stats", func(c echo.Context) error {
        calls++
        return c.JSON(http.StatusOK, echo.Map{"calls": calls})
    }, NewRedisCache(cfg, rdb))

    miss := fromIP(e, http.MethodGet, "/v1/admin/stats", "10.0.0.1")
    require.Equal(t, http.StatusOK, miss.Code)
    assert.Equal(t, "MISS", miss.Header().Get("X-Cache"))

    hit := fromIP(e, http.MethodGet, "/v1/admin/stats", "10.0.0.1")
    require.Equal(t, http.StatusOK, hit.Code)
    assert.Equal(t, "HIT", hit.Header().Get("X-Cache"))
    assert.Equal(t, miss.Body.String(), hit.Body.String())
    assert.True(t, strings.HasPrefix(hit.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON))
    assert.Equal(t, 1, calls)

    other := fromIP(e, http.MethodGet, "/v1/admin/stats?enclosure=A", "10.0.0.1")
    assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
    assert.Equal(t, 2, calls)

    require.NoError(t, PurgeCache(context.Background(), cfg, rdb))
    after := fromIP(e, http.MethodGet, "/v1/admin/stats", "10.0.0.1")
    assert.Equal(t, "MISS", after.Header().Get("X-Cache"))
    assert.JSONEq(t, `{"calls":3}`, after.Body.String())
}

func TestRedisCacheSkipsErrorsAndOversizeBodies(t *testing.T) {
    rdb, mr := testutil.NewRedis(t)
    cfg := config.CacheConfig{
        Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute,
        Prefix: "cache", MaxBodyBytes: 16,
    }
    e := echo.New()
    e.GET("/fail", func(c echo.Context) error {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "boom"})
    }, NewRedisCache(cfg, rdb))
    e.GET("/big", func(c echo.Context) error {
        return c.String(http.StatusOK, strings.Repeat("x", 64))
    }, NewRedisCache(cfg, rdb))

    for i := 0; i < 2; i++ {
        assert.Equal(t, "MISS", fromIP(e, http.MethodGet, "/fail", "10.0.0.1").Header().Get("X-Cache"))
        big := fromIP(e, http.MethodGet, "/big", "10.0.0.1")
        assert.Equal(t, "MISS", big.Header().Get("X-Cache"))
        assert.Len(t, big.Body.String(), 64)
    }
    assert.Empty(t, mr.Keys())
}

func TestPurgeCacheLeavesOtherKeys(t *testing.T) {
    rdb, mr := testutil.NewRedis(t)
    require.NoError(t, mr.Set("cache:abc", "1"))
    require.NoError(t, mr.Set("rl:ip:10.0.0.1", "1"))

    require.NoError(t, PurgeCache(context.Background(), config.CacheConfig{Prefix: "cache"}, rdb))
    assert.Equal(t, []string{"rl:ip:10.0.0.1"}, mr.Keys())
    assert.NoError(t, PurgeCache(context.Background(), config.CacheConfig{Prefix: "cache"}, nil))
}
