package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/convocation-seating/internal/config"
    "github.com/iliyamo/convocation-seating/internal/model"
    "github.com/iliyamo/convocation-seating/internal/utils"
)

const testSecret = "test-secret"

func whoami(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{"user": UserID(c), "confirmer": Confirmer(c)})
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, nil)
    if token != "" {
        req.Header.Set("Authorization", "Bearer "+token)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestJWTAuthAndRoles(t *testing.T) {
    e := echo.New()
    g := e.Group("/admin", JWTAuth(testSecret), RequireRole(model.RoleAdmin))
    g.GET("/me", whoami)

    admin, err := utils.NewAccessToken(testSecret, 42, "admin@venue.test", model.RoleAdmin, 5)
    require.NoError(t, err)
    staff, err := utils.NewAccessToken(testSecret, 43, "desk@venue.test", model.RoleStaff, 5)
    require.NoError(t, err)
    forged, err := utils.NewAccessToken("other-secret", 42, "admin@venue.test", model.RoleAdmin, 5)
    require.NoError(t, err)

    rec := serve(e, http.MethodGet, "/admin/me", admin.Token)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"user":"42","confirmer":"admin@venue.test"}`, rec.Body.String())

    assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin/me", staff.Token).Code)
    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/admin/me", forged.Token).Code)
    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/admin/me", "").Code)
}

func TestDeskRolesAndRolelessTokens(t *testing.T) {
    e := echo.New()
    e.GET("/desk", whoami, JWTAuth(testSecret), RequireDesk())

    staff, err := utils.NewAccessToken(testSecret, 43, "desk@venue.test", "staff", 5)
    require.NoError(t, err)
    assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/desk", staff.Token).Code)

    roleless, err := utils.NewAccessToken(testSecret, 44, "nobody@venue.test", "", 5)
    require.NoError(t, err)
    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/desk", roleless.Token).Code)
}

func TestAnonymousIdentity(t *testing.T) {
    e := echo.New()
    e.GET("/me", whoami)

    rec := serve(e, http.MethodGet, "/me", "")
    assert.JSONEq(t, `{"user":"anon","confirmer":""}`, rec.Body.String())
}

func TestRedisMiddlewaresPassThroughWithoutClient(t *testing.T) {
    e := echo.New()
    e.GET("/stats", func(c echo.Context) error { return c.String(http.StatusOK, "fresh") },
        NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, nil),
        NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil))

    for i := 0; i < 3; i++ {
        rec := serve(e, http.MethodGet, "/stats", "")
        assert.Equal(t, http.StatusOK, rec.Code)
        assert.Equal(t, "fresh", rec.Body.String())
        assert.Empty(t, rec.Header().Get("X-Cache"))
    }
}

func TestCachePayloadRoundTrip(t *testing.T) {
    hdr := http.Header{"Content-Type": {"application/json"}}
    bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
    require.NoError(t, err)

    status, gotHdr, body, ok := decodePayload(bs)
    require.True(t, ok)
    assert.Equal(t, http.StatusOK, status)
    assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
    assert.Equal(t, `{"ok":true}`, string(body))

    _, _, _, ok = decodePayload([]byte{0, 1})
    assert.False(t, ok)
}

func TestCacheKeyDependsOnQuery(t *testing.T) {
    e := echo.New()
    cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query", TTL: time.Second}
    key := func(target string) string {
        c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
        c.SetPath("/v1/admin/stats")
        return cacheKeyFrom(cfg, c)
    }
    assert.Equal(t, key("/v1/admin/stats"), key("/v1/admin/stats"))
    assert.NotEqual(t, key("/v1/admin/stats"), key("/v1/admin/stats?enclosure=A"))
    assert.Contains(t, key("/v1/admin/stats"), "cache:")
}

func TestBucketReplyAndKeys(t *testing.T) {
    reply, err := parseBucketReply([]interface{}{int64(0), int64(0), int64(2500)})
    require.NoError(t, err)
    assert.False(t, reply.Allowed)
    assert.Equal(t, 2500*time.Millisecond, reply.RetryAfter)

    _, err = parseBucketReply("OK")
    assert.Error(t, err)

    e := echo.New()
    req := httptest.NewRequest(http.MethodGet, "/v1/public/registrants/E1", nil)
    req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/v1/public/registrants/:identifier")

    cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_route"}
    assert.Equal(t, "rl:ip:10.0.0.7:route:GET /v1/public/registrants/:identifier", buildRateKey(cfg, c))
    cfg.KeyStrategy = "ip"
    assert.Equal(t, "rl:ip:10.0.0.7", buildRateKey(cfg, c))
}
