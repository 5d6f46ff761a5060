package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestParseSQLiteDefaults(t *testing.T) {
    t.Setenv("DB_DRIVER", "SQLite")
    t.Setenv("JWT_SECRET", "s3cret")
    t.Setenv("RABBITMQ_URL", "")
    t.Setenv("AMQP_URL", "amqp://broker:5672/")

    cfg, err := Parse()
    require.NoError(t, err)
    assert.Equal(t, "sqlite", cfg.DBDriver)
    assert.Equal(t, "8080", cfg.Port)
    assert.Equal(t, 60, cfg.AccessTTLMin)
    assert.Equal(t, 5, cfg.Allocation.MaxRetries)
    assert.Equal(t, 30*time.Second, cfg.Allocation.LockTTL)
    assert.Equal(t, "amqp://broker:5672/", cfg.Queue.URL)
    assert.Equal(t, "logs", cfg.Queue.LogDir)
}

func TestParseRequiresJWTSecret(t *testing.T) {
    t.Setenv("DB_DRIVER", "sqlite")
    t.Setenv("JWT_SECRET", "")

    _, err := Parse()
    assert.Error(t, err)
}

func TestParseMySQLRequiresConnection(t *testing.T) {
    t.Setenv("DB_DRIVER", "mysql")
    t.Setenv("JWT_SECRET", "s3cret")
    t.Setenv("DB_USER", "seating")
    t.Setenv("DB_HOST", "")
    t.Setenv("DB_NAME", "seating")

    _, err := Parse()
    assert.EqualError(t, err, "missing required env var: DB_HOST")

    t.Setenv("DB_HOST", "db")
    cfg, err := Parse()
    require.NoError(t, err)
    assert.Equal(t, "3306", cfg.DBPort)
}

func TestParseRejectsUnknownDriver(t *testing.T) {
    t.Setenv("DB_DRIVER", "postgres")
    t.Setenv("JWT_SECRET", "s3cret")

    _, err := Parse()
    assert.ErrorContains(t, err, "invalid DB_DRIVER")
}

func TestRateLimitAliasesAndFloor(t *testing.T) {
    t.Setenv("RATE_LIMIT_BURST", "9")
    t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
    t.Setenv("RATE_LIMIT_TTL", "1s")

    cfg := LoadRateLimitConfig()
    assert.Equal(t, 9, cfg.Capacity)
    assert.Equal(t, 1, cfg.RefillTokens)
    assert.Equal(t, 2*time.Second, cfg.RefillInterval)
    assert.Equal(t, 10*time.Second, cfg.TTL, "ttl is at least five refill intervals")
}

func TestCacheMethods(t *testing.T) {
    t.Setenv("CACHE_METHODS", " get, head ,")

    cfg := LoadCacheConfig()
    assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Methods)
}

func TestRedisAddrFromHostPort(t *testing.T) {
    t.Setenv("REDIS_HOST", "cache")
    t.Setenv("REDIS_PORT", "6380")

    assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)
}

func TestRedisTLSVerifiesUnlessInsecure(t *testing.T) {
    assert.Nil(t, RedisConfig{}.tlsConfig())

    t.Setenv("REDIS_TLS", "true")
    cfg := LoadRedisConfig()
    require.NotNil(t, cfg.tlsConfig())
    assert.False(t, cfg.tlsConfig().InsecureSkipVerify)

    t.Setenv("REDIS_TLS_INSECURE", "true")
    assert.True(t, LoadRedisConfig().tlsConfig().InsecureSkipVerify)
}
