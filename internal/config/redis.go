package config

// Redis backs the public rate limiter, the stats response cache and the
// per-enclosure allocation lock.  If the server cannot be reached during
// startup the client is nil and callers degrade gracefully: no rate
// limiting, no caching, and allocation relies on the unique indexes.

import (
    "context"
    "crypto/tls"
    "time"

    "github.com/caarlos0/env/v11"
    "github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings.  Addr is used unless both Host
// and Port are set.
type RedisConfig struct {
    Host     string `env:"REDIS_HOST"`
    Port     string `env:"REDIS_PORT"`
    Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
    Password string `env:"REDIS_PASSWORD"`
    DB       int    `env:"REDIS_DB" envDefault:"0"`
    TLS      bool   `env:"REDIS_TLS"`
    // skip certificate verification; local self-signed setups only
    TLSInsecure bool `env:"REDIS_TLS_INSECURE"`
}

// tlsConfig returns nil when TLS is off.  Certificates are verified
// unless TLSInsecure is set.
func (cfg RedisConfig) tlsConfig() *tls.Config {
    if !cfg.TLS {
        return nil
    }
    return &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: cfg.TLSInsecure}
}

// LoadRedisConfig reads REDIS_* variables.
func LoadRedisConfig() RedisConfig {
    var cfg RedisConfig
    _ = env.Parse(&cfg)
    if cfg.Host != "" && cfg.Port != "" {
        cfg.Addr = cfg.Host + ":" + cfg.Port
    }
    if cfg.Addr == "" {
        cfg.Addr = "localhost:6379"
    }
    return cfg
}

// NewRedisClient connects using cfg.  The returned client is nil if the
// server does not answer a ping within two seconds.
func NewRedisClient(cfg RedisConfig) *redis.Client {
    client := redis.NewClient(&redis.Options{
        Addr:      cfg.Addr,
        Password:  cfg.Password,
        DB:        cfg.DB,
        TLSConfig: cfg.tlsConfig(),
    })
    // Ping the server with a short timeout.  Return nil on failure.
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
