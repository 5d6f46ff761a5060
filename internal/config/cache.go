package config

import (
    "strings"
    "time"

    "github.com/caarlos0/env/v11"
)

// CacheConfig defines settings for the response cache middleware, which
// fronts the admin statistics endpoint.  When Enabled is false or no
// Redis client is configured, caching is disabled.  KeyStrategy
// determines which parts of the request contribute to the cache key.
type CacheConfig struct {
    Enabled      bool            `env:"CACHE_ENABLED" envDefault:"true"`
    Methods      map[string]bool // parsed from RawMethods
    RawMethods   string          `env:"CACHE_METHODS" envDefault:"GET"`
    TTL          time.Duration   `env:"CACHE_TTL" envDefault:"15s"`
    KeyStrategy  string          `env:"CACHE_KEY_STRATEGY" envDefault:"route_query"`
    Prefix       string          `env:"CACHE_PREFIX" envDefault:"cache"`
    MaxBodyBytes int             `env:"CACHE_MAX_BODY_BYTES" envDefault:"1048576"`
}

// LoadCacheConfig reads CACHE_* variables.  All methods are upper-cased.
func LoadCacheConfig() CacheConfig {
    var cfg CacheConfig
    _ = env.Parse(&cfg)
    cfg.Methods = parseMethods(cfg.RawMethods)
    if cfg.TTL <= 0 {
        cfg.TTL = time.Second
    }
    return cfg
}

func parseMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range strings.Split(s, ",") {
        p = strings.TrimSpace(strings.ToUpper(p))
        if p != "" {
            m[p] = true
        }
    }
    return m
}
