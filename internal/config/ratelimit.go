package config

import (
    "time"

    "github.com/caarlos0/env/v11"
)

// RateLimitConfig configures the Redis token bucket guarding the public
// self-service routes.
type RateLimitConfig struct {
    Enabled        bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
    Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"20"`
    RefillTokens   int           `env:"RATE_LIMIT_REFILL_TOKENS" envDefault:"1"`
    RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"3s"`
    TTL            time.Duration `env:"RATE_LIMIT_TTL" envDefault:"10m"`
    KeyStrategy    string        `env:"RATE_LIMIT_KEY_STRATEGY" envDefault:"ip_route"`
    Prefix         string        `env:"RATE_LIMIT_PREFIX" envDefault:"rl"`
    Debug          bool          `env:"RATE_LIMIT_DEBUG"`

    // aliases
    Burst       int           `env:"RATE_LIMIT_BURST"`
    RefillEvery time.Duration `env:"RATE_LIMIT_REFILL_EVERY"`
}

func LoadRateLimitConfig() RateLimitConfig {
    var def RateLimitConfig
    _ = env.Parse(&def)
    return def.normalize()
}

func (def RateLimitConfig) normalize() RateLimitConfig {
    if def.Burst > 0 { def.Capacity = def.Burst }
    if def.RefillEvery > 0 {
        def.RefillTokens = 1
        def.RefillInterval = def.RefillEvery
    }
    if def.Capacity < 1 { def.Capacity = 1 }
    if def.RefillTokens < 1 { def.RefillTokens = 1 }
    if def.RefillInterval <= 0 { def.RefillInterval = time.Second }
    minTTL := 5 * def.RefillInterval
    if def.TTL < minTTL { def.TTL = minTTL }
    return def
}
