package config

// Redis backs the server-side session store and the rate limiter.  Both are
// optional: when Redis is unreachable at startup the caller falls back to
// cookie sessions and runs without rate limiting.

import (
    "context"
    "crypto/tls"
    "fmt"
    "os"

    "github.com/redis/go-redis/v9"
)

// RedisConfig describes how to reach Redis.
type RedisConfig struct {
    Addr     string
    Password string
    DB       int
    TLS      bool
}

// LoadRedisConfig reads REDIS_ADDR, or REDIS_HOST plus REDIS_PORT, along with
// REDIS_PASSWORD, REDIS_DB and REDIS_TLS.  Host and port win over the
// shorthand when both are set.
func LoadRedisConfig() RedisConfig {
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    return RedisConfig{
        Addr:     addr,
        Password: os.Getenv("REDIS_PASSWORD"),
        DB:       envInt("REDIS_DB", 0),
        TLS:      envBool("REDIS_TLS", false),
    }
}

// NewRedisClient connects and pings.  On failure the client is closed and the
// error returned so the caller can log it and degrade.
func NewRedisClient(ctx context.Context, c RedisConfig) (*redis.Client, error) {
    opts := &redis.Options{
        Addr:     c.Addr,
        Password: c.Password,
        DB:       c.DB,
    }
    if c.TLS {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(opts)
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("redis ping %s: %w", c.Addr, err)
    }
    return client, nil
}
