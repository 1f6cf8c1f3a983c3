package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server behind the rate limiter and the
// sweep lease.  URL wins over the discrete fields when set.
type RedisConfig struct {
	URL         string
	Addr        string
	Password    string
	DB          int
	TLS         bool
	PoolSize    int
	DialTimeout time.Duration
	PingTimeout time.Duration
}

// LoadRedisConfig reads REDIS_URL, or REDIS_HOST/REDIS_PORT (REDIS_ADDR as
// shorthand), REDIS_PASSWORD, REDIS_DB and REDIS_TLS.
func LoadRedisConfig() RedisConfig {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
		addr = host + ":" + port
	}
	return RedisConfig{
		URL:         envStr("REDIS_URL", ""),
		Addr:        addr,
		Password:    envStr("REDIS_PASSWORD", ""),
		DB:          envInt("REDIS_DB", 0),
		TLS:         envBool("REDIS_TLS", false),
		PoolSize:    envInt("REDIS_POOL_SIZE", 10),
		DialTimeout: envDur("REDIS_DIAL_TIMEOUT", 2*time.Second),
		PingTimeout: envDur("REDIS_PING_TIMEOUT", 2*time.Second),
	}
}

// Options converts the config into client options.
func (c RedisConfig) Options() (*redis.Options, error) {
	var opts *redis.Options
	if c.URL != "" {
		parsed, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}
		if c.TLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}
	return opts, nil
}

// NewRedisClient connects and pings.  On any failure it returns a nil
// client and the error; callers run without rate limiting and fall back to
// an in-process sweep lease.
func NewRedisClient(ctx context.Context, c RedisConfig) (*redis.Client, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, c.PingTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}
	return client, nil
}
