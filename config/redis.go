package config

import (
	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a client for the optional shared OAuth state store.
// Returns nil when no Redis address is configured; callers fall back to the
// in-process store.
func NewRedisClient(cfg *Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
}
