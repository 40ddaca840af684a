package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisStateKeyPrefix = "oauth_state:"

// RedisStateStore backs OAuth states with a shared Redis so any instance
// behind a load balancer can complete a callback that another one started.
type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (r *RedisStateStore) Save(ctx context.Context, token string, data StateData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	ttl := time.Until(data.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.client.Set(ctx, redisStateKeyPrefix+token, payload, ttl).Err()
}

func (r *RedisStateStore) Consume(ctx context.Context, token string) (*StateData, error) {
	// GETDEL makes read-and-invalidate a single atomic step.
	payload, err := r.client.GetDel(ctx, redisStateKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var data StateData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Sweep is a no-op: Redis expires state keys on its own.
func (r *RedisStateStore) Sweep(context.Context) error {
	return nil
}
