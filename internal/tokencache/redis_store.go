package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares one credential between service instances. The Redis TTL
// mirrors the credential expiry so stale tokens age out on their own.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Get(ctx context.Context) (Credential, bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, err
	}

	var cred Credential
	if err := json.Unmarshal([]byte(val), &cred); err != nil {
		return Credential{}, false, err
	}
	return cred, true, nil
}

func (s *RedisStore) Set(ctx context.Context, cred Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}

	ttl := time.Until(cred.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key, data, ttl).Err()
}

func (s *RedisStore) Invalidate(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
