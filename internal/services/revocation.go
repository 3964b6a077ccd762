package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers revoked bearer token ids until they expire.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

const revokedKeyPrefix = "auth:revoked:"

// RedisRevocations keeps revoked token ids in Redis with a TTL matching the token.
type RedisRevocations struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client, now: time.Now}
}

func (r *RedisRevocations) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
