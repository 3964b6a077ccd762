package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisRevocationsExpireWithToken(t *testing.T) {
	mr, client := newRedis(t)
	revocations := NewRedisRevocations(client)
	ctx := context.Background()

	require.NoError(t, revocations.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))

	revoked, err := revocations.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = revocations.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	mr.FastForward(2 * time.Hour)
	revoked, err = revocations.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisRevocationsSkipExpiredTokens(t *testing.T) {
	mr, client := newRedis(t)
	revocations := NewRedisRevocations(client)

	require.NoError(t, revocations.Revoke(context.Background(), "old", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists(revokedKeyPrefix+"old"))
}

func TestLogoutThroughRedis(t *testing.T) {
	_, client := newRedis(t)
	env := newTestEnv(t)
	env.sessions = NewSessionService(env.store, NewRedisRevocations(client), "test-secret", time.Hour)
	user := env.addUser(t, "alice", true)
	ctx := context.Background()

	session, err := env.sessions.Issue(user)
	require.NoError(t, err)
	_, claims, err := env.sessions.Authenticate(ctx, session.Token)
	require.NoError(t, err)

	require.NoError(t, env.sessions.Revoke(ctx, claims))
	_, _, err = env.sessions.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
