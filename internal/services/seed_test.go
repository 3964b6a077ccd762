package services

import (
	"context"
	"testing"

	"github.com/adminkit/apiserver/internal/logging"
	"github.com/adminkit/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeederIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seeder := NewSeeder(env.store, env.hasher, logging.Discard(), "password")

	require.NoError(t, seeder.Run(ctx))
	require.NoError(t, seeder.Run(ctx))

	assert.Len(t, env.store.users, 2)
	assert.Len(t, env.store.roles, 2)
	assert.Len(t, env.store.permissions, 15)

	session, su, err := env.auth.Login(ctx, "su", "password")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.True(t, su.HasRole(types.SuperuserRoleKey))
	assert.True(t, su.HasPermission("delete user", "update translation"))

	_, dev, err := env.auth.Login(ctx, "dev", "password")
	require.NoError(t, err)
	assert.True(t, dev.HasPermission("configure role key"))
	assert.True(t, dev.HasPermission("update translation"))
	assert.False(t, dev.HasPermission("delete user"))
}
