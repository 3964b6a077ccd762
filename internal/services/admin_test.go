package services

import (
	"context"
	"testing"

	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSuperuserRole(t *testing.T, st *memStore) types.Role {
	t.Helper()
	role, err := st.Roles().Create(context.Background(), types.Role{Key: types.SuperuserRoleKey})
	require.NoError(t, err)
	return role
}

func TestPermissionCreateGrantsSuperuser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	superuser := seedSuperuserRole(t, env.store)
	permissions := NewPermissionService(env.store)

	created, err := permissions.Create(ctx, PermissionInput{Key: "Read Report"})
	require.NoError(t, err)
	assert.Equal(t, "read report", created.Key)

	role, err := env.store.Roles().GetByID(ctx, superuser.ID)
	require.NoError(t, err)
	assert.True(t, role.HasPermission("read report"))

	_, err = permissions.Create(ctx, PermissionInput{Key: "read report"})
	requireFieldError(t, err, "key")
}

func TestPermissionCreateManyRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	seedSuperuserRole(t, env.store)
	permissions := NewPermissionService(env.store)

	_, err := permissions.CreateMany(context.Background(), []PermissionInput{{Key: "a"}, {Key: "A"}})
	requireFieldError(t, err, "keys.1")

	all, err := permissions.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRoleLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedSuperuserRole(t, env.store)
	roles := NewRoleService(env.store)
	permission, err := NewPermissionService(env.store).Create(ctx, PermissionInput{Key: "update post"})
	require.NoError(t, err)

	role, err := roles.Create(ctx, "Editor", nil)
	require.NoError(t, err)
	assert.Equal(t, "editor", role.Key)
	assert.Equal(t, "editor", role.Title())

	_, err = roles.Create(ctx, "editor", nil)
	requireFieldError(t, err, "key")

	name := "Editors"
	role, err = roles.Update(ctx, role.ID, "editor", &name)
	require.NoError(t, err)
	assert.Equal(t, "Editors", role.Title())

	role, attached, err := roles.TogglePermission(ctx, role.ID, permission.ID)
	require.NoError(t, err)
	assert.True(t, attached)
	assert.True(t, role.HasPermission("update post"))

	role, attached, err = roles.TogglePermission(ctx, role.ID, permission.ID)
	require.NoError(t, err)
	assert.False(t, attached)
	assert.False(t, role.HasPermission("update post"))

	_, _, err = roles.TogglePermission(ctx, role.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = roles.Delete(ctx, role.ID)
	require.NoError(t, err)
	_, err = roles.GetByID(ctx, role.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserServiceGrantsResolveThroughRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedSuperuserRole(t, env.store)
	users := NewUserService(env.store, env.hasher)

	permission, err := NewPermissionService(env.store).Create(ctx, PermissionInput{Key: "read user"})
	require.NoError(t, err)
	role, err := NewRoleService(env.store).Create(ctx, "auditor", nil)
	require.NoError(t, err)
	_, _, err = NewRoleService(env.store).TogglePermission(ctx, role.ID, permission.ID)
	require.NoError(t, err)

	user, err := users.Create(ctx, UserInput{
		Name:     "Dave",
		Email:    "dave@example.com",
		Username: "dave",
		Password: "password1",
		RoleIDs:  []uuid.UUID{role.ID, role.ID},
	})
	require.NoError(t, err)
	assert.True(t, user.Verified())
	assert.True(t, user.HasPermission("read user"))
	assert.True(t, user.Can("auditor"))
	assert.False(t, user.HasPermission("delete user"))

	user, attached, err := users.ToggleRole(ctx, user.ID, role.ID)
	require.NoError(t, err)
	assert.False(t, attached)
	assert.False(t, user.HasPermission("read user"))

	user, attached, err = users.TogglePermission(ctx, user.ID, permission.ID)
	require.NoError(t, err)
	assert.True(t, attached)
	assert.True(t, user.HasPermission("read user"))
}

func TestUserServiceRejectsUnknownRefsAndTakenFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "alice", true)
	users := NewUserService(env.store, env.hasher)

	_, err := users.Create(ctx, UserInput{Name: "x", Email: "x@example.com", Username: "x", Password: "password1", RoleIDs: []uuid.UUID{uuid.New()}})
	requireFieldError(t, err, "roles")

	_, err = users.Create(ctx, UserInput{Name: "x", Email: "alice@example.com", Username: "x", Password: "password1"})
	requireFieldError(t, err, "email")
}

func TestUserServiceDeleteIsSoft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.addUser(t, "alice", true)
	users := NewUserService(env.store, env.hasher)

	deleted, err := users.Delete(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, deleted.ID)

	_, err = users.GetByID(ctx, alice.ID)
	assert.True(t, IsNotFound(err))

	page, err := users.Paginate(ctx, store.PageQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Meta.Total)
}

func TestSuperuserRoleIsProtected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	superuser := seedSuperuserRole(t, env.store)
	roles := NewRoleService(env.store)
	permission, err := NewPermissionService(env.store).Create(ctx, PermissionInput{Key: "update role"})
	require.NoError(t, err)

	_, _, err = roles.TogglePermission(ctx, superuser.ID, permission.ID)
	require.ErrorIs(t, err, ErrProtectedRole)
	role, err := env.store.Roles().GetByID(ctx, superuser.ID)
	require.NoError(t, err)
	assert.True(t, role.HasPermission("update role"))

	_, err = roles.Update(ctx, superuser.ID, "admin", nil)
	require.ErrorIs(t, err, ErrProtectedRole)

	name := "Super User"
	role, err = roles.Update(ctx, superuser.ID, "SUPERUSER", &name)
	require.NoError(t, err)
	assert.Equal(t, types.SuperuserRoleKey, role.Key)

	_, err = roles.Delete(ctx, superuser.ID)
	require.ErrorIs(t, err, ErrProtectedRole)

	created, err := NewPermissionService(env.store).Create(ctx, PermissionInput{Key: "delete role"})
	require.NoError(t, err)
	role, err = env.store.Roles().GetByID(ctx, superuser.ID)
	require.NoError(t, err)
	assert.True(t, role.HasPermission(created.Key))
}
