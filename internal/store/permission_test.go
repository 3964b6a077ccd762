package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionCreateAttachesToSuperuser(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewPermissionRepository(conn)
	id := uuid.New()

	mock.ExpectQuery(`INSERT INTO permissions`).
		WithArgs(nil, "update translation", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))
	mock.ExpectExec(`(?s)INSERT INTO permission_role.*FROM roles WHERE key = \$2`).
		WithArgs(id, types.SuperuserRoleKey).
		WillReturnResult(sqlmock.NewResult(0, 1))

	permission, err := repo.Create(context.Background(), types.Permission{Key: "  Update Translation "})
	require.NoError(t, err)
	assert.Equal(t, id, permission.ID)
	assert.Equal(t, "update translation", permission.Key)
}

func TestPermissionCreateFailsWithoutSuperuserRole(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewPermissionRepository(conn)

	mock.ExpectQuery(`INSERT INTO permissions`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectExec(`INSERT INTO permission_role`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Create(context.Background(), types.Permission{Key: "read user"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPermissionGetByKeyNotFound(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewPermissionRepository(conn)

	mock.ExpectQuery(`FROM permissions p WHERE p.key = \$1`).
		WithArgs("read user").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "key", "created_at", "updated_at"}))

	_, err := repo.GetByKey(context.Background(), "Read User")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoleGetByKeyLoadsPermissions(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewRoleRepository(conn)
	roleID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM roles WHERE key = \$1`).
		WithArgs("superuser").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "key", "created_at", "updated_at"}).
			AddRow(roleID.String(), "Superuser", "superuser", now, now))
	mock.ExpectQuery(`JOIN permission_role pr`).
		WillReturnRows(sqlmock.NewRows([]string{"role_id", "id", "name", "key", "created_at", "updated_at"}).
			AddRow(roleID.String(), uuid.NewString(), nil, "read role", now, now).
			AddRow(roleID.String(), uuid.NewString(), nil, "update role", now, now))

	role, err := repo.GetByKey(context.Background(), "SuperUser")
	require.NoError(t, err)
	assert.Equal(t, "Superuser", role.Title())
	assert.True(t, role.HasPermission("update role"))
	assert.Len(t, role.Permissions, 2)
}
