package store

import (
	"context"
	"fmt"
	"time"

	"github.com/adminkit/apiserver/internal/db"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PermissionRepository handles persistence for permissions.
type PermissionRepository struct {
	db db.DBTX
}

func NewPermissionRepository(conn db.DBTX) *PermissionRepository {
	return &PermissionRepository{db: conn}
}

const permissionSelect = `SELECT p.id, p.name, p.key, p.created_at, p.updated_at FROM permissions p`

func (r *PermissionRepository) GetByID(ctx context.Context, id uuid.UUID) (types.Permission, error) {
	return r.getOne(ctx, permissionSelect+` WHERE p.id = $1`, id)
}

func (r *PermissionRepository) GetByKey(ctx context.Context, key string) (types.Permission, error) {
	return r.getOne(ctx, permissionSelect+` WHERE p.key = $1`, types.NormalizeKey(key))
}

func (r *PermissionRepository) getOne(ctx context.Context, query string, arg any) (types.Permission, error) {
	permissions, err := queryPermissions(ctx, r.db, query, arg)
	if err != nil {
		return types.Permission{}, err
	}
	if len(permissions) == 0 {
		return types.Permission{}, ErrNotFound
	}
	return permissions[0], nil
}

func (r *PermissionRepository) All(ctx context.Context) ([]types.Permission, error) {
	return queryPermissions(ctx, r.db, permissionSelect+` ORDER BY p.key`)
}

// KeyTaken reports whether key is used by a permission other than except.
func (r *PermissionRepository) KeyTaken(ctx context.Context, key string, except uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM permissions WHERE key = $1 AND id <> $2)`, types.NormalizeKey(key), except).Scan(&exists)
	return exists, err
}

// CountExisting returns how many of ids refer to existing permissions.
func (r *PermissionRepository) CountExisting(ctx context.Context, ids []uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM permissions WHERE id = ANY($1::uuid[])`, pq.Array(uuidStrings(ids))).Scan(&count)
	return count, err
}

// Create inserts the permission and grants it to the superuser role.
// Run it inside a transaction: a missing superuser role fails the whole write.
func (r *PermissionRepository) Create(ctx context.Context, permission types.Permission) (types.Permission, error) {
	now := time.Now()
	permission.Key = types.NormalizeKey(permission.Key)
	permission.CreatedAt = now
	permission.UpdatedAt = now

	const insertQuery = `
		INSERT INTO permissions (name, key, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, insertQuery, permission.Name, permission.Key, permission.CreatedAt, permission.UpdatedAt).Scan(&permission.ID); err != nil {
		return types.Permission{}, mapWriteError(err)
	}

	const attachQuery = `
		INSERT INTO permission_role (permission_id, role_id)
		SELECT $1, id FROM roles WHERE key = $2
		ON CONFLICT DO NOTHING`
	result, err := r.db.ExecContext(ctx, attachQuery, permission.ID, types.SuperuserRoleKey)
	if err != nil {
		return types.Permission{}, err
	}
	if err := expectAffected(result); err != nil {
		return types.Permission{}, fmt.Errorf("attach to %s role: %w", types.SuperuserRoleKey, err)
	}
	return permission, nil
}

func (r *PermissionRepository) Update(ctx context.Context, permission types.Permission) (types.Permission, error) {
	permission.Key = types.NormalizeKey(permission.Key)
	permission.UpdatedAt = time.Now()

	const query = `UPDATE permissions SET name = $1, key = $2, updated_at = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, permission.Name, permission.Key, permission.UpdatedAt, permission.ID)
	if err != nil {
		return types.Permission{}, mapWriteError(err)
	}
	if err := expectAffected(result); err != nil {
		return types.Permission{}, err
	}
	return permission, nil
}

func (r *PermissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func queryPermissions(ctx context.Context, conn db.DBTX, query string, args ...any) ([]types.Permission, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	permissions := []types.Permission{}
	for rows.Next() {
		var permission types.Permission
		if err := rows.Scan(&permission.ID, &permission.Name, &permission.Key, &permission.CreatedAt, &permission.UpdatedAt); err != nil {
			return nil, err
		}
		permissions = append(permissions, permission)
	}
	return permissions, rows.Err()
}
