package store

import (
	"context"
	"time"

	"github.com/adminkit/apiserver/internal/db"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// RoleRepository handles persistence for roles.
// Every role it returns has its permissions loaded.
type RoleRepository struct {
	db db.DBTX
}

func NewRoleRepository(conn db.DBTX) *RoleRepository {
	return &RoleRepository{db: conn}
}

func (r *RoleRepository) GetByID(ctx context.Context, id uuid.UUID) (types.Role, error) {
	return r.getOne(ctx, `SELECT id, name, key, created_at, updated_at FROM roles WHERE id = $1`, id)
}

func (r *RoleRepository) GetByKey(ctx context.Context, key string) (types.Role, error) {
	return r.getOne(ctx, `SELECT id, name, key, created_at, updated_at FROM roles WHERE key = $1`, types.NormalizeKey(key))
}

func (r *RoleRepository) getOne(ctx context.Context, query string, arg any) (types.Role, error) {
	roles, err := queryRoles(ctx, r.db, query, arg)
	if err != nil {
		return types.Role{}, err
	}
	if len(roles) == 0 {
		return types.Role{}, ErrNotFound
	}
	if err := loadRolePermissions(ctx, r.db, roles); err != nil {
		return types.Role{}, err
	}
	return roles[0], nil
}

// All returns every role ordered by key, without permissions.
func (r *RoleRepository) All(ctx context.Context) ([]types.Role, error) {
	return queryRoles(ctx, r.db, `SELECT id, name, key, created_at, updated_at FROM roles ORDER BY key`)
}

var roleOrderColumns = []string{"name", "key"}

func (r *RoleRepository) Paginate(ctx context.Context, q PageQuery) ([]types.Role, int64, error) {
	q = q.Normalize(roleOrderColumns...)
	const where = `(name ILIKE $1 OR key ILIKE $1)`

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM roles WHERE `+where, q.pattern()).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, name, key, created_at, updated_at
		FROM roles
		WHERE ` + where + `
		ORDER BY ` + q.OrderKey + ` ` + q.OrderDir + ` NULLS LAST
		OFFSET $2 LIMIT $3`
	roles, err := queryRoles(ctx, r.db, query, q.pattern(), q.Offset(), q.Limit)
	if err != nil {
		return nil, 0, err
	}
	if err := loadRolePermissions(ctx, r.db, roles); err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

// KeyTaken reports whether key is used by a role other than except.
func (r *RoleRepository) KeyTaken(ctx context.Context, key string, except uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE key = $1 AND id <> $2)`, types.NormalizeKey(key), except).Scan(&exists)
	return exists, err
}

// CountExisting returns how many of ids refer to existing roles.
func (r *RoleRepository) CountExisting(ctx context.Context, ids []uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM roles WHERE id = ANY($1::uuid[])`, pq.Array(uuidStrings(ids))).Scan(&count)
	return count, err
}

func (r *RoleRepository) Create(ctx context.Context, role types.Role) (types.Role, error) {
	now := time.Now()
	role.Key = types.NormalizeKey(role.Key)
	role.CreatedAt = now
	role.UpdatedAt = now

	const query = `
		INSERT INTO roles (name, key, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, role.Name, role.Key, role.CreatedAt, role.UpdatedAt).Scan(&role.ID); err != nil {
		return types.Role{}, mapWriteError(err)
	}
	if role.Permissions == nil {
		role.Permissions = []types.Permission{}
	}
	return role, nil
}

func (r *RoleRepository) Update(ctx context.Context, role types.Role) (types.Role, error) {
	role.Key = types.NormalizeKey(role.Key)
	role.UpdatedAt = time.Now()

	const query = `UPDATE roles SET name = $1, key = $2, updated_at = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, role.Name, role.Key, role.UpdatedAt, role.ID)
	if err != nil {
		return types.Role{}, mapWriteError(err)
	}
	if err := expectAffected(result); err != nil {
		return types.Role{}, err
	}
	return role, nil
}

func (r *RoleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// AttachPermission grants permissionID to roleID; attaching twice is a no-op.
func (r *RoleRepository) AttachPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	const query = `
		INSERT INTO permission_role (permission_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, permissionID, roleID)
	return err
}

// TogglePermission attaches the permission when absent and detaches it otherwise.
func (r *RoleRepository) TogglePermission(ctx context.Context, roleID, permissionID uuid.UUID) (bool, error) {
	return togglePivot(ctx, r.db, "permission_role", "role_id", "permission_id", roleID, permissionID)
}

func queryRoles(ctx context.Context, conn db.DBTX, query string, args ...any) ([]types.Role, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []types.Role{}
	for rows.Next() {
		var role types.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Key, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// loadRolePermissions fills Permissions of every role with one query.
func loadRolePermissions(ctx context.Context, conn db.DBTX, roles []types.Role) error {
	if len(roles) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(roles))
	index := make(map[uuid.UUID]int, len(roles))
	for i := range roles {
		roles[i].Permissions = []types.Permission{}
		ids = append(ids, roles[i].ID)
		index[roles[i].ID] = i
	}

	const query = `
		SELECT pr.role_id, p.id, p.name, p.key, p.created_at, p.updated_at
		FROM permissions p
		JOIN permission_role pr ON pr.permission_id = p.id
		WHERE pr.role_id = ANY($1::uuid[])
		ORDER BY p.key`
	rows, err := conn.QueryContext(ctx, query, pq.Array(uuidStrings(ids)))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var roleID uuid.UUID
		var permission types.Permission
		if err := rows.Scan(&roleID, &permission.ID, &permission.Name, &permission.Key, &permission.CreatedAt, &permission.UpdatedAt); err != nil {
			return err
		}
		if i, ok := index[roleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, permission)
		}
	}
	return rows.Err()
}
