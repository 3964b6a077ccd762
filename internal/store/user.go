package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adminkit/apiserver/internal/db"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const userColumns = `u.id, u.name, u.email, u.username, u.password, u.email_verified_at, u.profile_photo_path, u.created_at, u.updated_at`

// UserRepository handles persistence for users and their role/permission grants.
type UserRepository struct {
	db          db.DBTX
	softDeletes SoftDeletes
}

func NewUserRepository(conn db.DBTX) *UserRepository {
	return &UserRepository{db: conn, softDeletes: defaultSoftDeletes}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.EmailVerifiedAt,
		&user.ProfilePhotoPath,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (r *UserRepository) getBy(ctx context.Context, predicate string, arg any) (types.User, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM users u
		WHERE %s AND %s`, userColumns, predicate, r.softDeletes.Where("u"))
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	return r.getBy(ctx, "u.id = $1", id)
}

// GetByUsername matches the username case-insensitively.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.getBy(ctx, "LOWER(u.username) = LOWER($1)", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.getBy(ctx, "LOWER(u.email) = LOWER($1)", email)
}

// Taken reports whether column value is used by a user other than except.
// Soft-deleted users still hold their unique values.
func (r *UserRepository) Taken(ctx context.Context, column, value string, except uuid.UUID) (bool, error) {
	if column != "email" && column != "username" {
		return false, fmt.Errorf("store: column %q is not unique", column)
	}
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(%s) = LOWER($1) AND id <> $2)`, column)
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, value, except).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (name, email, username, password, email_verified_at, profile_photo_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.EmailVerifiedAt,
		user.ProfilePhotoPath,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

// Update writes the profile columns. The password is changed through UpdatePassword.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	query := fmt.Sprintf(`
		UPDATE users
		SET name = $1,
			email = $2,
			username = $3,
			email_verified_at = $4,
			profile_photo_path = $5,
			updated_at = $6
		WHERE id = $7 AND %s`, r.softDeletes.Where(""))
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.Username,
		user.EmailVerifiedAt,
		user.ProfilePhotoPath,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, mapWriteError(err)
	}
	if err := expectAffected(result); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	query := fmt.Sprintf(`UPDATE users SET password = $1, updated_at = $2 WHERE id = $3 AND %s`, r.softDeletes.Where(""))
	result, err := r.db.ExecContext(ctx, query, hash, time.Now(), id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *UserRepository) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := fmt.Sprintf(`UPDATE users SET email_verified_at = $1, updated_at = $1 WHERE id = $2 AND %s`, r.softDeletes.Where(""))
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// Delete soft-deletes the user.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`UPDATE users SET deleted_at = $1 WHERE id = $2 AND %s`, r.softDeletes.Where(""))
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

var userOrderColumns = []string{"name", "email", "username"}

// Paginate searches name, email and username and loads each user's grants.
func (r *UserRepository) Paginate(ctx context.Context, q PageQuery) ([]types.User, int64, error) {
	q = q.Normalize(userOrderColumns...)
	where := fmt.Sprintf(`(u.name ILIKE $1 OR u.email ILIKE $1 OR u.username ILIKE $1) AND %s`, r.softDeletes.Where("u"))

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users u WHERE `+where, q.pattern()).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM users u
		WHERE %s
		ORDER BY u.%s %s
		OFFSET $2 LIMIT $3`, userColumns, where, q.OrderKey, q.OrderDir)
	rows, err := r.db.QueryContext(ctx, query, q.pattern(), q.Offset(), q.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]types.User, 0, q.Limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range users {
		if err := r.LoadGrants(ctx, &users[i]); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

// LoadGrants fills user.Roles (with their permissions) and user.Permissions.
func (r *UserRepository) LoadGrants(ctx context.Context, user *types.User) error {
	const rolesQuery = `
		SELECT r.id, r.name, r.key, r.created_at, r.updated_at
		FROM roles r
		JOIN role_user ru ON ru.role_id = r.id
		WHERE ru.user_id = $1
		ORDER BY r.key`
	roles, err := queryRoles(ctx, r.db, rolesQuery, user.ID)
	if err != nil {
		return err
	}
	if err := loadRolePermissions(ctx, r.db, roles); err != nil {
		return err
	}

	const permissionsQuery = `
		SELECT p.id, p.name, p.key, p.created_at, p.updated_at
		FROM permissions p
		JOIN permission_user pu ON pu.permission_id = p.id
		WHERE pu.user_id = $1
		ORDER BY p.key`
	permissions, err := queryPermissions(ctx, r.db, permissionsQuery, user.ID)
	if err != nil {
		return err
	}

	user.Roles = roles
	user.Permissions = permissions
	return nil
}

// SyncRoles replaces the user's roles with ids.
func (r *UserRepository) SyncRoles(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	return syncPivot(ctx, r.db, "role_user", "user_id", "role_id", userID, ids)
}

// SyncPermissions replaces the user's direct permissions with ids.
func (r *UserRepository) SyncPermissions(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	return syncPivot(ctx, r.db, "permission_user", "user_id", "permission_id", userID, ids)
}

// ToggleRole attaches the role when absent and detaches it otherwise.
// It reports whether the role is attached afterwards.
func (r *UserRepository) ToggleRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	return togglePivot(ctx, r.db, "role_user", "user_id", "role_id", userID, roleID)
}

// TogglePermission attaches the permission when absent and detaches it otherwise.
func (r *UserRepository) TogglePermission(ctx context.Context, userID, permissionID uuid.UUID) (bool, error) {
	return togglePivot(ctx, r.db, "permission_user", "user_id", "permission_id", userID, permissionID)
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func syncPivot(ctx context.Context, conn db.DBTX, table, ownerColumn, relatedColumn string, ownerID uuid.UUID, ids []uuid.UUID) error {
	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND NOT (%s = ANY($2::uuid[]))`, table, ownerColumn, relatedColumn)
	if _, err := conn.ExecContext(ctx, deleteQuery, ownerID, pq.Array(uuidStrings(ids))); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s)
		SELECT $1, UNNEST($2::uuid[])
		ON CONFLICT DO NOTHING`, table, ownerColumn, relatedColumn)
	_, err := conn.ExecContext(ctx, insertQuery, ownerID, pq.Array(uuidStrings(ids)))
	return err
}

func togglePivot(ctx context.Context, conn db.DBTX, table, ownerColumn, relatedColumn string, ownerID, relatedID uuid.UUID) (bool, error) {
	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`, table, ownerColumn, relatedColumn)
	result, err := conn.ExecContext(ctx, deleteQuery, ownerID, relatedID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return false, nil
	}

	insertQuery := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2)`, table, ownerColumn, relatedColumn)
	if _, err := conn.ExecContext(ctx, insertQuery, ownerID, relatedID); err != nil {
		return false, mapWriteError(err)
	}
	return true, nil
}
