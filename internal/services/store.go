package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/adminkit/apiserver/internal/db"
	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Taken(ctx context.Context, column, value string, except uuid.UUID) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	Paginate(ctx context.Context, q store.PageQuery) ([]types.User, int64, error)
	LoadGrants(ctx context.Context, user *types.User) error
	SyncRoles(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error
	SyncPermissions(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error
	ToggleRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error)
	TogglePermission(ctx context.Context, userID, permissionID uuid.UUID) (bool, error)
}

// RoleRepository defines persistence operations for roles.
type RoleRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.Role, error)
	GetByKey(ctx context.Context, key string) (types.Role, error)
	All(ctx context.Context) ([]types.Role, error)
	Paginate(ctx context.Context, q store.PageQuery) ([]types.Role, int64, error)
	KeyTaken(ctx context.Context, key string, except uuid.UUID) (bool, error)
	CountExisting(ctx context.Context, ids []uuid.UUID) (int, error)
	Create(ctx context.Context, role types.Role) (types.Role, error)
	Update(ctx context.Context, role types.Role) (types.Role, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AttachPermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	TogglePermission(ctx context.Context, roleID, permissionID uuid.UUID) (bool, error)
}

// PermissionRepository defines persistence operations for permissions.
type PermissionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.Permission, error)
	GetByKey(ctx context.Context, key string) (types.Permission, error)
	All(ctx context.Context) ([]types.Permission, error)
	KeyTaken(ctx context.Context, key string, except uuid.UUID) (bool, error)
	CountExisting(ctx context.Context, ids []uuid.UUID) (int, error)
	Create(ctx context.Context, permission types.Permission) (types.Permission, error)
	Update(ctx context.Context, permission types.Permission) (types.Permission, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CsrfTokenRepository defines persistence operations for CSRF tokens.
type CsrfTokenRepository interface {
	LockIP(ctx context.Context, ip string) error
	InvalidateLive(ctx context.Context, ip string, now time.Time) (int64, error)
	Create(ctx context.Context, token types.CsrfToken) (types.CsrfToken, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (types.CsrfToken, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// IncomingRequestRepository defines persistence operations for the request log.
type IncomingRequestRepository interface {
	Create(ctx context.Context, req types.IncomingRequest) (types.IncomingRequest, error)
	Averages(ctx context.Context) ([]types.RequestAverage, error)
}

// Store hands out repositories bound to one connection or transaction.
type Store interface {
	Users() UserRepository
	Roles() RoleRepository
	Permissions() PermissionRepository
	CsrfTokens() CsrfTokenRepository
	IncomingRequests() IncomingRequestRepository

	// WithTx runs fn with a Store bound to a single transaction.
	// Calls nested inside fn reuse that transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

type sqlStore struct {
	conn *sql.DB
	q    db.DBTX
}

// NewSQLStore returns the Postgres-backed Store.
func NewSQLStore(conn *sql.DB) Store {
	return sqlStore{conn: conn, q: conn}
}

func (s sqlStore) Users() UserRepository { return store.NewUserRepository(s.q) }
func (s sqlStore) Roles() RoleRepository { return store.NewRoleRepository(s.q) }
func (s sqlStore) Permissions() PermissionRepository { return store.NewPermissionRepository(s.q) }
func (s sqlStore) CsrfTokens() CsrfTokenRepository { return store.NewCsrfTokenRepository(s.q) }
func (s sqlStore) IncomingRequests() IncomingRequestRepository {
	return store.NewIncomingRequestRepository(s.q)
}

func (s sqlStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.conn == nil {
		return fn(ctx, s)
	}
	return db.WithTx(ctx, s.conn, nil, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, sqlStore{q: tx})
	})
}
