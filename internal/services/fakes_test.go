package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adminkit/apiserver/internal/mail"
	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
)

// memStore is an in-memory Store. Transactions do not roll back.
type memStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]types.User
	roles       map[uuid.UUID]types.Role
	permissions map[uuid.UUID]types.Permission
	rolePerms   map[uuid.UUID]map[uuid.UUID]bool
	userRoles   map[uuid.UUID]map[uuid.UUID]bool
	userPerms   map[uuid.UUID]map[uuid.UUID]bool
	csrf        map[uuid.UUID]types.CsrfToken
	requests    []types.IncomingRequest
	locks       []string
	// commitErr fails every transaction after its function has run.
	commitErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[uuid.UUID]types.User{},
		roles:       map[uuid.UUID]types.Role{},
		permissions: map[uuid.UUID]types.Permission{},
		rolePerms:   map[uuid.UUID]map[uuid.UUID]bool{},
		userRoles:   map[uuid.UUID]map[uuid.UUID]bool{},
		userPerms:   map[uuid.UUID]map[uuid.UUID]bool{},
		csrf:        map[uuid.UUID]types.CsrfToken{},
	}
}

func (m *memStore) Users() UserRepository                       { return memUsers{m} }
func (m *memStore) Roles() RoleRepository                       { return memRoles{m} }
func (m *memStore) Permissions() PermissionRepository           { return memPermissions{m} }
func (m *memStore) CsrfTokens() CsrfTokenRepository             { return memCsrf{m} }
func (m *memStore) IncomingRequests() IncomingRequestRepository { return memRequests{m} }

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if err := fn(ctx, m); err != nil {
		return err
	}
	return m.commitErr
}

func toggle(set map[uuid.UUID]map[uuid.UUID]bool, owner, id uuid.UUID) bool {
	if set[owner] == nil {
		set[owner] = map[uuid.UUID]bool{}
	}
	if set[owner][id] {
		delete(set[owner], id)
		return false
	}
	set[owner][id] = true
	return true
}

type memUsers struct{ m *memStore }

func (r memUsers) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	user, ok := r.m.users[id]
	if !ok || user.DeletedAt != nil {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r memUsers) find(match func(types.User) bool) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, user := range r.m.users {
		if user.DeletedAt == nil && match(user) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r memUsers) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.find(func(u types.User) bool { return strings.EqualFold(u.Username, username) })
}

func (r memUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.find(func(u types.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r memUsers) Taken(ctx context.Context, column, value string, except uuid.UUID) (bool, error) {
	_, err := r.find(func(u types.User) bool {
		if u.ID == except {
			return false
		}
		if column == "email" {
			return strings.EqualFold(u.Email, value)
		}
		return strings.EqualFold(u.Username, value)
	})
	return err == nil, nil
}

func (r memUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.m.users[user.ID] = user
	return user, nil
}

func (r memUsers) Update(ctx context.Context, user types.User) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	current, ok := r.m.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.PasswordHash = current.PasswordHash
	user.UpdatedAt = time.Now()
	r.m.users[user.ID] = user
	return user, nil
}

func (r memUsers) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	user, ok := r.m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = hash
	r.m.users[id] = user
	return nil
}

func (r memUsers) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	user, ok := r.m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.EmailVerifiedAt = &at
	r.m.users[id] = user
	return nil
}

func (r memUsers) Delete(ctx context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	user, ok := r.m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	user.DeletedAt = &now
	r.m.users[id] = user
	return nil
}

func (r memUsers) Paginate(ctx context.Context, q store.PageQuery) ([]types.User, int64, error) {
	r.m.mu.Lock()
	var users []types.User
	for _, user := range r.m.users {
		if user.DeletedAt == nil {
			users = append(users, user)
		}
	}
	r.m.mu.Unlock()
	for i := range users {
		if err := r.LoadGrants(ctx, &users[i]); err != nil {
			return nil, 0, err
		}
	}
	return users, int64(len(users)), nil
}

func (r memUsers) LoadGrants(ctx context.Context, user *types.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	user.Roles = []types.Role{}
	user.Permissions = []types.Permission{}
	for roleID := range r.m.userRoles[user.ID] {
		user.Roles = append(user.Roles, r.m.roleWithPermissions(roleID))
	}
	for permissionID := range r.m.userPerms[user.ID] {
		user.Permissions = append(user.Permissions, r.m.permissions[permissionID])
	}
	return nil
}

func (m *memStore) roleWithPermissions(id uuid.UUID) types.Role {
	role := m.roles[id]
	role.Permissions = []types.Permission{}
	for permissionID := range m.rolePerms[id] {
		role.Permissions = append(role.Permissions, m.permissions[permissionID])
	}
	return role
}

func (r memUsers) SyncRoles(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.userRoles[userID] = map[uuid.UUID]bool{}
	for _, id := range ids {
		r.m.userRoles[userID][id] = true
	}
	return nil
}

func (r memUsers) SyncPermissions(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.userPerms[userID] = map[uuid.UUID]bool{}
	for _, id := range ids {
		r.m.userPerms[userID][id] = true
	}
	return nil
}

func (r memUsers) ToggleRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return toggle(r.m.userRoles, userID, roleID), nil
}

func (r memUsers) TogglePermission(ctx context.Context, userID, permissionID uuid.UUID) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return toggle(r.m.userPerms, userID, permissionID), nil
}

type memRoles struct{ m *memStore }

func (r memRoles) GetByID(ctx context.Context, id uuid.UUID) (types.Role, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.roles[id]; !ok {
		return types.Role{}, store.ErrNotFound
	}
	return r.m.roleWithPermissions(id), nil
}

func (r memRoles) GetByKey(ctx context.Context, key string) (types.Role, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, role := range r.m.roles {
		if role.Key == types.NormalizeKey(key) {
			return r.m.roleWithPermissions(id), nil
		}
	}
	return types.Role{}, store.ErrNotFound
}

func (r memRoles) All(ctx context.Context) ([]types.Role, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	roles := []types.Role{}
	for id := range r.m.roles {
		roles = append(roles, r.m.roleWithPermissions(id))
	}
	return roles, nil
}

func (r memRoles) Paginate(ctx context.Context, q store.PageQuery) ([]types.Role, int64, error) {
	roles, _ := r.All(ctx)
	return roles, int64(len(roles)), nil
}

func (r memRoles) KeyTaken(ctx context.Context, key string, except uuid.UUID) (bool, error) {
	role, err := r.GetByKey(ctx, key)
	return err == nil && role.ID != except, nil
}

func (r memRoles) CountExisting(ctx context.Context, ids []uuid.UUID) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := r.m.roles[id]; ok {
			n++
		}
	}
	return n, nil
}

func (r memRoles) Create(ctx context.Context, role types.Role) (types.Role, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	role.ID = uuid.New()
	role.Key = types.NormalizeKey(role.Key)
	role.Permissions = []types.Permission{}
	r.m.roles[role.ID] = role
	return role, nil
}

func (r memRoles) Update(ctx context.Context, role types.Role) (types.Role, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	role.Key = types.NormalizeKey(role.Key)
	r.m.roles[role.ID] = role
	return role, nil
}

func (r memRoles) Delete(ctx context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.roles, id)
	delete(r.m.rolePerms, id)
	for _, set := range r.m.userRoles {
		delete(set, id)
	}
	return nil
}

func (r memRoles) AttachPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.rolePerms[roleID] == nil {
		r.m.rolePerms[roleID] = map[uuid.UUID]bool{}
	}
	r.m.rolePerms[roleID][permissionID] = true
	return nil
}

func (r memRoles) TogglePermission(ctx context.Context, roleID, permissionID uuid.UUID) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return toggle(r.m.rolePerms, roleID, permissionID), nil
}

type memPermissions struct{ m *memStore }

func (r memPermissions) GetByID(ctx context.Context, id uuid.UUID) (types.Permission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	permission, ok := r.m.permissions[id]
	if !ok {
		return types.Permission{}, store.ErrNotFound
	}
	return permission, nil
}

func (r memPermissions) GetByKey(ctx context.Context, key string) (types.Permission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, permission := range r.m.permissions {
		if permission.Key == types.NormalizeKey(key) {
			return permission, nil
		}
	}
	return types.Permission{}, store.ErrNotFound
}

func (r memPermissions) All(ctx context.Context) ([]types.Permission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	permissions := []types.Permission{}
	for _, permission := range r.m.permissions {
		permissions = append(permissions, permission)
	}
	return permissions, nil
}

func (r memPermissions) KeyTaken(ctx context.Context, key string, except uuid.UUID) (bool, error) {
	permission, err := r.GetByKey(ctx, key)
	return err == nil && permission.ID != except, nil
}

func (r memPermissions) CountExisting(ctx context.Context, ids []uuid.UUID) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := r.m.permissions[id]; ok {
			n++
		}
	}
	return n, nil
}

func (r memPermissions) Create(ctx context.Context, permission types.Permission) (types.Permission, error) {
	superuser, err := memRoles(r).GetByKey(ctx, types.SuperuserRoleKey)
	if err != nil {
		return types.Permission{}, fmt.Errorf("attach to superuser role: %w", store.ErrNotFound)
	}
	r.m.mu.Lock()
	permission.ID = uuid.New()
	permission.Key = types.NormalizeKey(permission.Key)
	r.m.permissions[permission.ID] = permission
	r.m.mu.Unlock()
	return permission, memRoles(r).AttachPermission(ctx, superuser.ID, permission.ID)
}

func (r memPermissions) Update(ctx context.Context, permission types.Permission) (types.Permission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	permission.Key = types.NormalizeKey(permission.Key)
	r.m.permissions[permission.ID] = permission
	return permission, nil
}

func (r memPermissions) Delete(ctx context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.permissions, id)
	for _, set := range r.m.rolePerms {
		delete(set, id)
	}
	for _, set := range r.m.userPerms {
		delete(set, id)
	}
	return nil
}

type memCsrf struct{ m *memStore }

func (r memCsrf) LockIP(ctx context.Context, ip string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.locks = append(r.m.locks, ip)
	return nil
}

func (r memCsrf) InvalidateLive(ctx context.Context, ip string, now time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, token := range r.m.csrf {
		if token.IP == ip && token.Live(now) {
			token.Used = true
			r.m.csrf[id] = token
			n++
		}
	}
	return n, nil
}

func (r memCsrf) Create(ctx context.Context, token types.CsrfToken) (types.CsrfToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	token.ID = uuid.New()
	r.m.csrf[token.ID] = token
	return token, nil
}

func (r memCsrf) GetForUpdate(ctx context.Context, id uuid.UUID) (types.CsrfToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	token, ok := r.m.csrf[id]
	if !ok {
		return types.CsrfToken{}, store.ErrNotFound
	}
	return token, nil
}

func (r memCsrf) MarkUsed(ctx context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	token := r.m.csrf[id]
	token.Used = true
	r.m.csrf[id] = token
	return nil
}

func (r memCsrf) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, token := range r.m.csrf {
		if token.ExpiredAt.Before(cutoff) {
			delete(r.m.csrf, id)
			n++
		}
	}
	return n, nil
}

type memRequests struct{ m *memStore }

func (r memRequests) Create(ctx context.Context, req types.IncomingRequest) (types.IncomingRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	req.ID = int64(len(r.m.requests) + 1)
	r.m.requests = append(r.m.requests, req)
	return req, nil
}

func (r memRequests) Averages(ctx context.Context) ([]types.RequestAverage, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []types.RequestAverage
	for _, req := range r.m.requests {
		out = append(out, types.RequestAverage{Name: req.Name, Method: req.Method, Average: req.TimeMS, Min: req.TimeMS, Max: req.TimeMS, Count: 1})
	}
	return out, nil
}

// memMailer records sent messages.
type memMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *memMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *memMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// memEvents records emitted event names.
type memEvents struct {
	mu    sync.Mutex
	names []string
}

func (e *memEvents) Emit(ctx context.Context, name string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.names = append(e.names, name)
	return nil
}

// memRevocations is a map-backed RevocationStore.
type memRevocations struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

func (r *memRevocations) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids == nil {
		r.ids = map[string]time.Time{}
	}
	r.ids[jti] = expiresAt
	return nil
}

func (r *memRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[jti]
	return ok, nil
}
