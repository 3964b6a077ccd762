package handlers

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/adminkit/apiserver/internal/services"
	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
)

type fakeAuthenticator struct {
	users map[string]types.User
	err   error
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, token string) (types.User, services.Claims, error) {
	if f.err != nil {
		return types.User{}, services.Claims{}, f.err
	}
	user, ok := f.users[token]
	if !ok {
		return types.User{}, services.Claims{}, services.ErrUnauthenticated
	}
	return user, services.Claims{TokenID: token, UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type fakeCsrf struct {
	mu     sync.Mutex
	valid  map[string]bool
	err    error
	issued int
	calls  int
}

func (f *fakeCsrf) Generate(_ context.Context, ip string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	token := "csrf-" + ip
	if f.valid == nil {
		f.valid = map[string]bool{}
	}
	f.valid[token] = true
	return token, nil
}

func (f *fakeCsrf) Validate(_ context.Context, token, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if !f.valid[token] {
		return false, nil
	}
	delete(f.valid, token)
	return true, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []types.IncomingRequest
}

func (f *fakeRecorder) Record(_ context.Context, req types.IncomingRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return nil
}

type observation struct {
	route, method string
	status        int
}

type fakeObserver struct {
	seen []observation
}

func (f *fakeObserver) Observe(route, method string, status int, _ time.Duration) {
	f.seen = append(f.seen, observation{route: route, method: method, status: status})
}

type fakeAuthService struct {
	session   services.Session
	user      types.User
	loginErr  error
	loggedOut []services.Claims
}

func (f *fakeAuthService) Login(_ context.Context, _, _ string) (services.Session, types.User, error) {
	if f.loginErr != nil {
		return services.Session{}, types.User{}, f.loginErr
	}
	return f.session, f.user, nil
}

func (f *fakeAuthService) Logout(_ context.Context, claims services.Claims) error {
	f.loggedOut = append(f.loggedOut, claims)
	return nil
}

func (f *fakeAuthService) Register(_ context.Context, in services.RegisterInput) (types.User, error) {
	return types.User{ID: uuid.New(), Name: in.Name, Email: in.Email, Username: in.Username}, nil
}

func (f *fakeAuthService) UpdateProfile(_ context.Context, user types.User, in services.ProfileInput) (types.User, error) {
	user.Name, user.Email, user.Username = in.Name, in.Email, in.Username
	return user, nil
}

func (f *fakeAuthService) UpdatePassword(context.Context, types.User, string, string) error {
	return nil
}

func (f *fakeAuthService) UpdatePhoto(_ context.Context, user types.User, r io.Reader, _ int64, filename, _ string) (types.User, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return types.User{}, err
	}
	path := "photos/" + filename
	user.ProfilePhotoPath = &path
	return user, nil
}

func (f *fakeAuthService) RemovePhoto(_ context.Context, user types.User) (types.User, error) {
	user.ProfilePhotoPath = nil
	return user, nil
}

type fakeVerification struct {
	verifyErr error
	resets    []string
}

func (f *fakeVerification) Verify(context.Context, string) (types.User, error) {
	return types.User{}, f.verifyErr
}

func (f *fakeVerification) RequestReset(_ context.Context, email, _ string) error {
	f.resets = append(f.resets, email)
	return nil
}

func (f *fakeVerification) ResetPassword(context.Context, string, string) error {
	return nil
}

type fakeRoles struct {
	roles map[uuid.UUID]types.Role
}

func (f *fakeRoles) Paginate(context.Context, store.PageQuery) (types.Page[types.Role], error) {
	return types.NewPage(f.list(), int64(len(f.roles)), 1, 10), nil
}

func (f *fakeRoles) All(context.Context) ([]types.Role, error) {
	return f.list(), nil
}

func (f *fakeRoles) list() []types.Role {
	roles := make([]types.Role, 0, len(f.roles))
	for _, role := range f.roles {
		roles = append(roles, role)
	}
	return roles
}

func (f *fakeRoles) GetByID(_ context.Context, id uuid.UUID) (types.Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return types.Role{}, store.ErrNotFound
	}
	return role, nil
}

func (f *fakeRoles) Create(_ context.Context, key string, name *string) (types.Role, error) {
	role := types.Role{ID: uuid.New(), Key: types.NormalizeKey(key), Name: name}
	f.roles[role.ID] = role
	return role, nil
}

func (f *fakeRoles) Update(_ context.Context, id uuid.UUID, key string, name *string) (types.Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return types.Role{}, store.ErrNotFound
	}
	role.Key, role.Name = types.NormalizeKey(key), name
	f.roles[id] = role
	return role, nil
}

func (f *fakeRoles) Delete(_ context.Context, id uuid.UUID) (types.Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return types.Role{}, store.ErrNotFound
	}
	if role.Key == types.SuperuserRoleKey {
		return types.Role{}, services.ErrProtectedRole
	}
	delete(f.roles, id)
	return role, nil
}

func (f *fakeRoles) TogglePermission(_ context.Context, roleID, _ uuid.UUID) (types.Role, bool, error) {
	role, ok := f.roles[roleID]
	if !ok {
		return types.Role{}, false, store.ErrNotFound
	}
	return role, true, nil
}
