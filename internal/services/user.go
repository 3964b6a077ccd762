package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
)

// UserInput is a validated superuser create/update request.
// Nil RoleIDs or PermissionIDs leave the corresponding grants untouched.
type UserInput struct {
	Name          string
	Email         string
	Username      string
	Password      string
	RoleIDs       []uuid.UUID
	PermissionIDs []uuid.UUID
}

// UserService implements superuser account administration.
type UserService struct {
	store  Store
	hasher *PasswordHasher
}

func NewUserService(st Store, hasher *PasswordHasher) *UserService {
	return &UserService{store: st, hasher: hasher}
}

func (s *UserService) Paginate(ctx context.Context, q store.PageQuery) (types.Page[types.User], error) {
	q = q.Normalize(userOrderKeys...)
	users, total, err := s.store.Users().Paginate(ctx, q)
	if err != nil {
		return types.Page[types.User]{}, err
	}
	return types.NewPage(users, total, q.Page, q.Limit), nil
}

var userOrderKeys = []string{"name", "email", "username"}

// GetByID returns the user with roles and permissions loaded.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	users := s.store.Users()
	user, err := users.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	if err := users.LoadGrants(ctx, &user); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// Create stores a new user and syncs its grants in one transaction.
// Accounts created by a superuser start verified.
func (s *UserService) Create(ctx context.Context, in UserInput) (types.User, error) {
	if err := s.validateRefs(ctx, in); err != nil {
		return types.User{}, err
	}
	if err := s.checkUnique(ctx, in, uuid.Nil); err != nil {
		return types.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return types.User{}, err
	}

	verifiedAt := time.Now()
	var user types.User
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		users := tx.Users()
		created, err := users.Create(ctx, types.User{
			Name:            in.Name,
			Email:           strings.ToLower(in.Email),
			Username:        in.Username,
			PasswordHash:    hash,
			EmailVerifiedAt: &verifiedAt,
		})
		if err != nil {
			return err
		}
		if err := syncGrants(ctx, users, created.ID, in); err != nil {
			return err
		}
		user = created
		return users.LoadGrants(ctx, &user)
	})
	if err != nil {
		return types.User{}, conflictToField(err)
	}
	return user, nil
}

// Update changes profile fields and grants in one transaction.
func (s *UserService) Update(ctx context.Context, id uuid.UUID, in UserInput) (types.User, error) {
	if err := s.validateRefs(ctx, in); err != nil {
		return types.User{}, err
	}

	current, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	if err := s.checkUnique(ctx, in, id); err != nil {
		return types.User{}, err
	}

	current.Name = in.Name
	current.Username = in.Username
	if email := strings.ToLower(in.Email); email != current.Email {
		current.Email = email
		current.EmailVerifiedAt = nil
	}

	var user types.User
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		users := tx.Users()
		updated, err := users.Update(ctx, current)
		if err != nil {
			return err
		}
		if err := syncGrants(ctx, users, id, in); err != nil {
			return err
		}
		user = updated
		return users.LoadGrants(ctx, &user)
	})
	if err != nil {
		return types.User{}, conflictToField(err)
	}
	return user, nil
}

// SetPassword overwrites the user's password without checking the old one.
func (s *UserService) SetPassword(ctx context.Context, id uuid.UUID, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.Users().UpdatePassword(ctx, id, hash)
	})
}

// Delete soft-deletes the user and returns it as it was.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) (types.User, error) {
	var user types.User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		found, err := tx.Users().GetByID(ctx, id)
		if err != nil {
			return err
		}
		user = found
		return tx.Users().Delete(ctx, id)
	})
	return user, err
}

// ToggleRole flips membership of roleID and returns the reloaded user.
func (s *UserService) ToggleRole(ctx context.Context, userID, roleID uuid.UUID) (types.User, bool, error) {
	return s.toggle(ctx, userID, func(ctx context.Context, tx Store) (bool, error) {
		if _, err := tx.Roles().GetByID(ctx, roleID); err != nil {
			return false, err
		}
		return tx.Users().ToggleRole(ctx, userID, roleID)
	})
}

// TogglePermission flips the direct grant of permissionID.
func (s *UserService) TogglePermission(ctx context.Context, userID, permissionID uuid.UUID) (types.User, bool, error) {
	return s.toggle(ctx, userID, func(ctx context.Context, tx Store) (bool, error) {
		if _, err := tx.Permissions().GetByID(ctx, permissionID); err != nil {
			return false, err
		}
		return tx.Users().TogglePermission(ctx, userID, permissionID)
	})
}

func (s *UserService) toggle(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx Store) (bool, error)) (types.User, bool, error) {
	var user types.User
	var attached bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		users := tx.Users()
		found, err := users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if attached, err = fn(ctx, tx); err != nil {
			return err
		}
		user = found
		return users.LoadGrants(ctx, &user)
	})
	return user, attached, err
}

func (s *UserService) checkUnique(ctx context.Context, in UserInput, except uuid.UUID) error {
	users := s.store.Users()
	for _, f := range [][2]string{{"email", in.Email}, {"username", in.Username}} {
		field, value := f[0], f[1]
		taken, err := users.Taken(ctx, field, value, except)
		if err != nil {
			return err
		}
		if taken {
			return fieldError(field, msgTaken)
		}
	}
	return nil
}

// validateRefs checks that every referenced role and permission exists.
func (s *UserService) validateRefs(ctx context.Context, in UserInput) error {
	if ids := dedupe(in.RoleIDs); len(ids) > 0 {
		n, err := s.store.Roles().CountExisting(ctx, ids)
		if err != nil {
			return err
		}
		if n != len(ids) {
			return fieldError("roles", "contains an unknown role")
		}
	}
	if ids := dedupe(in.PermissionIDs); len(ids) > 0 {
		n, err := s.store.Permissions().CountExisting(ctx, ids)
		if err != nil {
			return err
		}
		if n != len(ids) {
			return fieldError("permissions", "contains an unknown permission")
		}
	}
	return nil
}

func syncGrants(ctx context.Context, users UserRepository, id uuid.UUID, in UserInput) error {
	if in.PermissionIDs != nil {
		if err := users.SyncPermissions(ctx, id, dedupe(in.PermissionIDs)); err != nil {
			return err
		}
	}
	if in.RoleIDs != nil {
		if err := users.SyncRoles(ctx, id, dedupe(in.RoleIDs)); err != nil {
			return err
		}
	}
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// IsNotFound reports whether err means a referenced record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
