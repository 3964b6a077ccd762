package services

import (
	"context"

	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
)

// RoleService implements role administration.
type RoleService struct {
	store Store
}

func NewRoleService(st Store) *RoleService {
	return &RoleService{store: st}
}

var roleOrderKeys = []string{"name", "key"}

func (s *RoleService) Paginate(ctx context.Context, q store.PageQuery) (types.Page[types.Role], error) {
	q = q.Normalize(roleOrderKeys...)
	roles, total, err := s.store.Roles().Paginate(ctx, q)
	if err != nil {
		return types.Page[types.Role]{}, err
	}
	return types.NewPage(roles, total, q.Page, q.Limit), nil
}

func (s *RoleService) All(ctx context.Context) ([]types.Role, error) {
	return s.store.Roles().All(ctx)
}

func (s *RoleService) GetByID(ctx context.Context, id uuid.UUID) (types.Role, error) {
	return s.store.Roles().GetByID(ctx, id)
}

func (s *RoleService) Create(ctx context.Context, key string, name *string) (types.Role, error) {
	if err := s.checkKey(ctx, key, uuid.Nil); err != nil {
		return types.Role{}, err
	}
	var role types.Role
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		created, err := tx.Roles().Create(ctx, types.Role{Key: key, Name: name})
		role = created
		return err
	})
	if err != nil {
		return types.Role{}, keyConflict(err)
	}
	return role, nil
}

// Update changes the key and, when name is non-nil, the display name.
func (s *RoleService) Update(ctx context.Context, id uuid.UUID, key string, name *string) (types.Role, error) {
	var role types.Role
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		roles := tx.Roles()
		current, err := roles.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Key == types.SuperuserRoleKey && types.NormalizeKey(key) != current.Key {
			return ErrProtectedRole
		}
		if err := s.checkKey(ctx, key, id); err != nil {
			return err
		}
		current.Key = key
		if name != nil {
			current.Name = name
		}
		role, err = roles.Update(ctx, current)
		return err
	})
	if err != nil {
		return types.Role{}, keyConflict(err)
	}
	return role, nil
}

// Delete removes the role. Memberships and grants cascade. The superuser
// role is never removed.
func (s *RoleService) Delete(ctx context.Context, id uuid.UUID) (types.Role, error) {
	var role types.Role
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		found, err := tx.Roles().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if found.Key == types.SuperuserRoleKey {
			return ErrProtectedRole
		}
		role = found
		return tx.Roles().Delete(ctx, id)
	})
	return role, err
}

// TogglePermission flips the grant of permissionID on the role. The
// superuser role holds every permission, so detaching from it is refused.
func (s *RoleService) TogglePermission(ctx context.Context, roleID, permissionID uuid.UUID) (types.Role, bool, error) {
	var role types.Role
	var attached bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		roles := tx.Roles()
		current, err := roles.GetByID(ctx, roleID)
		if err != nil {
			return err
		}
		permission, err := tx.Permissions().GetByID(ctx, permissionID)
		if err != nil {
			return err
		}
		if current.Key == types.SuperuserRoleKey && current.HasPermission(permission.Key) {
			return ErrProtectedRole
		}
		if attached, err = roles.TogglePermission(ctx, roleID, permissionID); err != nil {
			return err
		}
		role, err = roles.GetByID(ctx, roleID)
		return err
	})
	return role, attached, err
}

func (s *RoleService) checkKey(ctx context.Context, key string, except uuid.UUID) error {
	taken, err := s.store.Roles().KeyTaken(ctx, key, except)
	if err != nil {
		return err
	}
	if taken {
		return fieldError("key", msgTaken)
	}
	return nil
}

func keyConflict(err error) error {
	if IsConflict(err) {
		return fieldError("key", msgTaken)
	}
	return err
}
