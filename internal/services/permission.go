package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

// PermissionInput is one permission to create or update.
type PermissionInput struct {
	Key  string
	Name *string
}

// PermissionService implements permission administration. Every permission
// it creates is granted to the superuser role in the same transaction.
type PermissionService struct {
	store Store
}

func NewPermissionService(st Store) *PermissionService {
	return &PermissionService{store: st}
}

func (s *PermissionService) All(ctx context.Context) ([]types.Permission, error) {
	return s.store.Permissions().All(ctx)
}

func (s *PermissionService) GetByID(ctx context.Context, id uuid.UUID) (types.Permission, error) {
	return s.store.Permissions().GetByID(ctx, id)
}

func (s *PermissionService) Create(ctx context.Context, in PermissionInput) (types.Permission, error) {
	created, err := s.CreateMany(ctx, []PermissionInput{in})
	if err != nil {
		return types.Permission{}, err
	}
	return created[0], nil
}

// CreateMany creates all permissions or none.
func (s *PermissionService) CreateMany(ctx context.Context, in []PermissionInput) ([]types.Permission, error) {
	errs := validation.Errors{}
	seen := map[string]bool{}
	for i, p := range in {
		key := types.NormalizeKey(p.Key)
		field := fmt.Sprintf("keys.%d", i)
		if len(in) == 1 {
			field = "key"
		}
		if seen[key] {
			errs[field] = errors.New("is duplicated")
			continue
		}
		seen[key] = true
		taken, err := s.store.Permissions().KeyTaken(ctx, key, uuid.Nil)
		if err != nil {
			return nil, err
		}
		if taken {
			errs[field] = errors.New(msgTaken)
		}
	}
	if err := errs.Filter(); err != nil {
		return nil, err
	}

	created := make([]types.Permission, 0, len(in))
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		for _, p := range in {
			permission, err := tx.Permissions().Create(ctx, types.Permission{Key: p.Key, Name: p.Name})
			if err != nil {
				return err
			}
			created = append(created, permission)
		}
		return nil
	})
	if err != nil {
		if IsConflict(err) {
			return nil, fieldError("key", msgTaken)
		}
		return nil, err
	}
	return created, nil
}

func (s *PermissionService) Update(ctx context.Context, id uuid.UUID, in PermissionInput) (types.Permission, error) {
	var permission types.Permission
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		permissions := tx.Permissions()
		current, err := permissions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		taken, err := permissions.KeyTaken(ctx, in.Key, id)
		if err != nil {
			return err
		}
		if taken {
			return fieldError("key", msgTaken)
		}
		current.Key = in.Key
		if in.Name != nil {
			current.Name = in.Name
		}
		permission, err = permissions.Update(ctx, current)
		return err
	})
	if err != nil {
		return types.Permission{}, keyConflict(err)
	}
	return permission, nil
}

func (s *PermissionService) Delete(ctx context.Context, id uuid.UUID) (types.Permission, error) {
	var permission types.Permission
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		found, err := tx.Permissions().GetByID(ctx, id)
		if err != nil {
			return err
		}
		permission = found
		return tx.Permissions().Delete(ctx, id)
	})
	return permission, err
}

// IsConflict reports whether err is a unique-constraint violation.
func IsConflict(err error) bool {
	return errors.Is(err, store.ErrConflict)
}
