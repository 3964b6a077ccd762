package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
)

// DeveloperRoleKey is the seeded role for maintainers below superuser.
const DeveloperRoleKey = "developer"

var (
	seedResources = []string{"permission", "role", "user"}
	seedAbilities = []string{"create", "read", "update", "delete"}
	seedExtra     = []string{"configure permission key", "configure role key", "update translation"}
)

type seedUser struct {
	name, email, username, role string
}

var seedUsers = []seedUser{
	{name: "superuser", email: "superuser@local.app", username: "su", role: types.SuperuserRoleKey},
	{name: "dev", email: "dev@local.app", username: "dev", role: DeveloperRoleKey},
}

// Seeder creates the initial roles, users and permissions. Running it
// again only fills in what is missing.
type Seeder struct {
	store    Store
	hasher   *PasswordHasher
	logger   *slog.Logger
	password string
}

func NewSeeder(st Store, hasher *PasswordHasher, logger *slog.Logger, password string) *Seeder {
	return &Seeder{store: st, hasher: hasher, logger: logger, password: password}
}

func (s *Seeder) Run(ctx context.Context) error {
	hash, err := s.hasher.Hash(s.password)
	if err != nil {
		return err
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		roles := map[string]types.Role{}
		for _, key := range []string{types.SuperuserRoleKey, DeveloperRoleKey} {
			role, err := s.ensureRole(ctx, tx, key)
			if err != nil {
				return err
			}
			roles[key] = role
		}

		for _, u := range seedUsers {
			user, err := s.ensureUser(ctx, tx, u, hash)
			if err != nil {
				return err
			}
			if err := tx.Users().SyncRoles(ctx, user.ID, []uuid.UUID{roles[u.role].ID}); err != nil {
				return fmt.Errorf("assign %s: %w", u.role, err)
			}
		}

		var keys []string
		for _, resource := range seedResources {
			for _, ability := range seedAbilities {
				keys = append(keys, ability+" "+resource)
			}
		}
		keys = append(keys, seedExtra...)

		developer := roles[DeveloperRoleKey]
		for _, key := range keys {
			permission, err := s.ensurePermission(ctx, tx, key)
			if err != nil {
				return err
			}
			if isUserPermission(key) {
				continue
			}
			if err := tx.Roles().AttachPermission(ctx, developer.ID, permission.ID); err != nil {
				return fmt.Errorf("grant %q to developer: %w", key, err)
			}
		}
		return nil
	})
}

func (s *Seeder) ensureRole(ctx context.Context, tx Store, key string) (types.Role, error) {
	role, err := tx.Roles().GetByKey(ctx, key)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.Role{}, err
	}
	s.logger.Info("seed role", slog.String("key", key))
	return tx.Roles().Create(ctx, types.Role{Key: key})
}

func (s *Seeder) ensureUser(ctx context.Context, tx Store, u seedUser, hash string) (types.User, error) {
	user, err := tx.Users().GetByUsername(ctx, u.username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}
	s.logger.Info("seed user", slog.String("username", u.username))
	now := time.Now()
	return tx.Users().Create(ctx, types.User{
		Name:            u.name,
		Email:           u.email,
		Username:        u.username,
		PasswordHash:    hash,
		EmailVerifiedAt: &now,
	})
}

func (s *Seeder) ensurePermission(ctx context.Context, tx Store, key string) (types.Permission, error) {
	permission, err := tx.Permissions().GetByKey(ctx, key)
	if err == nil {
		return permission, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.Permission{}, err
	}
	s.logger.Info("seed permission", slog.String("key", key))
	return tx.Permissions().Create(ctx, types.Permission{Key: key})
}

// isUserPermission reports the user CRUD permissions, which stay superuser-only.
func isUserPermission(key string) bool {
	for _, ability := range seedAbilities {
		if key == ability+" user" {
			return true
		}
	}
	return false
}
