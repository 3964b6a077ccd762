package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/adminkit/apiserver/internal/events"
	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

// ObjectStore is the object storage subset used for profile photos.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Username string
	Password string
	// Next is the host verification links point at.
	Next string
}

// ProfileInput is a validated profile update.
type ProfileInput struct {
	Name     string
	Email    string
	Username string
	Next     string
}

// AuthService implements login, logout, registration and profile self-service.
type AuthService struct {
	store           Store
	sessions        *SessionService
	verification    *VerificationService
	hasher          *PasswordHasher
	photos          ObjectStore
	events          Emitter
	logger          *slog.Logger
	requireVerified bool
}

// AuthOptions groups the optional collaborators of AuthService.
type AuthOptions struct {
	Photos          ObjectStore
	Events          Emitter
	RequireVerified bool
}

func NewAuthService(
	st Store,
	sessions *SessionService,
	verification *VerificationService,
	hasher *PasswordHasher,
	logger *slog.Logger,
	opts AuthOptions,
) *AuthService {
	return &AuthService{
		store:           st,
		sessions:        sessions,
		verification:    verification,
		hasher:          hasher,
		photos:          opts.Photos,
		events:          opts.Events,
		logger:          logger,
		requireVerified: opts.RequireVerified,
	}
}

const (
	msgWrongPassword = "wrong password"
	msgTaken         = "has already been taken"
)

// Login checks credentials and issues a session. Unknown usernames and
// wrong passwords fail identically on the password field.
func (s *AuthService) Login(ctx context.Context, username, password string) (Session, types.User, error) {
	users := s.store.Users()
	user, err := users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Burn(password)
			return Session{}, types.User{}, fieldError("password", msgWrongPassword)
		}
		return Session{}, types.User{}, err
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return Session{}, types.User{}, fieldError("password", msgWrongPassword)
	}
	if s.requireVerified && !user.Verified() {
		return Session{}, types.User{}, ErrEmailNotVerified
	}

	if err := users.LoadGrants(ctx, &user); err != nil {
		return Session{}, types.User{}, err
	}
	session, err := s.sessions.Issue(user)
	if err != nil {
		return Session{}, types.User{}, err
	}

	s.emit(ctx, events.UserLogin, user)
	return session, user, nil
}

// Logout revokes the presented token.
func (s *AuthService) Logout(ctx context.Context, claims Claims) error {
	return s.sessions.Revoke(ctx, claims)
}

// Register creates an unverified account and mails its verification link
// once the account is committed. A failed hand-off is logged and the account
// stays unverified.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	if err := s.checkUnique(ctx, in.Email, in.Username, uuid.Nil); err != nil {
		return types.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return types.User{}, err
	}

	var user types.User
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		created, err := tx.Users().Create(ctx, types.User{
			Name:         in.Name,
			Email:        strings.ToLower(in.Email),
			Username:     in.Username,
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}
		user = created
		return nil
	})
	if err != nil {
		return types.User{}, conflictToField(err)
	}
	s.sendVerification(ctx, user, in.Next)
	user.Roles = []types.Role{}
	user.Permissions = []types.Permission{}
	return user, nil
}

// UpdateProfile changes name, username and email. A changed email resets
// verification and mails a new link.
func (s *AuthService) UpdateProfile(ctx context.Context, user types.User, in ProfileInput) (types.User, error) {
	if err := s.checkUnique(ctx, in.Email, in.Username, user.ID); err != nil {
		return types.User{}, err
	}

	email := strings.ToLower(in.Email)
	emailChanged := !strings.EqualFold(email, user.Email)

	user.Name = in.Name
	user.Username = in.Username
	user.Email = email
	if emailChanged {
		user.EmailVerifiedAt = nil
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		updated, err := tx.Users().Update(ctx, user)
		if err != nil {
			return err
		}
		user = updated
		return nil
	})
	if err != nil {
		return types.User{}, conflictToField(err)
	}
	if emailChanged {
		s.sendVerification(ctx, user, in.Next)
	}

	s.emit(ctx, events.AuthProfileUpdated, user)
	return user, nil
}

// UpdatePassword replaces the password after checking the current one.
func (s *AuthService) UpdatePassword(ctx context.Context, user types.User, oldPassword, password string) error {
	if !s.hasher.Verify(user.PasswordHash, oldPassword) {
		return fieldError("old_password", msgWrongPassword)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.Users().UpdatePassword(ctx, user.ID, hash)
	})
	if err != nil {
		return err
	}

	s.emit(ctx, events.AuthPasswordUpdated, user)
	return nil
}

// UpdatePhoto uploads a new profile photo and drops the previous one.
func (s *AuthService) UpdatePhoto(ctx context.Context, user types.User, r io.Reader, size int64, filename, contentType string) (types.User, error) {
	if s.photos == nil {
		return types.User{}, ErrStorageUnavailable
	}

	key := fmt.Sprintf("profile-photos/%s/%s%s", user.ID, uuid.NewString(), strings.ToLower(path.Ext(filename)))
	if err := s.photos.Put(ctx, key, r, size, contentType); err != nil {
		return types.User{}, fmt.Errorf("upload profile photo: %w", err)
	}

	previous := user.ProfilePhotoPath
	user.ProfilePhotoPath = &key
	updated, err := s.store.Users().Update(ctx, user)
	if err != nil {
		_ = s.photos.Delete(ctx, key)
		return types.User{}, err
	}

	s.dropPhoto(ctx, previous)
	s.emit(ctx, events.AuthProfileUpdated, updated)
	return updated, nil
}

// RemovePhoto clears the profile photo.
func (s *AuthService) RemovePhoto(ctx context.Context, user types.User) (types.User, error) {
	if user.ProfilePhotoPath == nil {
		return user, nil
	}
	previous := user.ProfilePhotoPath
	user.ProfilePhotoPath = nil
	updated, err := s.store.Users().Update(ctx, user)
	if err != nil {
		return types.User{}, err
	}
	s.dropPhoto(ctx, previous)
	return updated, nil
}

func (s *AuthService) dropPhoto(ctx context.Context, key *string) {
	if key == nil || s.photos == nil {
		return
	}
	if err := s.photos.Delete(ctx, *key); err != nil {
		s.logger.Warn("delete profile photo", slog.String("key", *key), slog.Any("error", err))
	}
}

func (s *AuthService) checkUnique(ctx context.Context, email, username string, except uuid.UUID) error {
	users := s.store.Users()
	errs := validation.Errors{}
	taken, err := users.Taken(ctx, "email", email, except)
	if err != nil {
		return err
	}
	if taken {
		errs["email"] = errors.New(msgTaken)
	}
	taken, err = users.Taken(ctx, "username", username, except)
	if err != nil {
		return err
	}
	if taken {
		errs["username"] = errors.New(msgTaken)
	}
	return errs.Filter()
}

func (s *AuthService) emit(ctx context.Context, name string, user types.User) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, name, user); err != nil {
		s.logger.Warn("emit event", slog.String("name", name), slog.Any("error", err))
	}
}

// conflictToField turns a unique violation that slipped past the pre-check into a 422.
func conflictToField(err error) error {
	if !errors.Is(err, store.ErrConflict) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "email"):
		return fieldError("email", msgTaken)
	case strings.Contains(msg, "username"):
		return fieldError("username", msgTaken)
	}
	return err
}

func (s *AuthService) sendVerification(ctx context.Context, user types.User, next string) {
	if err := s.verification.SendVerification(ctx, user, next); err != nil {
		s.logger.Error("send verification", slog.String("user_id", user.ID.String()), slog.Any("error", err))
	}
}
