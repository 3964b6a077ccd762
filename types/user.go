package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User represents an account in the system.
// It carries identity, verification state and the RBAC grants
// resolved for the account.
type User struct {
	// ID is the unique identifier of the user.
	ID uuid.UUID `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address. Unique, stored lowercase.
	Email string `json:"email" db:"email"`

	// Username is the unique login name chosen by the user.
	// Lookups against it are case-insensitive.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// EmailVerifiedAt is set once the user redeems a verification link.
	// A nil value means the address has not been verified.
	EmailVerifiedAt *time.Time `json:"email_verified_at" db:"email_verified_at"`

	// ProfilePhotoPath is the object storage key of the profile photo, if any.
	ProfilePhotoPath *string `json:"profile_photo_path" db:"profile_photo_path"`

	// Roles are the roles held by the user, each with its permissions loaded.
	Roles []Role `json:"roles"`

	// Permissions are the permissions granted to the user directly.
	Permissions []Permission `json:"permissions"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// DeletedAt marks a soft-deleted account. Soft-deleted users are
	// invisible to every lookup.
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// Verified reports whether the user's email address has been verified.
func (u User) Verified() bool {
	return u.EmailVerifiedAt != nil
}

// HasPermission reports whether the user holds any of keys, either
// directly or through one of its roles.
func (u User) HasPermission(keys ...string) bool {
	for _, key := range normalizeKeys(keys) {
		for _, permission := range u.Permissions {
			if permission.Key == key {
				return true
			}
		}
		for _, role := range u.Roles {
			if role.HasPermission(key) {
				return true
			}
		}
	}
	return false
}

// HasRole reports whether the user holds any of the role keys.
func (u User) HasRole(keys ...string) bool {
	for _, key := range normalizeKeys(keys) {
		for _, role := range u.Roles {
			if role.Key == key {
				return true
			}
		}
	}
	return false
}

// Can is HasPermission OR HasRole over the same keys.
func (u User) Can(keys ...string) bool {
	return u.HasPermission(keys...) || u.HasRole(keys...)
}

// NormalizeKey canonicalises a role or permission key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key = NormalizeKey(key); key != "" {
			out = append(out, key)
		}
	}
	return out
}
