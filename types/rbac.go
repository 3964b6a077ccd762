package types

import (
	"time"

	"github.com/google/uuid"
)

// SuperuserRoleKey is the role that is granted every permission ever created.
const SuperuserRoleKey = "superuser"

// Role groups permissions under a unique key.
type Role struct {
	ID uuid.UUID `json:"id" db:"id"`

	// Name is an optional display name; Key is used when it is empty.
	Name *string `json:"name" db:"name"`

	// Key is the lowercase identifier referenced by middleware guards.
	Key string `json:"key" db:"key"`

	Permissions []Permission `json:"permissions"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Title returns the display name, falling back to the key.
func (r Role) Title() string {
	if r.Name != nil && *r.Name != "" {
		return *r.Name
	}
	return r.Key
}

// HasPermission reports whether the role holds any of keys.
func (r Role) HasPermission(keys ...string) bool {
	for _, key := range normalizeKeys(keys) {
		for _, permission := range r.Permissions {
			if permission.Key == key {
				return true
			}
		}
	}
	return false
}

// Permission is an atomic capability identified by its key.
type Permission struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name *string   `json:"name" db:"name"`
	Key  string    `json:"key" db:"key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Title returns the display name, falling back to the key.
func (p Permission) Title() string {
	if p.Name != nil && *p.Name != "" {
		return *p.Name
	}
	return p.Key
}
