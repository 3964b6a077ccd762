package services

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
)

var (
	// ErrUnauthenticated is returned when a bearer token is missing, invalid, expired or revoked.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrEmailNotVerified is returned by Login when the verified-email gate is on.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrTokenInvalid is returned for signed tokens that do not decode.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for signed tokens past their expired_at.
	ErrTokenExpired = errors.New("token expired")
	// ErrStorageUnavailable is returned when no object storage backend is configured.
	ErrStorageUnavailable = errors.New("object storage is not configured")
	// ErrProtectedRole is returned when a change would strip the superuser role
	// of its key, its existence or any of its grants.
	ErrProtectedRole = errors.New("the superuser role cannot be changed this way")
)

// fieldError reports a single field-level validation failure.
func fieldError(field, message string) error {
	return validation.Errors{field: errors.New(message)}
}
