package handlers

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
)

var passwordRules = []validation.Rule{validation.Required, validation.Length(8, 255), is.Alphanumeric}

var keyPattern = regexp.MustCompile(`^[\p{L}\p{N} _.:-]+$`)

func confirms(password string) validation.Rule {
	return validation.By(func(value any) error {
		if s, _ := value.(string); s != password {
			return errors.New("does not match password")
		}
		return nil
	})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) normalize() {
	trimAll(&r.Username)
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(0, 255)),
	)
}

type RegisterRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Username             string `json:"username"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Next                 string `json:"next"`
}

func (r *RegisterRequest) normalize() {
	trimAll(&r.Name, &r.Email, &r.Username, &r.Next)
	r.Email = strings.ToLower(r.Email)
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Username, validation.Required, validation.Length(2, 64)),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.PasswordConfirmation, validation.Required, confirms(r.Password)),
		validation.Field(&r.Next, is.URL),
	)
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
	Next  string `json:"next"`
}

func (r *ForgotPasswordRequest) normalize() {
	trimAll(&r.Email, &r.Next)
}

func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Next, is.URL),
	)
}

type ResetPasswordRequest struct {
	Token                string `json:"token"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (r *ResetPasswordRequest) normalize() {
	trimAll(&r.Token)
}

func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.PasswordConfirmation, validation.Required, confirms(r.Password)),
	)
}

type ProfileRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Next     string `json:"next"`
}

func (r *ProfileRequest) normalize() {
	trimAll(&r.Name, &r.Email, &r.Username, &r.Next)
}

func (r ProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Username, validation.Required, validation.Length(2, 64)),
		validation.Field(&r.Next, is.URL),
	)
}

type UpdatePasswordRequest struct {
	OldPassword          string `json:"old_password"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (r UpdatePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.PasswordConfirmation, validation.Required, confirms(r.Password)),
	)
}

type SetPasswordRequest struct {
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (r SetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.PasswordConfirmation, validation.Required, confirms(r.Password)),
	)
}

// PermissionCheckRequest is the body of the has-permission, has-role and can endpoints.
type PermissionCheckRequest struct {
	Permissions []string `json:"permissions"`
	Roles       []string `json:"roles"`
	Abilities   []string `json:"abilities"`
}

type KeyRequest struct {
	Key  string  `json:"key"`
	Name *string `json:"name"`
}

func (r *KeyRequest) normalize() {
	trimAll(&r.Key)
}

func (r KeyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Key, validation.Required, validation.Length(1, 255), validation.Match(keyPattern)),
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 255)),
	)
}

type MultiplePermissionRequest struct {
	Keys []string `json:"keys"`
}

func (r *MultiplePermissionRequest) normalize() {
	for i := range r.Keys {
		r.Keys[i] = strings.TrimSpace(r.Keys[i])
	}
}

func (r MultiplePermissionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Keys, validation.Required, validation.Length(1, 100), validation.Each(
			validation.Required, validation.Length(1, 255), validation.Match(keyPattern),
		)),
	)
}

type UserRequest struct {
	Name                 string      `json:"name"`
	Email                string      `json:"email"`
	Username             string      `json:"username"`
	Password             string      `json:"password"`
	PasswordConfirmation string      `json:"password_confirmation"`
	Roles                []uuid.UUID `json:"roles"`
	Permissions          []uuid.UUID `json:"permissions"`
	// update makes the password optional.
	update bool
}

func (r *UserRequest) normalize() {
	trimAll(&r.Name, &r.Email, &r.Username)
}

func (r UserRequest) Validate() error {
	password := passwordRules
	if r.update && r.Password == "" {
		password = nil
	}
	var confirmation []validation.Rule
	if r.Password != "" {
		confirmation = []validation.Rule{validation.Required, confirms(r.Password)}
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Username, validation.Required, validation.Length(2, 64)),
		validation.Field(&r.Password, password...),
		validation.Field(&r.PasswordConfirmation, confirmation...),
	)
}

func trimAll(values ...*string) {
	for _, v := range values {
		*v = strings.TrimSpace(*v)
	}
}
