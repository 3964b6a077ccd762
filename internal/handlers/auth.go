package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/adminkit/apiserver/internal/services"
	"github.com/adminkit/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxPhotoBytes     = 4 << 20
	formFieldPhoto    = "photo"
	maxMultipartBytes = maxPhotoBytes + 1<<20
)

var photoTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// AuthService is the account side of authentication.
type AuthService interface {
	Login(ctx context.Context, username, password string) (services.Session, types.User, error)
	Logout(ctx context.Context, claims services.Claims) error
	Register(ctx context.Context, in services.RegisterInput) (types.User, error)
	UpdateProfile(ctx context.Context, user types.User, in services.ProfileInput) (types.User, error)
	UpdatePassword(ctx context.Context, user types.User, oldPassword, password string) error
	UpdatePhoto(ctx context.Context, user types.User, r io.Reader, size int64, filename, contentType string) (types.User, error)
	RemovePhoto(ctx context.Context, user types.User) (types.User, error)
}

// VerificationService redeems emailed links.
type VerificationService interface {
	Verify(ctx context.Context, token string) (types.User, error)
	RequestReset(ctx context.Context, email, host string) error
	ResetPassword(ctx context.Context, token, password string) error
}

// CsrfIssuer issues CSRF tokens.
type CsrfIssuer interface {
	Generate(ctx context.Context, ip string) (string, error)
}

// AuthHandler serves login, registration, verification and profile endpoints.
type AuthHandler struct {
	auth         AuthService
	verification VerificationService
	csrf         CsrfIssuer
	logger       *slog.Logger
}

func NewAuthHandler(auth AuthService, verification VerificationService, csrf CsrfIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, verification: verification, csrf: csrf, logger: logger}
}

// AuthRouter registers the public auth routes plus the authenticated
// /logout, /user and /auth/user groups.
func AuthRouter(r chi.Router, h *AuthHandler, requireAuth func(http.Handler) http.Handler) {
	r.Post("/csrf", h.GenerateCsrf)
	r.Post("/login", h.Login)
	r.Post("/register", h.Register)
	r.Get("/verify", h.Verify)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Put("/forgot-password", h.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Delete("/logout", h.Logout)

		r.Route("/user", func(r chi.Router) {
			r.Get("/", h.User)
			r.Post("/has-permission", h.HasPermission)
			r.Post("/has-role", h.HasRole)
			r.Post("/can", h.Can)
		})

		r.Route("/auth/user", func(r chi.Router) {
			r.Put("/", h.UpdateProfile)
			r.Patch("/", h.UpdatePassword)
			r.Put("/photo", h.UpdatePhoto)
			r.Delete("/", h.RemovePhoto)
		})
	})
}

type CsrfResponse struct {
	Token string `json:"token"`
}

func (h *AuthHandler) GenerateCsrf(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.Generate(r.Context(), clientIP(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, CsrfResponse{Token: token})
}

type LoginResponse struct {
	Message string `json:"message"`
	services.Session
	User types.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Message: "authenticated",
		Session: session,
		User:    user,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentClaims(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if err := h.auth.Logout(r.Context(), claims); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

type UserResponse struct {
	Message string     `json:"message"`
	User    types.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.auth.Register(r.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Next:     req.Next,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, UserResponse{
		Message: fmt.Sprintf("a verification link has been sent to %s", user.Email),
		User:    user,
	})
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid token")
		return
	}

	if _, err := h.verification.Verify(r.Context(), token); err != nil {
		if errors.Is(err, services.ErrTokenExpired) {
			writeJSON(w, StatusPageExpired, map[string]string{
				"message":     "page expired",
				"description": "the link has expired, a new one has been sent",
			})
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "email address verified"})
}

// ForgotPassword answers 201 whether or not the address has an account.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.verification.RequestReset(r.Context(), req.Email, req.Next); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{
		Message: "if the address belongs to an account, a reset link has been sent",
	})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.verification.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password has been reset"})
}

type keyView struct {
	Key string `json:"key"`
}

type roleView struct {
	Key         string    `json:"key"`
	Permissions []keyView `json:"permissions"`
}

// CurrentUserResponse flattens grants to their keys.
type CurrentUserResponse struct {
	types.User
	Permissions []keyView  `json:"permissions"`
	Roles       []roleView `json:"roles"`
}

func newCurrentUserResponse(user types.User) CurrentUserResponse {
	resp := CurrentUserResponse{
		User:        user,
		Permissions: make([]keyView, 0, len(user.Permissions)),
		Roles:       make([]roleView, 0, len(user.Roles)),
	}
	for _, p := range user.Permissions {
		resp.Permissions = append(resp.Permissions, keyView{Key: p.Key})
	}
	for _, role := range user.Roles {
		view := roleView{Key: role.Key, Permissions: make([]keyView, 0, len(role.Permissions))}
		for _, p := range role.Permissions {
			view.Permissions = append(view.Permissions, keyView{Key: p.Key})
		}
		resp.Roles = append(resp.Roles, view)
	}
	return resp
}

func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, newCurrentUserResponse(user))
}

func (h *AuthHandler) HasPermission(w http.ResponseWriter, r *http.Request) {
	h.check(w, r, func(u types.User, req PermissionCheckRequest) bool {
		return u.HasPermission(req.Permissions...)
	})
}

func (h *AuthHandler) HasRole(w http.ResponseWriter, r *http.Request) {
	h.check(w, r, func(u types.User, req PermissionCheckRequest) bool {
		return u.HasRole(req.Roles...)
	})
}

func (h *AuthHandler) Can(w http.ResponseWriter, r *http.Request) {
	h.check(w, r, func(u types.User, req PermissionCheckRequest) bool {
		return u.Can(req.Abilities...)
	})
}

// check answers 200 when the predicate holds and 401 otherwise.
func (h *AuthHandler) check(w http.ResponseWriter, r *http.Request, predicate func(types.User, PermissionCheckRequest) bool) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req PermissionCheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !predicate(user, req) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req ProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.auth.UpdateProfile(r.Context(), user, services.ProfileInput{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Next:     req.Next,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Message: fmt.Sprintf("user %s has been updated", updated.Name), User: updated})
}

func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req UpdatePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.UpdatePassword(r.Context(), user, req.OldPassword, req.Password); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("user %s has been updated", user.Name)})
}

func (h *AuthHandler) UpdatePhoto(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBytes)
	if err := r.ParseMultipartForm(maxMultipartBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File[formFieldPhoto]
	if len(files) != 1 {
		writeValidation(w, fieldErrors(formFieldPhoto, "exactly one file is required"))
		return
	}
	header := files[0]
	if header.Size > maxPhotoBytes {
		writeValidation(w, fieldErrors(formFieldPhoto, "file is too large"))
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !photoTypes[contentType] {
		writeValidation(w, fieldErrors(formFieldPhoto, "must be a jpeg, png, gif or webp image"))
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	defer file.Close()

	updated, err := h.auth.UpdatePhoto(r.Context(), user, file, header.Size, header.Filename, contentType)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Message: "profile photo has been updated", User: updated})
}

func (h *AuthHandler) RemovePhoto(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	updated, err := h.auth.RemovePhoto(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Message: "profile photo has been removed", User: updated})
}
