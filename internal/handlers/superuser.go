package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/adminkit/apiserver/internal/services"
	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PermissionAdmin manages permissions.
type PermissionAdmin interface {
	All(ctx context.Context) ([]types.Permission, error)
	GetByID(ctx context.Context, id uuid.UUID) (types.Permission, error)
	Create(ctx context.Context, in services.PermissionInput) (types.Permission, error)
	CreateMany(ctx context.Context, in []services.PermissionInput) ([]types.Permission, error)
	Update(ctx context.Context, id uuid.UUID, in services.PermissionInput) (types.Permission, error)
	Delete(ctx context.Context, id uuid.UUID) (types.Permission, error)
}

// RoleAdmin manages roles.
type RoleAdmin interface {
	Paginate(ctx context.Context, q store.PageQuery) (types.Page[types.Role], error)
	All(ctx context.Context) ([]types.Role, error)
	GetByID(ctx context.Context, id uuid.UUID) (types.Role, error)
	Create(ctx context.Context, key string, name *string) (types.Role, error)
	Update(ctx context.Context, id uuid.UUID, key string, name *string) (types.Role, error)
	Delete(ctx context.Context, id uuid.UUID) (types.Role, error)
	TogglePermission(ctx context.Context, roleID, permissionID uuid.UUID) (types.Role, bool, error)
}

// UserAdmin manages user accounts.
type UserAdmin interface {
	Paginate(ctx context.Context, q store.PageQuery) (types.Page[types.User], error)
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	Create(ctx context.Context, in services.UserInput) (types.User, error)
	Update(ctx context.Context, id uuid.UUID, in services.UserInput) (types.User, error)
	SetPassword(ctx context.Context, id uuid.UUID, password string) error
	Delete(ctx context.Context, id uuid.UUID) (types.User, error)
	ToggleRole(ctx context.Context, userID, roleID uuid.UUID) (types.User, bool, error)
	TogglePermission(ctx context.Context, userID, permissionID uuid.UUID) (types.User, bool, error)
}

// SuperuserHandler serves the /superuser administration routes.
type SuperuserHandler struct {
	permissions PermissionAdmin
	roles       RoleAdmin
	users       UserAdmin
	logger      *slog.Logger
}

func NewSuperuserHandler(permissions PermissionAdmin, roles RoleAdmin, users UserAdmin, logger *slog.Logger) *SuperuserHandler {
	return &SuperuserHandler{permissions: permissions, roles: roles, users: users, logger: logger}
}

// SuperuserRouter registers the administration routes. Callers mount it
// behind RequireAuth; every route checks its own permission.
func SuperuserRouter(r chi.Router, h *SuperuserHandler) {
	r.Route("/permission", func(r chi.Router) {
		r.With(HasPermission("read permission")).Get("/", h.ListPermissions)
		r.With(HasPermission("create permission")).Post("/", h.CreatePermission)
		r.With(HasPermission("create permission")).Post("/multiple", h.CreatePermissions)
		r.With(HasPermission("read permission")).Get("/{id}", h.GetPermission)
		r.With(HasPermission("update permission")).Put("/{id}", h.UpdatePermission)
		r.With(HasPermission("delete permission")).Delete("/{id}", h.DeletePermission)
	})

	r.Route("/role", func(r chi.Router) {
		r.With(HasPermission("read role")).Get("/", h.PaginateRoles)
		r.With(HasPermission("read role")).Get("/all", h.AllRoles)
		r.With(HasPermission("create role")).Post("/", h.CreateRole)
		r.With(HasPermission("read role")).Get("/{id}", h.GetRole)
		r.With(HasPermission("update role")).Put("/{id}", h.UpdateRole)
		r.With(HasPermission("delete role")).Delete("/{id}", h.DeleteRole)
		r.With(HasPermission("update role")).Put("/{id}/toggle-permission/{permission}", h.ToggleRolePermission)
	})

	r.Route("/user", func(r chi.Router) {
		r.With(HasPermission("read user")).Get("/", h.PaginateUsers)
		r.With(HasPermission("create user")).Post("/", h.CreateUser)
		r.With(HasPermission("read user")).Get("/{id}", h.GetUser)
		r.With(HasPermission("update user")).Put("/{id}", h.UpdateUser)
		r.With(HasPermission("delete user")).Delete("/{id}", h.DeleteUser)
		r.With(HasPermission("update user")).Put("/{id}/password", h.SetUserPassword)
		r.With(HasPermission("update user")).Put("/{id}/permission/{permission}", h.ToggleUserPermission)
		r.With(HasPermission("update user")).Put("/{id}/role/{role}", h.ToggleUserRole)
	})
}

type PermissionResponse struct {
	Message    string           `json:"message"`
	Permission types.Permission `json:"permission"`
}

type PermissionsResponse struct {
	Message     string             `json:"message"`
	Permissions []types.Permission `json:"permissions"`
}

type RoleResponse struct {
	Message string     `json:"message"`
	Role    types.Role `json:"role"`
}

type RoleSummary struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Key   string    `json:"key"`
}

// ToggleResponse reports the grant state after a toggle.
type ToggleResponse struct {
	Message  string `json:"message"`
	Attached bool   `json:"attached"`
	Data     any    `json:"data"`
}

func (h *SuperuserHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.permissions.All(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, permissions)
}

func (h *SuperuserHandler) GetPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	permission, err := h.permissions.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, permission)
}

func (h *SuperuserHandler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	permission, err := h.permissions.Create(r.Context(), services.PermissionInput{Key: req.Key, Name: req.Name})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, PermissionResponse{
		Message:    fmt.Sprintf("permission %s has been created", permission.Title()),
		Permission: permission,
	})
}

func (h *SuperuserHandler) CreatePermissions(w http.ResponseWriter, r *http.Request) {
	var req MultiplePermissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := make([]services.PermissionInput, 0, len(req.Keys))
	for _, key := range req.Keys {
		in = append(in, services.PermissionInput{Key: key})
	}
	permissions, err := h.permissions.CreateMany(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, PermissionsResponse{
		Message:     fmt.Sprintf("%d permissions have been created", len(permissions)),
		Permissions: permissions,
	})
}

func (h *SuperuserHandler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	var req KeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	current, err := h.permissions.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if !h.mayChangeKey(w, r, current.Key, req.Key, "configure permission key") {
		return
	}
	permission, err := h.permissions.Update(r.Context(), id, services.PermissionInput{Key: req.Key, Name: req.Name})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, PermissionResponse{
		Message:    fmt.Sprintf("permission %s has been updated", permission.Title()),
		Permission: permission,
	})
}

func (h *SuperuserHandler) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	permission, err := h.permissions.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, PermissionResponse{
		Message:    fmt.Sprintf("permission %s has been deleted", permission.Title()),
		Permission: permission,
	})
}

func (h *SuperuserHandler) PaginateRoles(w http.ResponseWriter, r *http.Request) {
	q, err := parsePageQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.roles.Paginate(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *SuperuserHandler) AllRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.All(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	summaries := make([]RoleSummary, 0, len(roles))
	for _, role := range roles {
		summaries = append(summaries, RoleSummary{ID: role.ID, Title: role.Title(), Key: role.Key})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *SuperuserHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	role, err := h.roles.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (h *SuperuserHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := h.roles.Create(r.Context(), req.Key, req.Name)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, RoleResponse{
		Message: fmt.Sprintf("role %s has been created", role.Title()),
		Role:    role,
	})
}

func (h *SuperuserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	var req KeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	current, err := h.roles.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if !h.mayChangeKey(w, r, current.Key, req.Key, "configure role key") {
		return
	}
	role, err := h.roles.Update(r.Context(), id, req.Key, req.Name)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RoleResponse{
		Message: fmt.Sprintf("role %s has been updated", role.Title()),
		Role:    role,
	})
}

func (h *SuperuserHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	role, err := h.roles.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RoleResponse{
		Message: fmt.Sprintf("role %s has been deleted", role.Title()),
		Role:    role,
	})
}

func (h *SuperuserHandler) ToggleRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := h.idParam(w, r, "permission")
	if !ok {
		return
	}
	role, attached, err := h.roles.TogglePermission(r.Context(), roleID, permissionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{
		Message:  fmt.Sprintf("role %s has been updated", role.Title()),
		Attached: attached,
		Data:     role,
	})
}

func (h *SuperuserHandler) PaginateUsers(w http.ResponseWriter, r *http.Request) {
	q, err := parsePageQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.users.Paginate(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *SuperuserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *SuperuserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.users.Create(r.Context(), userInput(req))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{
		Message: fmt.Sprintf("user %s has been created", user.Name),
		User:    user,
	})
}

func (h *SuperuserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	req := UserRequest{update: true}
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.users.Update(r.Context(), id, userInput(req))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if req.Password != "" {
		if err := h.users.SetPassword(r.Context(), id, req.Password); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, UserResponse{
		Message: fmt.Sprintf("user %s has been updated", user.Name),
		User:    user,
	})
}

func (h *SuperuserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	if self, ok := CurrentUser(r.Context()); ok && self.ID == id {
		writeValidation(w, fieldErrors("id", "cannot delete your own account"))
		return
	}
	user, err := h.users.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{
		Message: fmt.Sprintf("user %s has been deleted", user.Name),
		User:    user,
	})
}

func (h *SuperuserHandler) SetUserPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	var req SetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.users.GetByID(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := h.users.SetPassword(r.Context(), id, req.Password); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password has been updated"})
}

func (h *SuperuserHandler) ToggleUserPermission(w http.ResponseWriter, r *http.Request) {
	h.toggleUser(w, r, "permission", h.users.TogglePermission)
}

func (h *SuperuserHandler) ToggleUserRole(w http.ResponseWriter, r *http.Request) {
	h.toggleUser(w, r, "role", h.users.ToggleRole)
}

func (h *SuperuserHandler) toggleUser(
	w http.ResponseWriter,
	r *http.Request,
	param string,
	toggle func(ctx context.Context, userID, id uuid.UUID) (types.User, bool, error),
) {
	userID, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	id, ok := h.idParam(w, r, param)
	if !ok {
		return
	}
	user, attached, err := toggle(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{
		Message:  fmt.Sprintf("user %s has been updated", user.Name),
		Attached: attached,
		Data:     user,
	})
}

// mayChangeKey refuses a key rename unless the caller can configure keys.
func (h *SuperuserHandler) mayChangeKey(w http.ResponseWriter, r *http.Request, current, requested, ability string) bool {
	if types.NormalizeKey(requested) == current {
		return true
	}
	user, ok := CurrentUser(r.Context())
	if !ok || !user.Can(ability) {
		writeError(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

func (h *SuperuserHandler) idParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := parseUUIDParam(r, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func userInput(req UserRequest) services.UserInput {
	return services.UserInput{
		Name:          req.Name,
		Email:         req.Email,
		Username:      req.Username,
		Password:      req.Password,
		RoleIDs:       req.Roles,
		PermissionIDs: req.Permissions,
	}
}
