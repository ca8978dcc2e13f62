package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quillcms/quill/internal/platform/httpx"
	"github.com/quillcms/quill/internal/shared"
)

// Handler exposes the admin CRUD surface over persisted roles/permissions.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	guard    *Guard
	ops      *Operations
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, guard *Guard, ops *Operations) *Handler {
	return &Handler{logger: logger, repo: repo, guard: guard, ops: ops, validate: validator.New()}
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Label       string `json:"label" validate:"max=128"`
	Description string `json:"description" validate:"max=512"`
}

type updateRoleRequest struct {
	Label       string `json:"label" validate:"max=128"`
	Description string `json:"description" validate:"max=512"`
}

type setRolePermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"required"`
}

type roleResponse struct {
	ID          int64                `json:"id"`
	Name        string               `json:"name"`
	Label       string               `json:"label"`
	Description string               `json:"description"`
	Systemed    bool                 `json:"systemed"`
	Permissions []permissionResponse `json:"permissions,omitempty"`
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Action      string `json:"action"`
	Subject     string `json:"subject"`
}

// MountRoutes registers the manage routes and their operation metadata.
func (h *Handler) MountRoutes(r chi.Router) {
	h.ops.Register("rbac.role", Operation{Checkers: []Checker{Can(ActionManage, SubjectRole)}})
	h.ops.Register("rbac.permission", Operation{Checkers: []Checker{Can(ActionManage, SubjectPermission)}})

	r.Route("/manage/roles", func(r chi.Router) {
		r.Use(h.guard.Protect("rbac.role"))
		r.Get("/", h.listRoles)
		r.Post("/", h.createRole)
		r.Get("/{id}", h.getRole)
		r.Patch("/{id}", h.updateRole)
		r.Delete("/{id}", h.deleteRole)
		r.Patch("/{id}/restore", h.restoreRole)
		r.Put("/{id}/permissions", h.setRolePermissions)
	})
	r.Route("/manage/permissions", func(r chi.Router) {
		r.Use(h.guard.Protect("rbac.permission"))
		r.Get("/", h.listPermissions)
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	trashed := r.URL.Query().Get("trashed") == "true"
	roles, err := h.repo.ListRoles(r.Context(), trashed)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	role, err := h.repo.GetRole(r.Context(), id)
	if err != nil {
		h.respondRepoError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(*role))
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.repo.CreateRole(r.Context(), req.Name, req.Label, req.Description)
	if err != nil {
		h.respondRepoError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(*role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.repo.UpdateRole(r.Context(), id, req.Label, req.Description)
	if err != nil {
		h.respondRepoError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(*role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	if err := h.repo.DeleteRole(r.Context(), id); err != nil {
		if errors.Is(err, ErrSystemedRole) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
			return
		}
		h.respondRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restoreRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	if err := h.repo.RestoreRole(r.Context(), id); err != nil {
		h.respondRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req setRolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.repo.SetRolePermissions(r.Context(), id, req.PermissionIDs); err != nil {
		h.respondRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.repo.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, perm := range perms {
		out = append(out, toPermissionResponse(perm))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
		return
	}
	h.logger.Error("rbac repository", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func toRoleResponse(role Role) roleResponse {
	out := roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Label:       role.Label,
		Description: role.Description,
		Systemed:    role.Systemed,
	}
	for _, perm := range role.Permissions {
		out.Permissions = append(out.Permissions, toPermissionResponse(perm))
	}
	return out
}

func toPermissionResponse(perm Permission) permissionResponse {
	return permissionResponse{
		ID:          perm.ID,
		Name:        perm.Name,
		Label:       perm.Label,
		Description: perm.Description,
		Action:      perm.Action,
		Subject:     perm.Subject,
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
