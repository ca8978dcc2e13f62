package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quillcms/quill/internal/platform/httpx"
	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/shared"
)

// Handler manages user endpoints: the guarded manage surface plus the
// authenticated account surface.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    *rbac.Guard
	ops      *rbac.Operations
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard *rbac.Guard, ops *rbac.Operations) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, ops: ops, validate: validator.New()}
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Nickname string `json:"nickname" validate:"max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
}

type updateUserRequest struct {
	Nickname string `json:"nickname" validate:"max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Nickname  string    `json:"nickname"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Actived   bool      `json:"actived"`
	CreatedAt time.Time `json:"created_at"`
}

type userListResponse struct {
	Items []userResponse    `json:"items"`
	Meta  shared.Pagination `json:"meta"`
}

// MountRoutes registers user routes and their operation metadata.
func (h *Handler) MountRoutes(r chi.Router) {
	h.ops.Register("user.manage", rbac.Operation{Checkers: []rbac.Checker{rbac.Can(rbac.ActionManage, Subject)}})
	h.ops.Register("user.account", rbac.Operation{})

	r.Route("/manage/users", func(r chi.Router) {
		r.Use(h.guard.Protect("user.manage"))
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Get("/{id}", h.getUser)
		r.Patch("/{id}", h.updateUser)
		r.Delete("/{id}", h.deleteUser)
		r.Patch("/{id}/restore", h.restoreUser)
	})
	r.Route("/account", func(r chi.Router) {
		r.Use(h.guard.Protect("user.account"))
		r.Get("/profile", h.profile)
		r.Patch("/profile", h.updateProfile)
		r.Put("/password", h.changePassword)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	users, meta, err := h.service.ListUsers(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := userListResponse{Items: make([]userResponse, 0, len(users)), Meta: meta}
	for _, user := range users {
		out.Items = append(out.Items, toUserResponse(user))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(*user))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.CreateUser(r.Context(), req.Username, req.Password, req.Nickname, req.Email, req.Phone)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(*user))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, req.Nickname, req.Email, req.Phone)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(*user))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restoreUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	if err := h.service.RestoreUser(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	user, err := h.service.GetUser(r.Context(), identity.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(*user))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.UpdateUser(r.Context(), identity.UserID, req.Nickname, req.Email, req.Phone)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(*user))
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ChangePassword(r.Context(), identity.UserID, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "old password does not match")
			return
		}
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
		return
	}
	h.logger.Error("users service", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func toUserResponse(user User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		Nickname:  user.Nickname,
		Email:     user.Email,
		Phone:     user.Phone,
		Actived:   user.Actived,
		CreatedAt: user.CreatedAt,
	}
}
