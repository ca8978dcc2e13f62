package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/quillcms/quill/internal/platform/httpx"
	"github.com/quillcms/quill/internal/shared"
	"github.com/quillcms/quill/internal/users"
)

// Handler serves the public authentication endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	captcha  *CaptchaService
	accounts *users.Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, captcha *CaptchaService, accounts *users.Service) *Handler {
	return &Handler{logger: logger, service: service, captcha: captcha, accounts: accounts, validate: validator.New()}
}

type loginRequest struct {
	Credential string `json:"credential" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required,len=6"`
}

type captchaRequest struct {
	Email  string `json:"email" validate:"omitempty,email"`
	Phone  string `json:"phone" validate:"omitempty,e164"`
	Action string `json:"action" validate:"required,oneof=register login retrieve-password"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// MountRoutes registers authentication routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(10, time.Minute))
			r.Post("/login", h.login)
			r.Post("/register", h.register)
			r.Post("/captcha", h.sendCaptcha)
		})
		r.Post("/logout", h.logout)
		r.Post("/refresh", h.refresh)
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, token, err := h.service.Login(r.Context(), req.Credential, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{Token: token, UserID: user.ID, Username: user.Username})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.captcha.VerifyEmail(r.Context(), req.Email, CaptchaRegister, req.Code); err != nil {
		if errors.Is(err, shared.ErrCaptchaMismatch) {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "captcha mismatch")
			return
		}
		h.logger.Error("verify captcha", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	user, err := h.accounts.CreateUser(r.Context(), req.Username, req.Password, "", req.Email, "")
	if err != nil {
		h.logger.Error("register", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": user.ID, "username": user.Username})
}

func (h *Handler) sendCaptcha(w http.ResponseWriter, r *http.Request) {
	var req captchaRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil || (req.Email == "" && req.Phone == "") {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email or phone required")
		return
	}
	var err error
	if req.Email != "" {
		err = h.captcha.SendEmail(r.Context(), req.Email, req.Action)
	} else {
		err = h.captcha.SendSMS(r.Context(), req.Phone, req.Action)
	}
	if err != nil {
		if errors.Is(err, shared.ErrCaptchaThrottled) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "captcha requested too frequently")
			return
		}
		h.logger.Error("send captcha", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token := shared.BearerToken(r)
	if token == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.logger.Error("logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token := shared.BearerToken(r)
	if token == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	fresh, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidToken) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
			return
		}
		h.logger.Error("refresh", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"token": fresh})
}
