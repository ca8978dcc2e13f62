package messages

import (
	"context"
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

// Handler serves the direct message endpoints. All routes require an
// authenticated principal; rows are scoped to the caller's mailbox in the
// repository queries.
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

type sendMessageRequest struct {
	RecipientID int64  `json:"recipient_id" validate:"required,gt=0"`
	Subject     string `json:"subject" validate:"max=256"`
	Body        string `json:"body" validate:"required,max=8192"`
}

type messageResponse struct {
	ID          int64      `json:"id"`
	SenderID    int64      `json:"sender_id"`
	RecipientID int64      `json:"recipient_id"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type messageListResponse struct {
	Items []messageResponse `json:"items"`
	Meta  shared.Pagination `json:"meta"`
}

// MountRoutes registers message routes and their operation metadata.
func (h *Handler) MountRoutes(r chi.Router) {
	h.ops.Register("message", rbac.Operation{})

	r.Route("/messages", func(r chi.Router) {
		r.Use(h.guard.Protect("message"))
		r.Post("/", h.send)
		r.Get("/inbox", h.inbox)
		r.Get("/outbox", h.outbox)
		r.Get("/unread-count", h.unreadCount)
		r.Get("/{id}", h.read)
		r.Delete("/{id}", h.recall)
	})
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	var req sendMessageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	msg, err := h.service.Send(r.Context(), identity.UserID, req.RecipientID, req.Subject, req.Body)
	if err != nil {
		h.logger.Error("send message", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMessageResponse(*msg))
}

func (h *Handler) inbox(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, h.service.Inbox)
}

func (h *Handler) outbox(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, h.service.Outbox)
}

func (h *Handler) respondList(w http.ResponseWriter, r *http.Request,
	list func(ctx context.Context, userID int64, page, perPage int) ([]Message, shared.Pagination, error)) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	msgs, meta, err := list(r.Context(), identity.UserID, page, perPage)
	if err != nil {
		h.logger.Error("list messages", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := messageListResponse{Items: make([]messageResponse, 0, len(msgs)), Meta: meta}
	for _, msg := range msgs {
		out.Items = append(out.Items, toMessageResponse(msg))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	count, err := h.service.UnreadCount(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("unread count", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid message id")
		return
	}
	msg, err := h.service.Read(r.Context(), id, identity.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "message not found")
			return
		}
		h.logger.Error("read message", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMessageResponse(*msg))
}

func (h *Handler) recall(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid message id")
		return
	}
	if err := h.service.Recall(r.Context(), id, identity.UserID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "message not found or already read")
			return
		}
		h.logger.Error("recall message", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toMessageResponse(msg Message) messageResponse {
	return messageResponse{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Subject:     msg.Subject,
		Body:        msg.Body,
		ReadAt:      msg.ReadAt,
		CreatedAt:   msg.CreatedAt,
	}
}
