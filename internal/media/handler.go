package media

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillcms/quill/internal/platform/httpx"
	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/shared"
)

// maxUploadBytes caps a single upload at 32 MiB.
const maxUploadBytes = 32 << 20

// Handler serves the upload endpoints.
type Handler struct {
	logger  *slog.Logger
	repo    *Repository
	storage *Storage
	guard   *rbac.Guard
	ops     *rbac.Operations
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, storage *Storage, guard *rbac.Guard, ops *rbac.Operations) *Handler {
	return &Handler{logger: logger, repo: repo, storage: storage, guard: guard, ops: ops}
}

type fileResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type fileListResponse struct {
	Items []fileResponse    `json:"items"`
	Meta  shared.Pagination `json:"meta"`
}

// MountRoutes registers media routes and their operation metadata.
func (h *Handler) MountRoutes(r chi.Router) {
	owner := OwnershipResolver(h.repo)

	h.ops.Register("media.upload", rbac.Operation{Checkers: []rbac.Checker{rbac.Can(rbac.ActionCreate, Subject)}})
	h.ops.Register("media.list", rbac.Operation{})
	h.ops.Register("media.write", rbac.Operation{Checkers: []rbac.Checker{rbac.Owner(Subject, owner)}})
	h.ops.Register("media.read", rbac.Operation{Guest: true})
	h.ops.Register("media.manage", rbac.Operation{Checkers: []rbac.Checker{rbac.Can(rbac.ActionManage, Subject)}})

	r.Route("/media", func(r chi.Router) {
		r.With(h.guard.Protect("media.upload")).Post("/", h.upload)
		r.With(h.guard.Protect("media.list")).Get("/", h.listOwn)
		r.With(h.guard.Protect("media.read")).Get("/{id}/download", h.download)
		r.With(h.guard.Protect("media.write")).Delete("/{id}", h.remove)
	})
	r.With(h.guard.Protect("media.manage")).Get("/manage/media", h.listAll)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	src, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "multipart field 'file' required")
		return
	}
	defer src.Close()

	storedAs, size, err := h.storage.Save(src, filepath.Ext(header.Filename))
	if err != nil {
		h.logger.Error("store upload", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	file, err := h.repo.Create(r.Context(), File{
		UserID:   identity.UserID,
		Filename: filepath.Base(header.Filename),
		StoredAs: storedAs,
		MimeType: mimeType,
		Size:     size,
	})
	if err != nil {
		_ = h.storage.Remove(storedAs)
		h.logger.Error("record upload", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toFileResponse(*file))
}

// listOwn shows the caller's own uploads.
func (h *Handler) listOwn(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	h.respondList(w, r, identity.UserID)
}

// listAll shows every upload on the manage surface.
func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, 0)
}

func (h *Handler) respondList(w http.ResponseWriter, r *http.Request, userID int64) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	p := shared.NewPagination(page, perPage, 0)
	files, total, err := h.repo.List(r.Context(), userID, p)
	if err != nil {
		h.logger.Error("list media", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := fileListResponse{Items: make([]fileResponse, 0, len(files)), Meta: shared.NewPagination(page, perPage, total)}
	for _, file := range files {
		out.Items = append(out.Items, toFileResponse(file))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid file id")
		return
	}
	file, err := h.repo.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "file not found")
			return
		}
		h.logger.Error("find media", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	src, err := h.storage.Open(file.StoredAs)
	if err != nil {
		h.logger.Error("open media", slog.Any("error", err))
		httpx.Problem(w, http.StatusNotFound, "Not Found", "file not found")
		return
	}
	defer src.Close()
	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Disposition", `inline; filename="`+file.Filename+`"`)
	http.ServeContent(w, r, file.Filename, file.CreatedAt, src)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid file id")
		return
	}
	file, err := h.repo.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "file not found")
			return
		}
		h.logger.Error("find media", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete media", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if err := h.storage.Remove(file.StoredAs); err != nil {
		h.logger.Warn("remove stored file", slog.Any("error", err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func toFileResponse(file File) fileResponse {
	return fileResponse{
		ID:        file.ID,
		UserID:    file.UserID,
		Filename:  file.Filename,
		MimeType:  file.MimeType,
		Size:      file.Size,
		CreatedAt: file.CreatedAt,
	}
}
