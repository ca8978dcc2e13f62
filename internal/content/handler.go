package content

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

// Handler serves the content endpoints. Listing and reading are open to
// guests; writes go through the authorization guard.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	repo     *Repository
	guard    *rbac.Guard
	ops      *rbac.Operations
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, repo *Repository, guard *rbac.Guard, ops *rbac.Operations) *Handler {
	return &Handler{logger: logger, service: service, repo: repo, guard: guard, ops: ops, validate: validator.New()}
}

type createPostRequest struct {
	Title      string `json:"title" validate:"required,max=256"`
	Summary    string `json:"summary" validate:"max=512"`
	Body       string `json:"body" validate:"required"`
	CategoryID *int64 `json:"category_id"`
	Published  bool   `json:"published"`
}

type updatePostRequest struct {
	Title      *string `json:"title" validate:"omitempty,min=1,max=256"`
	Summary    *string `json:"summary" validate:"omitempty,max=512"`
	Body       *string `json:"body"`
	CategoryID *int64  `json:"category_id"`
	Published  *bool   `json:"published"`
}

type categoryRequest struct {
	Name     string `json:"name" validate:"required,max=128"`
	ParentID *int64 `json:"parent_id"`
}

type createCommentRequest struct {
	Body string `json:"body" validate:"required,max=4096"`
}

type postResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Summary     string     `json:"summary"`
	Body        string     `json:"body,omitempty"`
	AuthorID    int64      `json:"author_id"`
	CategoryID  *int64     `json:"category_id,omitempty"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type postListResponse struct {
	Items []postResponse    `json:"items"`
	Meta  shared.Pagination `json:"meta"`
}

type categoryResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

type commentResponse struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	UserID    int64     `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type commentListResponse struct {
	Items []commentResponse `json:"items"`
	Meta  shared.Pagination `json:"meta"`
}

// MountRoutes registers content routes and their operation metadata.
func (h *Handler) MountRoutes(r chi.Router) {
	postOwner := PostOwnershipResolver(h.repo)
	commentOwner := CommentOwnershipResolver(h.repo)

	h.ops.Register("content.post.read", rbac.Operation{Guest: true})
	h.ops.Register("content.post.create", rbac.Operation{Checkers: []rbac.Checker{rbac.Can(rbac.ActionCreate, SubjectPost)}})
	h.ops.Register("content.post.write", rbac.Operation{Checkers: []rbac.Checker{rbac.Owner(SubjectPost, postOwner)}})
	h.ops.Register("content.post.manage", rbac.Operation{Checkers: []rbac.Checker{rbac.Can(rbac.ActionManage, SubjectPost)}})
	h.ops.Register("content.category.read", rbac.Operation{Guest: true})
	h.ops.Register("content.category.manage", rbac.Operation{Checkers: []rbac.Checker{rbac.Can(rbac.ActionManage, SubjectCategory)}})
	h.ops.Register("content.comment.read", rbac.Operation{Guest: true})
	h.ops.Register("content.comment.create", rbac.Operation{Checkers: []rbac.Checker{rbac.Can(rbac.ActionCreate, SubjectComment)}})
	h.ops.Register("content.comment.write", rbac.Operation{Checkers: []rbac.Checker{rbac.Owner(SubjectComment, commentOwner)}})

	r.Route("/posts", func(r chi.Router) {
		r.With(h.guard.Protect("content.post.read")).Get("/", h.listPosts)
		r.With(h.guard.Protect("content.post.read")).Get("/{id}", h.getPost)
		r.With(h.guard.Protect("content.post.read")).Get("/slug/{slug}", h.getPostBySlug)
		r.With(h.guard.Protect("content.post.create")).Post("/", h.createPost)
		r.With(h.guard.Protect("content.post.write")).Patch("/{id}", h.updatePost)
		r.With(h.guard.Protect("content.post.write")).Delete("/{id}", h.deletePost)
		r.With(h.guard.Protect("content.post.write")).Delete("/", h.deletePosts)
		r.With(h.guard.Protect("content.post.manage")).Patch("/{id}/restore", h.restorePost)

		r.With(h.guard.Protect("content.comment.read")).Get("/{id}/comments", h.listComments)
		r.With(h.guard.Protect("content.comment.create")).Post("/{id}/comments", h.createComment)
	})
	r.With(h.guard.Protect("content.comment.write")).Delete("/comments/{id}", h.deleteComment)

	r.With(h.guard.Protect("content.category.read")).Get("/categories", h.listCategories)
	r.Route("/manage/categories", func(r chi.Router) {
		r.Use(h.guard.Protect("content.category.manage"))
		r.Post("/", h.createCategory)
		r.Patch("/{id}", h.updateCategory)
		r.Delete("/{id}", h.deleteCategory)
	})
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	filter := PostListFilter{PublishedOnly: true}
	if raw := q.Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid category id")
			return
		}
		filter.CategoryID = &id
	}
	if raw := q.Get("author_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid author id")
			return
		}
		filter.AuthorID = &id
	}
	// Drafts are visible to their author only.
	if identity := shared.IdentityFromContext(r.Context()); identity != nil &&
		filter.AuthorID != nil && *filter.AuthorID == identity.UserID {
		filter.PublishedOnly = false
	}

	posts, meta, err := h.service.ListPosts(r.Context(), filter, page, perPage)
	if err != nil {
		h.logger.Error("list posts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := postListResponse{Items: make([]postResponse, 0, len(posts)), Meta: meta}
	for _, post := range posts {
		item := toPostResponse(post)
		item.Body = ""
		out.Items = append(out.Items, item)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post id")
		return
	}
	post, err := h.service.GetPost(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPostResponse(*post))
}

func (h *Handler) getPostBySlug(w http.ResponseWriter, r *http.Request) {
	post, err := h.service.GetPostBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPostResponse(*post))
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	var req createPostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	post, err := h.service.CreatePost(r.Context(), identity.UserID, CreatePostInput{
		Title:      req.Title,
		Summary:    req.Summary,
		Body:       req.Body,
		CategoryID: req.CategoryID,
		Published:  req.Published,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPostResponse(*post))
}

func (h *Handler) updatePost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post id")
		return
	}
	var req updatePostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	post, err := h.service.UpdatePost(r.Context(), id, UpdatePostInput{
		Title:      req.Title,
		Summary:    req.Summary,
		Body:       req.Body,
		CategoryID: req.CategoryID,
		Published:  req.Published,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPostResponse(*post))
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post id")
		return
	}
	if err := h.service.DeletePost(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deletePosts removes the posts named by the ids query parameter. Ownership
// of every row was already proven by the guard.
func (h *Handler) deletePosts(w http.ResponseWriter, r *http.Request) {
	ids, err := requestIDs(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "ids query parameter required")
		return
	}
	for _, id := range ids {
		if err := h.service.DeletePost(r.Context(), id); err != nil {
			h.respondServiceError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restorePost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post id")
		return
	}
	if err := h.service.RestorePost(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.logger.Error("list categories", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]categoryResponse, 0, len(cats))
	for _, cat := range cats {
		out = append(out, categoryResponse{ID: cat.ID, Name: cat.Name, Slug: cat.Slug, ParentID: cat.ParentID})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cat, err := h.service.CreateCategory(r.Context(), req.Name, req.ParentID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, categoryResponse{ID: cat.ID, Name: cat.Name, Slug: cat.Slug, ParentID: cat.ParentID})
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid category id")
		return
	}
	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cat, err := h.service.UpdateCategory(r.Context(), id, req.Name)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, categoryResponse{ID: cat.ID, Name: cat.Name, Slug: cat.Slug, ParentID: cat.ParentID})
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid category id")
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post id")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	comments, meta, err := h.service.ListComments(r.Context(), postID, page, perPage)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	out := commentListResponse{Items: make([]commentResponse, 0, len(comments)), Meta: meta}
	for _, comment := range comments {
		out.Items = append(out.Items, toCommentResponse(comment))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createComment(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credentials required")
		return
	}
	postID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post id")
		return
	}
	var req createCommentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	comment, err := h.service.CreateComment(r.Context(), postID, identity.UserID, req.Body)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCommentResponse(*comment))
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid comment id")
		return
	}
	if err := h.service.DeleteComment(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "resource not found")
		return
	}
	h.logger.Error("content service", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func toPostResponse(post Post) postResponse {
	return postResponse{
		ID:          post.ID,
		Title:       post.Title,
		Slug:        post.Slug,
		Summary:     post.Summary,
		Body:        post.Body,
		AuthorID:    post.AuthorID,
		CategoryID:  post.CategoryID,
		Published:   post.Published,
		PublishedAt: post.PublishedAt,
		CreatedAt:   post.CreatedAt,
		UpdatedAt:   post.UpdatedAt,
	}
}

func toCommentResponse(comment Comment) commentResponse {
	return commentResponse{
		ID:        comment.ID,
		PostID:    comment.PostID,
		UserID:    comment.UserID,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
