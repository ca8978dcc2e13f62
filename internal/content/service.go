package content

import (
	"context"
	"errors"
	"strings"

	"github.com/quillcms/quill/internal/shared"
)

// RepositoryPort defines the data access methods the service needs.
type RepositoryPort interface {
	FindPost(ctx context.Context, id int64) (*Post, error)
	FindPostBySlug(ctx context.Context, slug string) (*Post, error)
	ListPosts(ctx context.Context, filter PostListFilter, page shared.Pagination) ([]Post, int, error)
	CreatePost(ctx context.Context, post Post) (*Post, error)
	UpdatePost(ctx context.Context, id int64, patch PostPatch) (*Post, error)
	DeletePost(ctx context.Context, id int64) error
	RestorePost(ctx context.Context, id int64) error
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, name, slug string, parentID *int64) (*Category, error)
	UpdateCategory(ctx context.Context, id int64, name, slug string) (*Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	ListComments(ctx context.Context, postID int64, page shared.Pagination) ([]Comment, int, error)
	CreateComment(ctx context.Context, postID, userID int64, body string) (*Comment, error)
	DeleteComment(ctx context.Context, id int64) error
}

// Service handles content business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreatePostInput carries the fields accepted on post creation.
type CreatePostInput struct {
	Title      string
	Summary    string
	Body       string
	CategoryID *int64
	Published  bool
}

// CreatePost stores a new post owned by authorID. The slug derives from the
// title unless the derived slug is empty.
func (s *Service) CreatePost(ctx context.Context, authorID int64, in CreatePostInput) (*Post, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errors.New("content: title required")
	}
	slug := Slugify(title)
	if slug == "" {
		return nil, errors.New("content: title yields an empty slug")
	}
	return s.repo.CreatePost(ctx, Post{
		Title:      title,
		Slug:       slug,
		Summary:    strings.TrimSpace(in.Summary),
		Body:       in.Body,
		AuthorID:   authorID,
		CategoryID: in.CategoryID,
		Published:  in.Published,
	})
}

// UpdatePostInput carries optional updates; nil means keep current value.
type UpdatePostInput struct {
	Title      *string
	Summary    *string
	Body       *string
	CategoryID *int64
	Published  *bool
}

// UpdatePost applies a partial update. A changed title re-derives the slug.
func (s *Service) UpdatePost(ctx context.Context, id int64, in UpdatePostInput) (*Post, error) {
	patch := PostPatch{
		Summary:    in.Summary,
		Body:       in.Body,
		CategoryID: in.CategoryID,
		Published:  in.Published,
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		slug := Slugify(title)
		if title == "" || slug == "" {
			return nil, errors.New("content: title yields an empty slug")
		}
		patch.Title = &title
		patch.Slug = &slug
	}
	return s.repo.UpdatePost(ctx, id, patch)
}

// GetPost fetches a post by ID.
func (s *Service) GetPost(ctx context.Context, id int64) (*Post, error) {
	return s.repo.FindPost(ctx, id)
}

// GetPostBySlug fetches a post by slug.
func (s *Service) GetPostBySlug(ctx context.Context, slug string) (*Post, error) {
	return s.repo.FindPostBySlug(ctx, slug)
}

// ListPosts returns a page of posts with pagination metadata.
func (s *Service) ListPosts(ctx context.Context, filter PostListFilter, page, perPage int) ([]Post, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	posts, total, err := s.repo.ListPosts(ctx, filter, p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return posts, shared.NewPagination(page, perPage, total), nil
}

// DeletePost soft-deletes a post.
func (s *Service) DeletePost(ctx context.Context, id int64) error {
	return s.repo.DeletePost(ctx, id)
}

// RestorePost recovers a soft-deleted post.
func (s *Service) RestorePost(ctx context.Context, id int64) error {
	return s.repo.RestorePost(ctx, id)
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateCategory stores a new category; the slug derives from the name.
func (s *Service) CreateCategory(ctx context.Context, name string, parentID *int64) (*Category, error) {
	name = strings.TrimSpace(name)
	slug := Slugify(name)
	if name == "" || slug == "" {
		return nil, errors.New("content: category name required")
	}
	return s.repo.CreateCategory(ctx, name, slug, parentID)
}

// UpdateCategory renames a category, re-deriving its slug.
func (s *Service) UpdateCategory(ctx context.Context, id int64, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	slug := Slugify(name)
	if name == "" || slug == "" {
		return nil, errors.New("content: category name required")
	}
	return s.repo.UpdateCategory(ctx, id, name, slug)
}

// DeleteCategory removes a category.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.repo.DeleteCategory(ctx, id)
}

// ListComments returns a page of comments on a post.
func (s *Service) ListComments(ctx context.Context, postID int64, page, perPage int) ([]Comment, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	comments, total, err := s.repo.ListComments(ctx, postID, p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return comments, shared.NewPagination(page, perPage, total), nil
}

// CreateComment stores a comment authored by userID.
func (s *Service) CreateComment(ctx context.Context, postID, userID int64, body string) (*Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("content: comment body required")
	}
	return s.repo.CreateComment(ctx, postID, userID, body)
}

// DeleteComment removes a comment.
func (s *Service) DeleteComment(ctx context.Context, id int64) error {
	return s.repo.DeleteComment(ctx, id)
}
