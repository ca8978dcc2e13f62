package content

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillcms/quill/internal/platform/db"
	"github.com/quillcms/quill/internal/shared"
)

// Repository provides PostgreSQL backed persistence for posts, categories and
// comments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const postColumns = `id, title, slug, summary, body, author_id, category_id, published, published_at, created_at, updated_at, deleted_at`

// FindPost fetches an active post by ID.
func (r *Repository) FindPost(ctx context.Context, id int64) (*Post, error) {
	return r.findPost(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1 AND deleted_at IS NULL`, id)
}

// FindPostBySlug fetches an active post by slug.
func (r *Repository) FindPostBySlug(ctx context.Context, slug string) (*Post, error) {
	return r.findPost(ctx, `SELECT `+postColumns+` FROM posts WHERE slug = $1 AND deleted_at IS NULL`, slug)
}

// FindPostsByIDs fetches active posts matching the given IDs. Missing IDs are
// simply absent from the result.
func (r *Repository) FindPostsByIDs(ctx context.Context, ids []int64) ([]Post, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ANY($1) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPosts(rows)
}

// PostListFilter narrows ListPosts.
type PostListFilter struct {
	CategoryID    *int64
	AuthorID      *int64
	PublishedOnly bool
	Trashed       bool
}

// ListPosts returns a page of posts plus the total count.
func (r *Repository) ListPosts(ctx context.Context, filter PostListFilter, page shared.Pagination) ([]Post, int, error) {
	where := `WHERE deleted_at IS NULL`
	if filter.Trashed {
		where = `WHERE deleted_at IS NOT NULL`
	}
	args := []any{}
	if filter.PublishedOnly {
		where += ` AND published`
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		where += ` AND category_id = $` + argn(len(args))
	}
	if filter.AuthorID != nil {
		args = append(args, *filter.AuthorID)
		where += ` AND author_id = $` + argn(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM posts `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx,
		`SELECT `+postColumns+` FROM posts `+where+
			` ORDER BY created_at DESC, id DESC LIMIT $`+argn(len(args)-1)+` OFFSET $`+argn(len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	posts, err := collectPosts(rows)
	return posts, total, err
}

// CreatePost inserts a new post.
func (r *Repository) CreatePost(ctx context.Context, post Post) (*Post, error) {
	created, err := r.findPost(ctx,
		`INSERT INTO posts (title, slug, summary, body, author_id, category_id, published, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, CASE WHEN $7 THEN now() END)
		 RETURNING `+postColumns,
		post.Title, post.Slug, post.Summary, post.Body, post.AuthorID, post.CategoryID, post.Published)
	if err != nil && db.IsUniqueViolation(err) {
		return nil, errors.New("content: post slug already taken")
	}
	return created, err
}

// PostPatch carries optional field updates; nil means keep current value.
type PostPatch struct {
	Title      *string
	Slug       *string
	Summary    *string
	Body       *string
	CategoryID *int64
	Published  *bool
}

// UpdatePost applies a patch to an active post. published_at is stamped the
// first time the post flips to published.
func (r *Repository) UpdatePost(ctx context.Context, id int64, patch PostPatch) (*Post, error) {
	updated, err := r.findPost(ctx,
		`UPDATE posts SET
		    title = COALESCE($2, title),
		    slug = COALESCE($3, slug),
		    summary = COALESCE($4, summary),
		    body = COALESCE($5, body),
		    category_id = COALESCE($6, category_id),
		    published = COALESCE($7, published),
		    published_at = CASE WHEN COALESCE($7, published) AND published_at IS NULL THEN now() ELSE published_at END,
		    updated_at = now()
		  WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+postColumns,
		id, patch.Title, patch.Slug, patch.Summary, patch.Body, patch.CategoryID, patch.Published)
	if err != nil && db.IsUniqueViolation(err) {
		return nil, errors.New("content: post slug already taken")
	}
	return updated, err
}

// DeletePost soft-deletes a post.
func (r *Repository) DeletePost(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE posts SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RestorePost clears a soft-delete timestamp.
func (r *Repository) RestorePost(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE posts SET deleted_at = NULL WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListCategories returns all categories ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, slug, parent_id, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cats []Category
	for rows.Next() {
		var cat Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Slug, &cat.ParentID, &cat.CreatedAt); err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, name, slug string, parentID *int64) (*Category, error) {
	var cat Category
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (name, slug, parent_id) VALUES ($1, $2, $3)
		 RETURNING id, name, slug, parent_id, created_at`,
		name, slug, parentID).Scan(&cat.ID, &cat.Name, &cat.Slug, &cat.ParentID, &cat.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, errors.New("content: category slug already taken")
		}
		return nil, err
	}
	return &cat, nil
}

// UpdateCategory renames a category.
func (r *Repository) UpdateCategory(ctx context.Context, id int64, name, slug string) (*Category, error) {
	var cat Category
	err := r.pool.QueryRow(ctx,
		`UPDATE categories SET name = $2, slug = $3 WHERE id = $1
		 RETURNING id, name, slug, parent_id, created_at`,
		id, name, slug).Scan(&cat.ID, &cat.Name, &cat.Slug, &cat.ParentID, &cat.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		if db.IsUniqueViolation(err) {
			return nil, errors.New("content: category slug already taken")
		}
		return nil, err
	}
	return &cat, nil
}

// DeleteCategory removes a category. Posts keep their rows; the foreign key
// nulls category_id.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindCommentsByIDs fetches comments matching the given IDs.
func (r *Repository) FindCommentsByIDs(ctx context.Context, ids []int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, post_id, user_id, body, created_at FROM comments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectComments(rows)
}

// ListComments returns a page of comments on a post, oldest first.
func (r *Repository) ListComments(ctx context.Context, postID int64, page shared.Pagination) ([]Comment, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM comments WHERE post_id = $1`, postID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, post_id, user_id, body, created_at FROM comments
		  WHERE post_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		postID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	comments, err := collectComments(rows)
	return comments, total, err
}

// CreateComment inserts a comment on an active post.
func (r *Repository) CreateComment(ctx context.Context, postID, userID int64, body string) (*Comment, error) {
	var comment Comment
	err := r.pool.QueryRow(ctx,
		`INSERT INTO comments (post_id, user_id, body)
		 SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM posts WHERE id = $1 AND deleted_at IS NULL)
		 RETURNING id, post_id, user_id, body, created_at`,
		postID, userID, body).Scan(&comment.ID, &comment.PostID, &comment.UserID, &comment.Body, &comment.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &comment, nil
}

// DeleteComment removes a comment.
func (r *Repository) DeleteComment(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *Repository) findPost(ctx context.Context, query string, args ...any) (*Post, error) {
	row := r.pool.QueryRow(ctx, query, args...)
	post, err := scanPostRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return post, nil
}

func collectPosts(rows pgx.Rows) ([]Post, error) {
	var posts []Post
	for rows.Next() {
		post, err := scanPostRow(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	return posts, rows.Err()
}

func collectComments(rows pgx.Rows) ([]Comment, error) {
	var comments []Comment
	for rows.Next() {
		var comment Comment
		if err := rows.Scan(&comment.ID, &comment.PostID, &comment.UserID, &comment.Body, &comment.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

func scanPostRow(row pgx.Row) (*Post, error) {
	var post Post
	err := row.Scan(&post.ID, &post.Title, &post.Slug, &post.Summary, &post.Body,
		&post.AuthorID, &post.CategoryID, &post.Published, &post.PublishedAt,
		&post.CreatedAt, &post.UpdatedAt, &post.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func argn(n int) string {
	return strconv.Itoa(n)
}
