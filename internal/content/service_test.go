package content

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/quill/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	posts      map[int64]*Post
	categories map[int64]*Category
	comments   map[int64]*Comment
	nextID     int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		posts:      make(map[int64]*Post),
		categories: make(map[int64]*Category),
		comments:   make(map[int64]*Comment),
		nextID:     1,
	}
}

func (m *mockRepository) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *mockRepository) FindPost(ctx context.Context, id int64) (*Post, error) {
	post, ok := m.posts[id]
	if !ok || post.DeletedAt != nil {
		return nil, shared.ErrNotFound
	}
	cp := *post
	return &cp, nil
}

func (m *mockRepository) FindPostBySlug(ctx context.Context, slug string) (*Post, error) {
	for _, post := range m.posts {
		if post.Slug == slug && post.DeletedAt == nil {
			cp := *post
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepository) ListPosts(ctx context.Context, filter PostListFilter, page shared.Pagination) ([]Post, int, error) {
	var out []Post
	for _, post := range m.posts {
		if post.DeletedAt != nil {
			continue
		}
		if filter.PublishedOnly && !post.Published {
			continue
		}
		if filter.AuthorID != nil && post.AuthorID != *filter.AuthorID {
			continue
		}
		out = append(out, *post)
	}
	return out, len(out), nil
}

func (m *mockRepository) CreatePost(ctx context.Context, post Post) (*Post, error) {
	post.ID = m.id()
	m.posts[post.ID] = &post
	cp := post
	return &cp, nil
}

func (m *mockRepository) UpdatePost(ctx context.Context, id int64, patch PostPatch) (*Post, error) {
	post, ok := m.posts[id]
	if !ok || post.DeletedAt != nil {
		return nil, shared.ErrNotFound
	}
	if patch.Title != nil {
		post.Title = *patch.Title
	}
	if patch.Slug != nil {
		post.Slug = *patch.Slug
	}
	if patch.Summary != nil {
		post.Summary = *patch.Summary
	}
	if patch.Body != nil {
		post.Body = *patch.Body
	}
	if patch.CategoryID != nil {
		post.CategoryID = patch.CategoryID
	}
	if patch.Published != nil {
		post.Published = *patch.Published
	}
	cp := *post
	return &cp, nil
}

func (m *mockRepository) DeletePost(ctx context.Context, id int64) error {
	post, ok := m.posts[id]
	if !ok || post.DeletedAt != nil {
		return shared.ErrNotFound
	}
	now := time.Now()
	post.DeletedAt = &now
	return nil
}

func (m *mockRepository) RestorePost(ctx context.Context, id int64) error {
	post, ok := m.posts[id]
	if !ok || post.DeletedAt == nil {
		return shared.ErrNotFound
	}
	post.DeletedAt = nil
	return nil
}

func (m *mockRepository) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	for _, cat := range m.categories {
		out = append(out, *cat)
	}
	return out, nil
}

func (m *mockRepository) CreateCategory(ctx context.Context, name, slug string, parentID *int64) (*Category, error) {
	cat := Category{ID: m.id(), Name: name, Slug: slug, ParentID: parentID}
	m.categories[cat.ID] = &cat
	cp := cat
	return &cp, nil
}

func (m *mockRepository) UpdateCategory(ctx context.Context, id int64, name, slug string) (*Category, error) {
	cat, ok := m.categories[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cat.Name = name
	cat.Slug = slug
	cp := *cat
	return &cp, nil
}

func (m *mockRepository) DeleteCategory(ctx context.Context, id int64) error {
	if _, ok := m.categories[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.categories, id)
	return nil
}

func (m *mockRepository) ListComments(ctx context.Context, postID int64, page shared.Pagination) ([]Comment, int, error) {
	var out []Comment
	for _, comment := range m.comments {
		if comment.PostID == postID {
			out = append(out, *comment)
		}
	}
	return out, len(out), nil
}

func (m *mockRepository) CreateComment(ctx context.Context, postID, userID int64, body string) (*Comment, error) {
	if _, ok := m.posts[postID]; !ok {
		return nil, shared.ErrNotFound
	}
	comment := Comment{ID: m.id(), PostID: postID, UserID: userID, Body: body}
	m.comments[comment.ID] = &comment
	cp := comment
	return &cp, nil
}

func (m *mockRepository) DeleteComment(ctx context.Context, id int64) error {
	if _, ok := m.comments[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.comments, id)
	return nil
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreatePostDerivesSlug(t *testing.T) {
	svc := NewService(newMockRepository())

	post, err := svc.CreatePost(context.Background(), 1, CreatePostInput{
		Title: "  My First Post!  ",
		Body:  "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "My First Post!", post.Title)
	assert.Equal(t, "my-first-post", post.Slug)
	assert.Equal(t, int64(1), post.AuthorID)
}

func TestCreatePostRejectsEmptyTitle(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.CreatePost(context.Background(), 1, CreatePostInput{Title: "   ", Body: "x"})
	require.Error(t, err)

	_, err = svc.CreatePost(context.Background(), 1, CreatePostInput{Title: "!!!", Body: "x"})
	require.Error(t, err)
}

func TestUpdatePostTitleRederivesSlug(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	post, err := svc.CreatePost(context.Background(), 1, CreatePostInput{Title: "Old Title", Body: "x"})
	require.NoError(t, err)

	title := "New Title"
	updated, err := svc.UpdatePost(context.Background(), post.ID, UpdatePostInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "new-title", updated.Slug)
}

func TestUpdatePostKeepsUntouchedFields(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	post, err := svc.CreatePost(context.Background(), 1, CreatePostInput{Title: "Stable", Summary: "s", Body: "b"})
	require.NoError(t, err)

	body := "changed"
	updated, err := svc.UpdatePost(context.Background(), post.ID, UpdatePostInput{Body: &body})
	require.NoError(t, err)
	assert.Equal(t, "Stable", updated.Title)
	assert.Equal(t, "stable", updated.Slug)
	assert.Equal(t, "s", updated.Summary)
	assert.Equal(t, "changed", updated.Body)
}

func TestDeleteAndRestorePost(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	post, err := svc.CreatePost(context.Background(), 1, CreatePostInput{Title: "Gone Soon", Body: "x"})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePost(context.Background(), post.ID))
	_, err = svc.GetPost(context.Background(), post.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, svc.RestorePost(context.Background(), post.ID))
	restored, err := svc.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ID, restored.ID)
}

func TestCreateCommentRequiresPostAndBody(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	_, err := svc.CreateComment(context.Background(), 99, 1, "hi")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	post, err := svc.CreatePost(context.Background(), 1, CreatePostInput{Title: "Post", Body: "x"})
	require.NoError(t, err)

	_, err = svc.CreateComment(context.Background(), post.ID, 1, "   ")
	require.Error(t, err)

	comment, err := svc.CreateComment(context.Background(), post.ID, 2, " nice read ")
	require.NoError(t, err)
	assert.Equal(t, "nice read", comment.Body)
	assert.Equal(t, int64(2), comment.UserID)
}

func TestCategoryLifecycle(t *testing.T) {
	svc := NewService(newMockRepository())

	cat, err := svc.CreateCategory(context.Background(), " Tech News ", nil)
	require.NoError(t, err)
	assert.Equal(t, "tech-news", cat.Slug)

	renamed, err := svc.UpdateCategory(context.Background(), cat.ID, "Engineering")
	require.NoError(t, err)
	assert.Equal(t, "engineering", renamed.Slug)

	require.NoError(t, svc.DeleteCategory(context.Background(), cat.ID))
	assert.ErrorIs(t, svc.DeleteCategory(context.Background(), cat.ID), shared.ErrNotFound)
}
