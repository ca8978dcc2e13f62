package content

import "time"

// Subject identifiers for content rows in authorization rules.
const (
	SubjectPost     = "post"
	SubjectCategory = "category"
	SubjectComment  = "comment"
)

// Permission names declared by the content module.
const (
	PermPostCreate     = "post.create"
	PermPostOwner      = "post.owner"
	PermPostManage     = "post.manage"
	PermCommentCreate  = "comment.create"
	PermCommentOwner   = "comment.owner"
	PermCommentManage  = "comment.manage"
	PermCategoryManage = "category.manage"
)

// RoleContentManage is the role granted the content manage permissions.
const RoleContentManage = "content-manage"

// Post is a published article.
type Post struct {
	ID          int64
	Title       string
	Slug        string
	Summary     string
	Body        string
	AuthorID    int64
	CategoryID  *int64
	Published   bool
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Category groups posts. Nesting is a single parent link.
type Category struct {
	ID        int64
	Name      string
	Slug      string
	ParentID  *int64
	CreatedAt time.Time
}

// Comment is a user remark on a post.
type Comment struct {
	ID        int64
	PostID    int64
	UserID    int64
	Body      string
	CreatedAt time.Time
}
