package content

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quillcms/quill/internal/rbac"
)

// RegisterRBAC declares the content module's permissions and roles. The
// regular user role gains create rights plus ownership over its own rows; the
// content-manage role carries the full manage set.
func RegisterRBAC(registry *rbac.Registry) error {
	if err := registry.AddPermissions([]rbac.PermissionDef{
		{
			Name:  PermPostCreate,
			Label: "Write posts",
			Rule:  rbac.Rule{Action: rbac.ActionCreate, Subject: SubjectPost},
		},
		{
			Name:  PermPostOwner,
			Label: "Manage own posts",
			Rule:  rbac.Rule{Action: rbac.ActionOwner, Subject: SubjectPost},
			Conditions: func(p *rbac.Principal) rbac.Condition {
				return rbac.Condition{"author.id": p.ID}
			},
		},
		{
			Name:  PermPostManage,
			Label: "Post management",
			Rule:  rbac.Rule{Action: rbac.ActionManage, Subject: SubjectPost},
		},
		{
			Name:  PermCommentCreate,
			Label: "Write comments",
			Rule:  rbac.Rule{Action: rbac.ActionCreate, Subject: SubjectComment},
		},
		{
			Name:  PermCommentOwner,
			Label: "Manage own comments",
			Rule:  rbac.Rule{Action: rbac.ActionOwner, Subject: SubjectComment},
			Conditions: func(p *rbac.Principal) rbac.Condition {
				return rbac.Condition{"user.id": p.ID}
			},
		},
		{
			Name:  PermCommentManage,
			Label: "Comment management",
			Rule:  rbac.Rule{Action: rbac.ActionManage, Subject: SubjectComment},
		},
		{
			Name:  PermCategoryManage,
			Label: "Category management",
			Rule:  rbac.Rule{Action: rbac.ActionManage, Subject: SubjectCategory},
		},
	}); err != nil {
		return err
	}
	return registry.AddRoles([]rbac.RoleDef{
		{
			Name: rbac.RoleUser,
			Permissions: []string{
				PermPostCreate, PermPostOwner,
				PermCommentCreate, PermCommentOwner,
			},
		},
		{
			Name:        RoleContentManage,
			Label:       "Content manager",
			Description: "Full control over posts, categories and comments",
			Permissions: []string{PermPostManage, PermCommentManage, PermCategoryManage},
		},
	})
}

// PostOwnershipResolver loads the posts referenced by the request path or the
// ids query parameter and shapes them as ownership targets.
func PostOwnershipResolver(repo *Repository) rbac.TargetResolver {
	return func(ctx context.Context, r *http.Request) ([]rbac.Target, error) {
		ids, err := requestIDs(r)
		if err != nil {
			return nil, rbac.ErrTargetNotFound
		}
		posts, err := repo.FindPostsByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(posts) != len(ids) {
			return nil, rbac.ErrTargetNotFound
		}
		targets := make([]rbac.Target, 0, len(posts))
		for _, post := range posts {
			targets = append(targets, rbac.Target{
				"id":     post.ID,
				"author": map[string]any{"id": post.AuthorID},
			})
		}
		return targets, nil
	}
}

// CommentOwnershipResolver loads the comments referenced by the request and
// shapes them as ownership targets.
func CommentOwnershipResolver(repo *Repository) rbac.TargetResolver {
	return func(ctx context.Context, r *http.Request) ([]rbac.Target, error) {
		ids, err := requestIDs(r)
		if err != nil {
			return nil, rbac.ErrTargetNotFound
		}
		comments, err := repo.FindCommentsByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(comments) != len(ids) {
			return nil, rbac.ErrTargetNotFound
		}
		targets := make([]rbac.Target, 0, len(comments))
		for _, comment := range comments {
			targets = append(targets, rbac.Target{
				"id":   comment.ID,
				"user": map[string]any{"id": comment.UserID},
			})
		}
		return targets, nil
	}
}

// requestIDs extracts row IDs from the {id} path parameter, falling back to
// the comma-separated ids query parameter for batch endpoints.
func requestIDs(r *http.Request) ([]int64, error) {
	if raw := chi.URLParam(r, "id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		return []int64{id}, nil
	}
	var ids []int64
	for _, part := range strings.Split(r.URL.Query().Get("ids"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, rbac.ErrTargetNotFound
	}
	return ids, nil
}
