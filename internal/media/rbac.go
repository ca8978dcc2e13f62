package media

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/shared"
)

// RegisterRBAC declares the media module's permissions. Regular users may
// upload files and manage their own uploads.
func RegisterRBAC(registry *rbac.Registry) error {
	if err := registry.AddPermissions([]rbac.PermissionDef{
		{
			Name:  PermMediaUpload,
			Label: "Upload files",
			Rule:  rbac.Rule{Action: rbac.ActionCreate, Subject: Subject},
		},
		{
			Name:  PermMediaOwner,
			Label: "Manage own uploads",
			Rule:  rbac.Rule{Action: rbac.ActionOwner, Subject: Subject},
			Conditions: func(p *rbac.Principal) rbac.Condition {
				return rbac.Condition{"user.id": p.ID}
			},
		},
		{
			Name:  PermMediaManage,
			Label: "Media management",
			Rule:  rbac.Rule{Action: rbac.ActionManage, Subject: Subject},
		},
	}); err != nil {
		return err
	}
	return registry.AddRoles([]rbac.RoleDef{
		{Name: rbac.RoleUser, Permissions: []string{PermMediaUpload, PermMediaOwner}},
	})
}

// OwnershipResolver loads the file referenced by the request path and shapes
// it as an ownership target.
func OwnershipResolver(repo *Repository) rbac.TargetResolver {
	return func(ctx context.Context, r *http.Request) ([]rbac.Target, error) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			return nil, rbac.ErrTargetNotFound
		}
		file, err := repo.Find(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, rbac.ErrTargetNotFound
			}
			return nil, err
		}
		return []rbac.Target{{
			"id":   file.ID,
			"user": map[string]any{"id": file.UserID},
		}}, nil
	}
}
