package users

import "github.com/quillcms/quill/internal/rbac"

// RegisterRBAC declares the user module's permissions.
func RegisterRBAC(registry *rbac.Registry) error {
	return registry.AddPermissions([]rbac.PermissionDef{
		{
			Name:  PermUserManage,
			Label: "User management",
			Rule:  rbac.Rule{Action: rbac.ActionManage, Subject: Subject},
		},
	})
}
