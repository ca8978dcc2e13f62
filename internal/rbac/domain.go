package rbac

import (
	"context"
	"time"
)

// Actions understood by the engine. ActionManage implies every other action.
const (
	ActionCreate  = "create"
	ActionRead    = "read"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionRestore = "restore"
	ActionOwner   = "owner"
	ActionManage  = "manage"
)

// SubjectAll matches every subject.
const SubjectAll = "all"

// Built-in roles and the protected superset permission.
const (
	RoleUser       = "user"
	RoleSuperAdmin = "super-admin"

	PermSystemManage = "system-manage"
)

// Rule binds an action to a subject identifier. Subjects are plain strings
// chosen at declaration time; runtime type handles are never stored.
type Rule struct {
	Action  string
	Subject string
}

// Condition is a field/value predicate scoping a rule to matching rows.
// Keys use dot-path field access, e.g. "author.id".
type Condition map[string]any

// ConditionFactory instantiates a condition for the given principal.
// Factories run at request time only; conditions are never persisted.
type ConditionFactory func(p *Principal) Condition

// PermissionDef is a declared permission registered by a feature module.
type PermissionDef struct {
	Name        string
	Label       string
	Description string
	Rule        Rule
	Conditions  ConditionFactory
}

// RoleDef is a declared role registered by a feature module.
type RoleDef struct {
	Name        string
	Label       string
	Description string
	Permissions []string
}

// Permission is the persisted form of a declared permission.
type Permission struct {
	ID          int64
	Name        string
	Label       string
	Description string
	Action      string
	Subject     string
}

// Role is the persisted form of a role. Systemed roles are owned by the
// reconciler and protected from manual deletion.
type Role struct {
	ID          int64
	Name        string
	Label       string
	Description string
	Systemed    bool
	DeletedAt   *time.Time
	Permissions []Permission
}

// Principal is the authenticated actor with its full grant graph loaded.
type Principal struct {
	ID          int64
	Username    string
	Roles       []Role
	Permissions []Permission
}

// PrincipalStore loads a principal with roles (including nested permissions)
// and directly granted permissions, always fresh from storage.
type PrincipalStore interface {
	FindPrincipal(ctx context.Context, id int64) (*Principal, error)
}
