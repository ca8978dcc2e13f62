package rbac

import (
	"errors"
	"fmt"
	"sync"
)

// ErrFinalized indicates a registration attempt after the registry was sealed.
var ErrFinalized = errors.New("rbac: registry finalized")

// Registry is the in-memory catalog of declared roles and permissions.
// Feature modules register their declarations during startup; Finalize seals
// the catalog before the reconciler and guards start reading it. Reads after
// Finalize are safe for concurrent use.
//
// Both roles and permissions deep-merge by name: permission-name lists
// accumulate as a set, non-empty cosmetic fields from later registrations
// win, and the last non-nil condition factory wins. A merge never changes a
// rule's action or subject.
type Registry struct {
	mu        sync.RWMutex
	finalized bool

	roles     map[string]*RoleDef
	roleOrder []string

	permissions map[string]*PermissionDef
	permOrder   []string
}

// NewRegistry constructs a Registry seeded with the built-in roles and the
// protected superset permission.
func NewRegistry() *Registry {
	r := &Registry{
		roles:       make(map[string]*RoleDef),
		permissions: make(map[string]*PermissionDef),
	}
	_ = r.AddRoles([]RoleDef{
		{
			Name:        RoleUser,
			Label:       "Regular user",
			Description: "Default role assigned to new accounts",
		},
		{
			Name:        RoleSuperAdmin,
			Label:       "Super administrator",
			Description: "Holds management rights over the entire system",
		},
	})
	_ = r.AddPermissions([]PermissionDef{
		{
			Name:        PermSystemManage,
			Label:       "System management",
			Description: "Manage every feature of the system",
			Rule:        Rule{Action: ActionManage, Subject: SubjectAll},
		},
	})
	return r
}

// AddRoles merges the given roles into the declared catalog.
func (r *Registry) AddRoles(defs []RoleDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return ErrFinalized
	}
	for _, def := range defs {
		if def.Name == "" {
			return errors.New("rbac: role name required")
		}
		existing, ok := r.roles[def.Name]
		if !ok {
			cp := def
			cp.Permissions = dedupeStrings(def.Permissions)
			r.roles[def.Name] = &cp
			r.roleOrder = append(r.roleOrder, def.Name)
			continue
		}
		if def.Label != "" {
			existing.Label = def.Label
		}
		if def.Description != "" {
			existing.Description = def.Description
		}
		existing.Permissions = dedupeStrings(append(existing.Permissions, def.Permissions...))
	}
	return nil
}

// AddPermissions merges the given permissions into the declared catalog.
func (r *Registry) AddPermissions(defs []PermissionDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return ErrFinalized
	}
	for _, def := range defs {
		if def.Name == "" {
			return errors.New("rbac: permission name required")
		}
		if def.Rule.Action == "" || def.Rule.Subject == "" {
			return fmt.Errorf("rbac: permission %q needs an action and a subject", def.Name)
		}
		existing, ok := r.permissions[def.Name]
		if !ok {
			cp := def
			r.permissions[def.Name] = &cp
			r.permOrder = append(r.permOrder, def.Name)
			continue
		}
		if existing.Rule.Action != def.Rule.Action || existing.Rule.Subject != def.Rule.Subject {
			return fmt.Errorf("rbac: permission %q re-registered with a different rule", def.Name)
		}
		if def.Label != "" {
			existing.Label = def.Label
		}
		if def.Description != "" {
			existing.Description = def.Description
		}
		if def.Conditions != nil {
			existing.Conditions = def.Conditions
		}
	}
	return nil
}

// Finalize seals the registry. Subsequent registrations fail.
func (r *Registry) Finalize() {
	r.mu.Lock()
	r.finalized = true
	r.mu.Unlock()
}

// Roles returns the merged declared roles in registration order.
func (r *Registry) Roles() []RoleDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoleDef, 0, len(r.roleOrder))
	for _, name := range r.roleOrder {
		def := *r.roles[name]
		def.Permissions = append([]string(nil), def.Permissions...)
		out = append(out, def)
	}
	return out
}

// Permissions returns the merged declared permissions in registration order.
func (r *Registry) Permissions() []PermissionDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PermissionDef, 0, len(r.permOrder))
	for _, name := range r.permOrder {
		out = append(out, *r.permissions[name])
	}
	return out
}

// Permission looks up a declared permission by name.
func (r *Registry) Permission(name string) (PermissionDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.permissions[name]
	if !ok {
		return PermissionDef{}, false
	}
	return *def, true
}

// Role looks up a declared role by name.
func (r *Registry) Role(name string) (RoleDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.roles[name]
	if !ok {
		return RoleDef{}, false
	}
	cp := *def
	cp.Permissions = append([]string(nil), def.Permissions...)
	return cp, true
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
