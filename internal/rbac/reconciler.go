package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/quillcms/quill/internal/shared"
)

// Store is the transactional persistence surface the reconciler converges.
// An implementation is scoped to a single transaction.
type Store interface {
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	CreateSystemedRole(ctx context.Context, def RoleDef) (int64, error)
	MarkRoleSystemed(ctx context.Context, id int64) error
	ListSystemedRoles(ctx context.Context) ([]Role, error)
	DeleteRoles(ctx context.Context, ids []int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	CreatePermission(ctx context.Context, def PermissionDef) error
	UpdatePermission(ctx context.Context, id int64, def PermissionDef) error
	DeletePermissions(ctx context.Context, ids []int64) error
	PermissionIDsByName(ctx context.Context, names []string) (map[string]int64, error)

	ListRolesWithPermissions(ctx context.Context, exceptName string) ([]Role, error)
	AttachRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	DetachRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	FindUserIDByUsername(ctx context.Context, username string) (int64, error)
	UserHasRole(ctx context.Context, userID, roleID int64) (bool, error)
	AttachUserRole(ctx context.Context, userID, roleID int64) error
}

// TxFunc supplies a transactional unit of work; fn runs against a Store
// scoped to one transaction which commits iff fn returns nil.
type TxFunc func(ctx context.Context, fn func(Store) error) error

// Reconciler converges persisted role/permission state with the declared
// catalog. It runs once at bootstrap, inside a single transaction; failure
// rolls everything back and is non-fatal to boot.
type Reconciler struct {
	registry      *Registry
	runTx         TxFunc
	logger        *slog.Logger
	superUsername string
	running       atomic.Bool
}

// NewReconciler constructs a Reconciler. superUsername names the bootstrap
// account that receives the super-admin role if it exists.
func NewReconciler(registry *Registry, runTx TxFunc, logger *slog.Logger, superUsername string) *Reconciler {
	return &Reconciler{registry: registry, runTx: runTx, logger: logger, superUsername: superUsername}
}

// Run finalizes the registry and reconciles storage. Concurrent calls are
// rejected; a failed run may be retried.
func (rc *Reconciler) Run(ctx context.Context) error {
	if !rc.running.CompareAndSwap(false, true) {
		return errors.New("rbac: reconciliation already in progress")
	}
	defer rc.running.Store(false)

	rc.registry.Finalize()

	err := rc.runTx(ctx, func(s Store) error {
		if err := rc.syncRoles(ctx, s); err != nil {
			return fmt.Errorf("sync roles: %w", err)
		}
		if err := rc.syncPermissions(ctx, s); err != nil {
			return fmt.Errorf("sync permissions: %w", err)
		}
		return nil
	})
	if err != nil {
		rc.logger.Error("rbac reconciliation rolled back", slog.Any("error", err))
		return err
	}
	rc.logger.Info("rbac reconciliation complete",
		slog.Int("roles", len(rc.registry.Roles())),
		slog.Int("permissions", len(rc.registry.Permissions())))
	return nil
}

// syncRoles upserts declared roles as systemed records and deletes systemed
// roles whose declaration disappeared.
func (rc *Reconciler) syncRoles(ctx context.Context, s Store) error {
	declared := rc.registry.Roles()
	for _, def := range declared {
		role, err := s.FindRoleByName(ctx, def.Name)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			if _, err := s.CreateSystemedRole(ctx, def); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := s.MarkRoleSystemed(ctx, role.ID); err != nil {
				return err
			}
		}
	}

	systemed, err := s.ListSystemedRoles(ctx)
	if err != nil {
		return err
	}
	var orphans []int64
	for _, role := range systemed {
		if _, ok := rc.registry.Role(role.Name); !ok {
			orphans = append(orphans, role.ID)
		}
	}
	if len(orphans) > 0 {
		return s.DeleteRoles(ctx, orphans)
	}
	return nil
}

// syncPermissions upserts declared permissions, prunes orphans, recomputes
// every role's associations by set difference, pins the super-admin role to
// the superset permission and attaches it to the bootstrap user.
func (rc *Reconciler) syncPermissions(ctx context.Context, s Store) error {
	declared := rc.registry.Permissions()
	declaredNames := make(map[string]struct{}, len(declared))

	persisted, err := s.ListPermissions(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]Permission, len(persisted))
	for _, perm := range persisted {
		byName[perm.Name] = perm
	}

	for _, def := range declared {
		declaredNames[def.Name] = struct{}{}
		if old, ok := byName[def.Name]; ok {
			if err := s.UpdatePermission(ctx, old.ID, def); err != nil {
				return err
			}
			continue
		}
		if err := s.CreatePermission(ctx, def); err != nil {
			return err
		}
	}

	var stale []int64
	for _, perm := range persisted {
		if _, ok := declaredNames[perm.Name]; !ok && perm.Name != PermSystemManage {
			stale = append(stale, perm.ID)
		}
	}
	if len(stale) > 0 {
		if err := s.DeletePermissions(ctx, stale); err != nil {
			return err
		}
	}

	if err := rc.syncRoleGrants(ctx, s); err != nil {
		return err
	}
	if err := rc.syncSuperAdmin(ctx, s); err != nil {
		return err
	}
	return rc.attachSuperUser(ctx, s)
}

func (rc *Reconciler) syncRoleGrants(ctx context.Context, s Store) error {
	roles, err := s.ListRolesWithPermissions(ctx, RoleSuperAdmin)
	if err != nil {
		return err
	}
	for _, role := range roles {
		def, ok := rc.registry.Role(role.Name)
		if !ok {
			// Manually created role; its grants are administrator-owned.
			continue
		}
		desired, err := s.PermissionIDsByName(ctx, def.Permissions)
		if err != nil {
			return err
		}
		current := make(map[int64]struct{}, len(role.Permissions))
		for _, perm := range role.Permissions {
			current[perm.ID] = struct{}{}
		}
		var add, remove []int64
		for _, id := range desired {
			if _, ok := current[id]; !ok {
				add = append(add, id)
			}
		}
		keep := make(map[int64]struct{}, len(desired))
		for _, id := range desired {
			keep[id] = struct{}{}
		}
		for id := range current {
			if _, ok := keep[id]; !ok {
				remove = append(remove, id)
			}
		}
		if len(add) > 0 {
			if err := s.AttachRolePermissions(ctx, role.ID, add); err != nil {
				return err
			}
		}
		if len(remove) > 0 {
			if err := s.DetachRolePermissions(ctx, role.ID, remove); err != nil {
				return err
			}
		}
	}
	return nil
}

// syncSuperAdmin leaves the super-admin role with exactly the superset
// permission, discarding any grant added manually.
func (rc *Reconciler) syncSuperAdmin(ctx context.Context, s Store) error {
	role, err := s.FindRoleByName(ctx, RoleSuperAdmin)
	if err != nil {
		return fmt.Errorf("super-admin role missing: %w", err)
	}
	ids, err := s.PermissionIDsByName(ctx, []string{PermSystemManage})
	if err != nil {
		return err
	}
	manageID, ok := ids[PermSystemManage]
	if !ok {
		return fmt.Errorf("permission %q missing", PermSystemManage)
	}
	var add, remove []int64
	hasManage := false
	for _, perm := range role.Permissions {
		if perm.ID == manageID {
			hasManage = true
			continue
		}
		remove = append(remove, perm.ID)
	}
	if !hasManage {
		add = append(add, manageID)
	}
	if len(add) > 0 {
		if err := s.AttachRolePermissions(ctx, role.ID, add); err != nil {
			return err
		}
	}
	if len(remove) > 0 {
		if err := s.DetachRolePermissions(ctx, role.ID, remove); err != nil {
			return err
		}
	}
	return nil
}

// attachSuperUser grants the super-admin role to the configured bootstrap
// account, keeping whatever other roles it already holds.
func (rc *Reconciler) attachSuperUser(ctx context.Context, s Store) error {
	userID, err := s.FindUserIDByUsername(ctx, rc.superUsername)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			rc.logger.Warn("bootstrap super user not found", slog.String("username", rc.superUsername))
			return nil
		}
		return err
	}
	role, err := s.FindRoleByName(ctx, RoleSuperAdmin)
	if err != nil {
		return err
	}
	has, err := s.UserHasRole(ctx, userID, role.ID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	return s.AttachUserRole(ctx, userID, role.ID)
}
