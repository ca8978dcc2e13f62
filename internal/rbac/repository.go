package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillcms/quill/internal/platform/db"
	"github.com/quillcms/quill/internal/shared"
)

// Subjects for the engine's own manage surface.
const (
	SubjectRole       = "role"
	SubjectPermission = "permission"
)

// ErrSystemedRole indicates an attempt to delete a reconciler-owned role.
var ErrSystemedRole = errors.New("rbac: systemed roles cannot be deleted")

// Repository provides PostgreSQL backed persistence for the admin CRUD
// surface over persisted roles and permissions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns roles; trashed selects soft-deleted ones instead.
func (r *Repository) ListRoles(ctx context.Context, trashed bool) ([]Role, error) {
	clause := `deleted_at IS NULL`
	if trashed {
		clause = `deleted_at IS NOT NULL`
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, label, description, systemed, deleted_at FROM roles WHERE `+clause+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Label, &role.Description, &role.Systemed, &role.DeletedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role with its permissions.
func (r *Repository) GetRole(ctx context.Context, id int64) (*Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, label, description, systemed, deleted_at FROM roles WHERE id = $1`,
		id,
	).Scan(&role.ID, &role.Name, &role.Label, &role.Description, &role.Systemed, &role.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, p.label, p.description, p.action, p.subject
		   FROM permissions p
		   JOIN role_permissions rp ON rp.permission_id = p.id
		  WHERE rp.role_id = $1
		  ORDER BY p.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms, err := scanPermissions(rows)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

// CreateRole inserts a manually administered (non-systemed) role.
func (r *Repository) CreateRole(ctx context.Context, name, label, description string) (*Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, label, description, systemed) VALUES ($1, $2, $3, FALSE)
		 RETURNING id, name, label, description, systemed, deleted_at`,
		name, label, description,
	).Scan(&role.ID, &role.Name, &role.Label, &role.Description, &role.Systemed, &role.DeletedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, errors.New("rbac: role name already taken")
		}
		return nil, err
	}
	return &role, nil
}

// UpdateRole changes a role's cosmetic fields. The name and systemed flag
// stay under reconciler ownership.
func (r *Repository) UpdateRole(ctx context.Context, id int64, label, description string) (*Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`UPDATE roles SET label = $2, description = $3, updated_at = now() WHERE id = $1 AND deleted_at IS NULL
		 RETURNING id, name, label, description, systemed, deleted_at`,
		id, label, description,
	).Scan(&role.ID, &role.Name, &role.Label, &role.Description, &role.Systemed, &role.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

// DeleteRole soft-deletes a role. Systemed roles are refused.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	role, err := r.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.Systemed {
		return ErrSystemedRole
	}
	_, err = r.pool.Exec(ctx, `UPDATE roles SET deleted_at = now() WHERE id = $1`, id)
	return err
}

// RestoreRole clears a role's soft-delete timestamp.
func (r *Repository) RestoreRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET deleted_at = NULL WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetRolePermissions converges a role's grants to exactly the given IDs
// using an add-new/remove-stale update against the relation table.
func (r *Repository) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	role, err := r.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	current := make(map[int64]struct{}, len(role.Permissions))
	for _, perm := range role.Permissions {
		current[perm.ID] = struct{}{}
	}
	keep := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		keep[id] = struct{}{}
		if _, ok := current[id]; !ok {
			if _, err := r.pool.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				roleID, id); err != nil {
				return err
			}
		}
	}
	for id := range current {
		if _, ok := keep[id]; !ok {
			if _, err := r.pool.Exec(ctx,
				`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
				roleID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListPermissions returns all persisted permissions.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, label, description, action, subject FROM permissions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}
