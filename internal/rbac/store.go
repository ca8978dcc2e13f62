package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillcms/quill/internal/platform/db"
	"github.com/quillcms/quill/internal/shared"
)

// NewTxFunc returns a TxFunc running the reconciler store against a single
// pgx transaction on the given pool.
func NewTxFunc(pool *pgxpool.Pool) TxFunc {
	return func(ctx context.Context, fn func(Store) error) error {
		return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
			return fn(&pgxStore{tx: tx})
		})
	}
}

type pgxStore struct {
	tx pgx.Tx
}

func (s *pgxStore) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := s.tx.QueryRow(ctx,
		`SELECT id, name, label, description, systemed FROM roles WHERE name = $1 AND deleted_at IS NULL`,
		name,
	).Scan(&role.ID, &role.Name, &role.Label, &role.Description, &role.Systemed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	perms, err := s.rolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

func (s *pgxStore) CreateSystemedRole(ctx context.Context, def RoleDef) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx,
		`INSERT INTO roles (name, label, description, systemed) VALUES ($1, $2, $3, TRUE) RETURNING id`,
		def.Name, def.Label, def.Description,
	).Scan(&id)
	return id, err
}

func (s *pgxStore) MarkRoleSystemed(ctx context.Context, id int64) error {
	_, err := s.tx.Exec(ctx, `UPDATE roles SET systemed = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}

func (s *pgxStore) ListSystemedRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.tx.Query(ctx,
		`SELECT id, name, label, description, systemed FROM roles WHERE systemed AND deleted_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Label, &role.Description, &role.Systemed); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *pgxStore) DeleteRoles(ctx context.Context, ids []int64) error {
	_, err := s.tx.Exec(ctx, `DELETE FROM roles WHERE id = ANY($1)`, ids)
	return err
}

func (s *pgxStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, name, label, description, action, subject FROM permissions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *pgxStore) CreatePermission(ctx context.Context, def PermissionDef) error {
	_, err := s.tx.Exec(ctx,
		`INSERT INTO permissions (name, label, description, action, subject) VALUES ($1, $2, $3, $4, $5)`,
		def.Name, def.Label, def.Description, def.Rule.Action, def.Rule.Subject)
	return err
}

func (s *pgxStore) UpdatePermission(ctx context.Context, id int64, def PermissionDef) error {
	_, err := s.tx.Exec(ctx,
		`UPDATE permissions SET label = $2, description = $3, action = $4, subject = $5 WHERE id = $1`,
		id, def.Label, def.Description, def.Rule.Action, def.Rule.Subject)
	return err
}

func (s *pgxStore) DeletePermissions(ctx context.Context, ids []int64) error {
	_, err := s.tx.Exec(ctx, `DELETE FROM permissions WHERE id = ANY($1)`, ids)
	return err
}

func (s *pgxStore) PermissionIDsByName(ctx context.Context, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	if len(names) == 0 {
		return out, nil
	}
	rows, err := s.tx.Query(ctx, `SELECT id, name FROM permissions WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}

func (s *pgxStore) ListRolesWithPermissions(ctx context.Context, exceptName string) ([]Role, error) {
	rows, err := s.tx.Query(ctx,
		`SELECT id, name, label, description, systemed FROM roles WHERE name <> $1 AND deleted_at IS NULL`,
		exceptName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Label, &role.Description, &role.Systemed); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range roles {
		perms, err := s.rolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

func (s *pgxStore) AttachRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	for _, permID := range permissionIDs {
		if _, err := s.tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			roleID, permID); err != nil {
			return err
		}
	}
	return nil
}

func (s *pgxStore) DetachRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	_, err := s.tx.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = ANY($2)`,
		roleID, permissionIDs)
	return err
}

func (s *pgxStore) FindUserIDByUsername(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `SELECT id FROM users WHERE username = $1 AND deleted_at IS NULL`, username).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func (s *pgxStore) UserHasRole(ctx context.Context, userID, roleID int64) (bool, error) {
	var exists bool
	err := s.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role_id = $2)`,
		userID, roleID).Scan(&exists)
	return exists, err
}

func (s *pgxStore) AttachUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.tx.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID)
	return err
}

func (s *pgxStore) rolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := s.tx.Query(ctx,
		`SELECT p.id, p.name, p.label, p.description, p.action, p.subject
		   FROM permissions p
		   JOIN role_permissions rp ON rp.permission_id = p.id
		  WHERE rp.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Label, &perm.Description, &perm.Action, &perm.Subject); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}
