package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillcms/quill/internal/platform/db"
	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/shared"
)

// Repository provides PostgreSQL backed persistence. It also implements
// rbac.PrincipalStore for the authorization guard.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, nickname, email, phone, password_hash, actived, created_at, updated_at, deleted_at`

// FindByID fetches an active user by ID.
func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
}

// FindByUsername fetches an active user by username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1 AND deleted_at IS NULL`, username)
}

// FindByCredential fetches a user by username, email or phone.
func (r *Repository) FindByCredential(ctx context.Context, credential string) (*User, error) {
	return r.findOne(ctx,
		`SELECT `+userColumns+` FROM users
		  WHERE (username = $1 OR email = $1 OR phone = $1) AND deleted_at IS NULL`, credential)
}

// ListUsers returns a page of active users plus the total count.
func (r *Repository) ListUsers(ctx context.Context, page shared.Pagination) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id LIMIT $1 OFFSET $2`,
		page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *user)
	}
	return users, total, rows.Err()
}

// CreateUser inserts a new account.
func (r *Repository) CreateUser(ctx context.Context, user User) (*User, error) {
	created, err := r.findOne(ctx,
		`INSERT INTO users (username, nickname, email, phone, password_hash, actived)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+userColumns,
		user.Username, user.Nickname, user.Email, user.Phone, user.PasswordHash, user.Actived)
	if err != nil && db.IsUniqueViolation(err) {
		return nil, errors.New("users: username, email or phone already taken")
	}
	return created, err
}

// UpdateUser changes mutable profile fields.
func (r *Repository) UpdateUser(ctx context.Context, id int64, nickname, email, phone string) (*User, error) {
	return r.findOne(ctx,
		`UPDATE users SET nickname = $2, email = $3, phone = $4, updated_at = now()
		  WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+userColumns,
		id, nickname, email, phone)
}

// UpdatePassword replaces the stored password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteUser soft-deletes an account.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RestoreUser clears a soft-delete timestamp.
func (r *Repository) RestoreUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET deleted_at = NULL WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AssignRole attaches a role to a user by role name.
func (r *Repository) AssignRole(ctx context.Context, userID int64, roleName string) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id)
		 SELECT $1, id FROM roles WHERE name = $2 AND deleted_at IS NULL
		 ON CONFLICT DO NOTHING`,
		userID, roleName)
	if err != nil {
		return err
	}
	_ = tag
	return nil
}

// FindPrincipal loads a user with roles (nested permissions eager) and
// directly granted permissions, always fresh from storage.
func (r *Repository) FindPrincipal(ctx context.Context, id int64) (*rbac.Principal, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	principal := &rbac.Principal{ID: user.ID, Username: user.Username}

	roleRows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name, r.label, r.description, r.systemed
		   FROM roles r
		   JOIN user_roles ur ON ur.role_id = r.id
		  WHERE ur.user_id = $1 AND r.deleted_at IS NULL`, id)
	if err != nil {
		return nil, err
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var role rbac.Role
		if err := roleRows.Scan(&role.ID, &role.Name, &role.Label, &role.Description, &role.Systemed); err != nil {
			return nil, err
		}
		principal.Roles = append(principal.Roles, role)
	}
	if err := roleRows.Err(); err != nil {
		return nil, err
	}

	for i := range principal.Roles {
		perms, err := r.permissions(ctx,
			`SELECT p.id, p.name, p.label, p.description, p.action, p.subject
			   FROM permissions p
			   JOIN role_permissions rp ON rp.permission_id = p.id
			  WHERE rp.role_id = $1`, principal.Roles[i].ID)
		if err != nil {
			return nil, err
		}
		principal.Roles[i].Permissions = perms
	}

	direct, err := r.permissions(ctx,
		`SELECT p.id, p.name, p.label, p.description, p.action, p.subject
		   FROM permissions p
		   JOIN user_permissions up ON up.permission_id = p.id
		  WHERE up.user_id = $1`, id)
	if err != nil {
		return nil, err
	}
	principal.Permissions = direct
	return principal, nil
}

func (r *Repository) permissions(ctx context.Context, query string, arg any) ([]rbac.Permission, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []rbac.Permission
	for rows.Next() {
		var perm rbac.Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Label, &perm.Description, &perm.Action, &perm.Subject); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

func (r *Repository) findOne(ctx context.Context, query string, args ...any) (*User, error) {
	row := r.pool.QueryRow(ctx, query, args...)
	user, err := scanUserRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func scanUser(rows pgx.Rows) (*User, error) {
	return scanUserRow(rows)
}

func scanUserRow(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Nickname, &user.Email, &user.Phone,
		&user.PasswordHash, &user.Actived, &user.CreatedAt, &user.UpdatedAt, &user.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
