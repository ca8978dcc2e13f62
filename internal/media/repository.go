package media

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillcms/quill/internal/shared"
)

// Repository provides PostgreSQL backed persistence for uploaded files.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const fileColumns = `id, user_id, filename, stored_as, mime_type, size, created_at`

// Create inserts a file row.
func (r *Repository) Create(ctx context.Context, file File) (*File, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO media_files (user_id, filename, stored_as, mime_type, size)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+fileColumns,
		file.UserID, file.Filename, file.StoredAs, file.MimeType, file.Size)
	return scanFile(row)
}

// Find fetches a file by ID.
func (r *Repository) Find(ctx context.Context, id int64) (*File, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM media_files WHERE id = $1`, id)
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

// FindByIDs fetches files matching the given IDs.
func (r *Repository) FindByIDs(ctx context.Context, ids []int64) ([]File, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+fileColumns+` FROM media_files WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}

// List returns a page of files plus the total count. A zero userID lists all.
func (r *Repository) List(ctx context.Context, userID int64, page shared.Pagination) ([]File, int, error) {
	where := ``
	args := []any{}
	if userID != 0 {
		where = ` WHERE user_id = $1`
		args = append(args, userID)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM media_files`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + fileColumns + ` FROM media_files` + where + ` ORDER BY id DESC`
	if userID != 0 {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var files []File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, 0, err
		}
		files = append(files, *file)
	}
	return files, total, rows.Err()
}

// Delete removes a file row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM media_files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanFile(row pgx.Row) (*File, error) {
	var file File
	err := row.Scan(&file.ID, &file.UserID, &file.Filename, &file.StoredAs,
		&file.MimeType, &file.Size, &file.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &file, nil
}
