package messages

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillcms/quill/internal/shared"
)

// Repository provides PostgreSQL backed persistence for direct messages.
// Reads are scoped to the requesting user; a row outside the caller's
// mailbox behaves as if it did not exist.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const messageColumns = `id, sender_id, recipient_id, subject, body, read_at, created_at`

// Create inserts a message.
func (r *Repository) Create(ctx context.Context, msg Message) (*Message, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO messages (sender_id, recipient_id, subject, body)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+messageColumns,
		msg.SenderID, msg.RecipientID, msg.Subject, msg.Body)
	return scanMessage(row)
}

// Inbox returns a page of messages received by userID, newest first.
func (r *Repository) Inbox(ctx context.Context, userID int64, page shared.Pagination) ([]Message, int, error) {
	return r.list(ctx, `recipient_id`, userID, page)
}

// Outbox returns a page of messages sent by userID, newest first.
func (r *Repository) Outbox(ctx context.Context, userID int64, page shared.Pagination) ([]Message, int, error) {
	return r.list(ctx, `sender_id`, userID, page)
}

// FindForUser fetches a message visible to userID as sender or recipient.
func (r *Repository) FindForUser(ctx context.Context, id, userID int64) (*Message, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages
		  WHERE id = $1 AND (sender_id = $2 OR recipient_id = $2)`, id, userID)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

// MarkRead stamps read_at on a message addressed to userID.
func (r *Repository) MarkRead(ctx context.Context, id, userID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET read_at = now()
		  WHERE id = $1 AND recipient_id = $2 AND read_at IS NULL`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Recall deletes an unread message sent by userID.
func (r *Repository) Recall(ctx context.Context, id, userID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM messages WHERE id = $1 AND sender_id = $2 AND read_at IS NULL`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UnreadCount returns the number of unread messages addressed to userID.
func (r *Repository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE recipient_id = $1 AND read_at IS NULL`, userID).Scan(&count)
	return count, err
}

func (r *Repository) list(ctx context.Context, column string, userID int64, page shared.Pagination) ([]Message, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE `+column+` = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE `+column+` = $1
		  ORDER BY id DESC LIMIT $2 OFFSET $3`,
		userID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var msgs []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, total, rows.Err()
}

func scanMessage(row pgx.Row) (*Message, error) {
	var msg Message
	err := row.Scan(&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Subject,
		&msg.Body, &msg.ReadAt, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
