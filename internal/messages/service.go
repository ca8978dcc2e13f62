package messages

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/quillcms/quill/internal/shared"
)

// RepositoryPort defines the data access methods the service needs.
type RepositoryPort interface {
	Create(ctx context.Context, msg Message) (*Message, error)
	Inbox(ctx context.Context, userID int64, page shared.Pagination) ([]Message, int, error)
	Outbox(ctx context.Context, userID int64, page shared.Pagination) ([]Message, int, error)
	FindForUser(ctx context.Context, id, userID int64) (*Message, error)
	MarkRead(ctx context.Context, id, userID int64) error
	Recall(ctx context.Context, id, userID int64) error
	UnreadCount(ctx context.Context, userID int64) (int, error)
}

// Deliverer hands a stored message off to the background delivery pipeline.
// Implemented by jobs.Enqueuer.
type Deliverer interface {
	EnqueueMessageDeliver(ctx context.Context, messageID int64) error
}

// Service handles direct message business logic.
type Service struct {
	repo      RepositoryPort
	deliverer Deliverer
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, deliverer Deliverer, logger *slog.Logger) *Service {
	return &Service{repo: repo, deliverer: deliverer, logger: logger}
}

// Send stores a message and queues its delivery. A delivery queue failure
// does not fail the send; recipients still see the message in their inbox.
func (s *Service) Send(ctx context.Context, senderID, recipientID int64, subject, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("messages: body required")
	}
	if senderID == recipientID {
		return nil, errors.New("messages: cannot message yourself")
	}
	msg, err := s.repo.Create(ctx, Message{
		SenderID:    senderID,
		RecipientID: recipientID,
		Subject:     strings.TrimSpace(subject),
		Body:        body,
	})
	if err != nil {
		return nil, err
	}
	if s.deliverer != nil {
		if err := s.deliverer.EnqueueMessageDeliver(ctx, msg.ID); err != nil {
			s.logger.Warn("enqueue message delivery", slog.Any("error", err))
		}
	}
	return msg, nil
}

// Inbox returns a page of received messages with pagination metadata.
func (s *Service) Inbox(ctx context.Context, userID int64, page, perPage int) ([]Message, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	msgs, total, err := s.repo.Inbox(ctx, userID, p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return msgs, shared.NewPagination(page, perPage, total), nil
}

// Outbox returns a page of sent messages with pagination metadata.
func (s *Service) Outbox(ctx context.Context, userID int64, page, perPage int) ([]Message, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	msgs, total, err := s.repo.Outbox(ctx, userID, p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return msgs, shared.NewPagination(page, perPage, total), nil
}

// Read fetches a message visible to userID and marks it read when userID is
// the recipient.
func (s *Service) Read(ctx context.Context, id, userID int64) (*Message, error) {
	msg, err := s.repo.FindForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if msg.RecipientID == userID && msg.ReadAt == nil {
		if err := s.repo.MarkRead(ctx, id, userID); err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}
	return msg, nil
}

// Recall deletes an unread message the user sent.
func (s *Service) Recall(ctx context.Context, id, userID int64) error {
	return s.repo.Recall(ctx, id, userID)
}

// UnreadCount returns the user's unread message count.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}
