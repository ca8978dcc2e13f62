package messages

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/quill/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockRepository struct {
	messages map[int64]*Message
	nextID   int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{messages: make(map[int64]*Message), nextID: 1}
}

func (m *mockRepository) Create(ctx context.Context, msg Message) (*Message, error) {
	msg.ID = m.nextID
	m.nextID++
	m.messages[msg.ID] = &msg
	cp := msg
	return &cp, nil
}

func (m *mockRepository) Inbox(ctx context.Context, userID int64, page shared.Pagination) ([]Message, int, error) {
	var out []Message
	for _, msg := range m.messages {
		if msg.RecipientID == userID {
			out = append(out, *msg)
		}
	}
	return out, len(out), nil
}

func (m *mockRepository) Outbox(ctx context.Context, userID int64, page shared.Pagination) ([]Message, int, error) {
	var out []Message
	for _, msg := range m.messages {
		if msg.SenderID == userID {
			out = append(out, *msg)
		}
	}
	return out, len(out), nil
}

func (m *mockRepository) FindForUser(ctx context.Context, id, userID int64) (*Message, error) {
	msg, ok := m.messages[id]
	if !ok || (msg.SenderID != userID && msg.RecipientID != userID) {
		return nil, shared.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *mockRepository) MarkRead(ctx context.Context, id, userID int64) error {
	msg, ok := m.messages[id]
	if !ok || msg.RecipientID != userID || msg.ReadAt != nil {
		return shared.ErrNotFound
	}
	now := time.Now()
	msg.ReadAt = &now
	return nil
}

func (m *mockRepository) Recall(ctx context.Context, id, userID int64) error {
	msg, ok := m.messages[id]
	if !ok || msg.SenderID != userID || msg.ReadAt != nil {
		return shared.ErrNotFound
	}
	delete(m.messages, id)
	return nil
}

func (m *mockRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	count := 0
	for _, msg := range m.messages {
		if msg.RecipientID == userID && msg.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

type recordingDeliverer struct {
	delivered []int64
	err       error
}

func (d *recordingDeliverer) EnqueueMessageDeliver(ctx context.Context, messageID int64) error {
	if d.err != nil {
		return d.err
	}
	d.delivered = append(d.delivered, messageID)
	return nil
}

func newTestService(repo *mockRepository, deliverer Deliverer) *Service {
	return NewService(repo, deliverer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// ============================================================================
// TESTS
// ============================================================================

func TestSendStoresAndQueuesDelivery(t *testing.T) {
	repo := newMockRepository()
	deliverer := &recordingDeliverer{}
	svc := newTestService(repo, deliverer)

	msg, err := svc.Send(context.Background(), 1, 2, "Hi", "  hello there  ")
	require.NoError(t, err)
	assert.Equal(t, "hello there", msg.Body)
	assert.Equal(t, []int64{msg.ID}, deliverer.delivered)
}

func TestSendValidatesInput(t *testing.T) {
	svc := newTestService(newMockRepository(), &recordingDeliverer{})

	_, err := svc.Send(context.Background(), 1, 2, "", "   ")
	require.Error(t, err)

	_, err = svc.Send(context.Background(), 1, 1, "", "self-talk")
	require.Error(t, err)
}

func TestSendSurvivesDeliveryQueueFailure(t *testing.T) {
	repo := newMockRepository()
	deliverer := &recordingDeliverer{err: errors.New("redis down")}
	svc := newTestService(repo, deliverer)

	msg, err := svc.Send(context.Background(), 1, 2, "", "still stored")
	require.NoError(t, err)
	assert.NotNil(t, repo.messages[msg.ID])
}

func TestReadMarksRecipientCopy(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &recordingDeliverer{})
	sent, err := svc.Send(context.Background(), 1, 2, "", "hello")
	require.NoError(t, err)

	// The sender reading their own message does not mark it.
	_, err = svc.Read(context.Background(), sent.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, repo.messages[sent.ID].ReadAt)

	count, err := svc.UnreadCount(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = svc.Read(context.Background(), sent.ID, 2)
	require.NoError(t, err)
	assert.NotNil(t, repo.messages[sent.ID].ReadAt)

	count, err = svc.UnreadCount(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestReadDeniesThirdParty(t *testing.T) {
	svc := newTestService(newMockRepository(), &recordingDeliverer{})
	sent, err := svc.Send(context.Background(), 1, 2, "", "private")
	require.NoError(t, err)

	_, err = svc.Read(context.Background(), sent.ID, 3)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecallOnlyUnreadAndOnlySender(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &recordingDeliverer{})
	sent, err := svc.Send(context.Background(), 1, 2, "", "oops")
	require.NoError(t, err)

	// Recipient cannot recall.
	assert.ErrorIs(t, svc.Recall(context.Background(), sent.ID, 2), shared.ErrNotFound)

	// Once read, recall is refused.
	_, err = svc.Read(context.Background(), sent.ID, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Recall(context.Background(), sent.ID, 1), shared.ErrNotFound)

	fresh, err := svc.Send(context.Background(), 1, 2, "", "unsent")
	require.NoError(t, err)
	require.NoError(t, svc.Recall(context.Background(), fresh.ID, 1))
	assert.Nil(t, repo.messages[fresh.ID])
}
