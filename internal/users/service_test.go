package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	users      map[int64]*User
	roles      map[int64][]string
	nextUserID int64

	createError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:      make(map[int64]*User),
		roles:      make(map[int64][]string),
		nextUserID: 1,
	}
}

func (m *mockRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	user, ok := m.users[id]
	if !ok || user.DeletedAt != nil {
		return nil, shared.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (m *mockRepository) ListUsers(ctx context.Context, page shared.Pagination) ([]User, int, error) {
	var out []User
	for _, user := range m.users {
		if user.DeletedAt == nil {
			out = append(out, *user)
		}
	}
	return out, len(out), nil
}

func (m *mockRepository) CreateUser(ctx context.Context, user User) (*User, error) {
	if m.createError != nil {
		return nil, m.createError
	}
	user.ID = m.nextUserID
	m.nextUserID++
	m.users[user.ID] = &user
	cp := user
	return &cp, nil
}

func (m *mockRepository) UpdateUser(ctx context.Context, id int64, nickname, email, phone string) (*User, error) {
	user, ok := m.users[id]
	if !ok || user.DeletedAt != nil {
		return nil, shared.ErrNotFound
	}
	user.Nickname = nickname
	user.Email = email
	user.Phone = phone
	cp := *user
	return &cp, nil
}

func (m *mockRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	user, ok := m.users[id]
	if !ok || user.DeletedAt != nil {
		return shared.ErrNotFound
	}
	user.PasswordHash = hash
	return nil
}

func (m *mockRepository) DeleteUser(ctx context.Context, id int64) error {
	user, ok := m.users[id]
	if !ok || user.DeletedAt != nil {
		return shared.ErrNotFound
	}
	now := time.Now()
	user.DeletedAt = &now
	return nil
}

func (m *mockRepository) RestoreUser(ctx context.Context, id int64) error {
	user, ok := m.users[id]
	if !ok || user.DeletedAt == nil {
		return shared.ErrNotFound
	}
	user.DeletedAt = nil
	return nil
}

func (m *mockRepository) AssignRole(ctx context.Context, userID int64, roleName string) error {
	m.roles[userID] = append(m.roles[userID], roleName)
	return nil
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateUserHashesPasswordAndAssignsDefaultRole(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	user, err := svc.CreateUser(context.Background(), "alice", "s3cretpass", "Alice", "alice@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, user.Actived)
	assert.NotEqual(t, "s3cretpass", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cretpass")))
	assert.Equal(t, []string{rbac.RoleUser}, repo.roles[user.ID])
}

func TestCreateUserValidatesInput(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.CreateUser(context.Background(), "  ", "s3cretpass", "", "", "")
	require.Error(t, err)

	_, err = svc.CreateUser(context.Background(), "bob", "short", "", "", "")
	require.Error(t, err)
}

func TestChangePasswordVerifiesOldPassword(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	user, err := svc.CreateUser(context.Background(), "alice", "oldpassword", "", "", "")
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), user.ID, "wrongpassword", "newpassword1")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(context.Background(), user.ID, "oldpassword", "newpassword1"))
	stored := repo.users[user.ID]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("newpassword1")))
}

func TestChangePasswordRejectsShortReplacement(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	user, err := svc.CreateUser(context.Background(), "alice", "oldpassword", "", "", "")
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), user.ID, "oldpassword", "tiny")
	require.Error(t, err)
}

func TestDeleteAndRestoreUser(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	user, err := svc.CreateUser(context.Background(), "alice", "s3cretpass", "", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(context.Background(), user.ID))
	_, err = svc.GetUser(context.Background(), user.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, svc.RestoreUser(context.Background(), user.ID))
	_, err = svc.GetUser(context.Background(), user.ID)
	assert.NoError(t, err)
}
