package users

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/shared"
)

// RepositoryPort defines the data access methods the service needs.
type RepositoryPort interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context, page shared.Pagination) ([]User, int, error)
	CreateUser(ctx context.Context, user User) (*User, error)
	UpdateUser(ctx context.Context, id int64, nickname, email, phone string) (*User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	DeleteUser(ctx context.Context, id int64) error
	RestoreUser(ctx context.Context, id int64) error
	AssignRole(ctx context.Context, userID int64, roleName string) error
}

// Service handles user account business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns a page of users with pagination metadata.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	users, total, err := s.repo.ListUsers(ctx, p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(page, perPage, total), nil
}

// GetUser fetches a user by ID.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// CreateUser creates an account with a hashed password and attaches the
// default role.
func (s *Service) CreateUser(ctx context.Context, username, password, nickname, email, phone string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("users: username required")
	}
	if len(password) < 8 {
		return nil, errors.New("users: password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.CreateUser(ctx, User{
		Username:     username,
		Nickname:     strings.TrimSpace(nickname),
		Email:        strings.TrimSpace(email),
		Phone:        strings.TrimSpace(phone),
		PasswordHash: string(hash),
		Actived:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.AssignRole(ctx, user.ID, rbac.RoleUser); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser changes profile fields.
func (s *Service) UpdateUser(ctx context.Context, id int64, nickname, email, phone string) (*User, error) {
	return s.repo.UpdateUser(ctx, id, strings.TrimSpace(nickname), strings.TrimSpace(email), strings.TrimSpace(phone))
}

// ChangePassword verifies the old password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return shared.ErrInvalidCredentials
	}
	if len(newPassword) < 8 {
		return errors.New("users: password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, id, string(hash))
}

// DeleteUser soft-deletes an account.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	return s.repo.DeleteUser(ctx, id)
}

// RestoreUser recovers a soft-deleted account.
func (s *Service) RestoreUser(ctx context.Context, id int64) error {
	return s.repo.RestoreUser(ctx, id)
}
