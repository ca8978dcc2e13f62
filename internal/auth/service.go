package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/quillcms/quill/internal/shared"
	"github.com/quillcms/quill/internal/users"
)

// Repository defines the account lookups the auth service needs.
type Repository interface {
	FindByCredential(ctx context.Context, credential string) (*users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *shared.TokenManager
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *shared.TokenManager) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Login validates credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, credential, password string) (*users.User, string, error) {
	user, err := s.repo.FindByCredential(ctx, credential)
	if err != nil {
		return nil, "", shared.ErrInvalidCredentials
	}
	if !user.Actived {
		return nil, "", shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", shared.ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// Refresh rotates a valid token for a fresh one.
func (s *Service) Refresh(ctx context.Context, token string) (string, error) {
	userID, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		return "", err
	}
	fresh, err := s.tokens.Issue(ctx, userID)
	if err != nil {
		return "", err
	}
	_ = s.tokens.Revoke(ctx, token)
	return fresh, nil
}
