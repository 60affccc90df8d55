package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service contains business logic for user management.
type Service struct {
	repo *Repository
}

// NewService creates a new user Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a new user account. An empty email is stored as NULL.
func (s *Service) Create(ctx context.Context, username, email, passwordHash string) (*User, error) {
	var emailPtr *string
	if e := strings.TrimSpace(email); e != "" {
		emailPtr = &e
	}
	u, err := s.repo.Create(ctx, username, emailPtr, passwordHash)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetByID returns a user by id.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByLogin returns a user by username, or by email when login contains "@".
func (s *Service) GetByLogin(ctx context.Context, login string) (*User, error) {
	if strings.Contains(login, "@") {
		return s.repo.GetByEmail(ctx, login)
	}
	return s.repo.GetByUsername(ctx, login)
}

// IsNotFound returns true when the error indicates a user was not found.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
