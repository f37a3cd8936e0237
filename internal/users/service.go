package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/petrofield/fieldops/internal/auth"
	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

// ErrSelfDelete is returned when a user tries to delete their own account.
var ErrSelfDelete = fmt.Errorf("cannot delete your own account: %w", httpx.ErrConflict)

// Service handles user management rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, filter ListFilter) (shared.Page[User], error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return shared.Page[User]{}, err
	}
	return shared.NewPage(items, filter.ListParams, total), nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, req CreateUserRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if existing, err := s.repo.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, httpx.NewValidationError("email", "The email has already been taken.")
	} else if err != nil && !errors.Is(err, httpx.ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, httpx.NewValidationError("password", err.Error())
	}
	status := req.Status
	if status == "" {
		status = StatusActive
	}
	created, err := s.repo.Create(ctx, User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         req.Role,
		Status:       status,
		Avatar:       req.Avatar,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", slog.String("user_id", created.ID), slog.String("role", string(created.Role)))
	return created, nil
}

// Update applies the provided fields to an account.
func (s *Service) Update(ctx context.Context, id string, req UpdateUserRequest) (*User, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email != strings.ToLower(current.Email) {
			if other, err := s.repo.GetByEmail(ctx, email); err == nil && other.ID != id {
				return nil, httpx.NewValidationError("email", "The email has already been taken.")
			} else if err != nil && !errors.Is(err, httpx.ErrNotFound) {
				return nil, err
			}
		}
		updates["email"] = email
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return nil, httpx.NewValidationError("password", err.Error())
		}
		updates["password_hash"] = hash
	}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.Avatar != nil {
		updates["avatar"] = *req.Avatar
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes an account. Actors cannot delete themselves.
func (s *Service) Delete(ctx context.Context, actor *shared.Principal, id string) error {
	if actor != nil && actor.UserID == id {
		return ErrSelfDelete
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", slog.String("user_id", id), slog.String("actor_id", shared.ActorID(ctx)))
	return nil
}
