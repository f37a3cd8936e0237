package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *TokenIssuer
	denylist *Denylist
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenIssuer, denylist *Denylist, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, denylist: denylist, logger: logger}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.Active() {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	token, claims, err := s.tokens.Issue(*user)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("record login time", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	user.LastLoginAt = &now
	return &Session{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAt.Time,
		User:      *user,
	}, nil
}

// Verify parses a bearer token and rejects revoked ones.
func (s *Service) Verify(ctx context.Context, raw string) (*shared.Principal, error) {
	principal, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}
	if s.denylist != nil {
		revoked, err := s.denylist.Revoked(ctx, principal.TokenID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return principal, nil
}

// Logout revokes the principal's token.
func (s *Service) Logout(ctx context.Context, principal *shared.Principal) error {
	if principal == nil || s.denylist == nil {
		return nil
	}
	return s.denylist.Revoke(ctx, principal.TokenID, principal.ExpiresAt)
}

// Me loads the current user.
func (s *Service) Me(ctx context.Context, principal *shared.Principal) (*User, error) {
	if principal == nil {
		return nil, ErrMissingToken
	}
	user, err := s.repo.FindByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.Active() {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// HashPassword hashes a plain password with bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
