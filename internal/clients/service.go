package clients

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

// Service implements client business rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new client service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// List returns a page of clients with their contacts.
func (s *Service) List(ctx context.Context, req ListClientsRequest) (shared.Page[Client], error) {
	items, total, err := s.repo.List(ctx, req)
	if err != nil {
		return shared.Page[Client]{}, err
	}
	return shared.NewPage(items, req.ListParams, total), nil
}

// Get returns one client.
func (s *Service) Get(ctx context.Context, id string) (*Client, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a client and its contacts.
func (s *Service) Create(ctx context.Context, req CreateClientRequest) (*Client, error) {
	name := strings.TrimSpace(req.Name)
	if err := s.ensureNameFree(ctx, name, ""); err != nil {
		return nil, err
	}

	var id string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		id, err = tx.Create(ctx, Client{Name: name, Logo: req.Logo})
		if err != nil {
			return err
		}
		return tx.ReplaceContacts(ctx, id, toContacts(req.Contacts))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("client created", slog.String("client_id", id))
	return s.repo.Get(ctx, id)
}

// Update edits a client. A provided contact list replaces the stored one.
func (s *Service) Update(ctx context.Context, id string, req UpdateClientRequest) (*Client, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, httpx.NewValidationError("name", "The name field is required.")
		}
		if err := s.ensureNameFree(ctx, name, id); err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if req.Logo != nil {
		updates["logo"] = *req.Logo
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if len(updates) > 0 {
			if err := tx.Update(ctx, id, updates); err != nil {
				return err
			}
		}
		if req.Contacts != nil {
			return tx.ReplaceContacts(ctx, id, toContacts(*req.Contacts))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a client that no longer owns any records.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("client deleted", slog.String("client_id", id), slog.String("actor_id", shared.ActorID(ctx)))
	return nil
}

func (s *Service) ensureNameFree(ctx context.Context, name, selfID string) error {
	existing, err := s.repo.GetByName(ctx, name)
	switch {
	case errors.Is(err, httpx.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != selfID:
		return httpx.NewValidationError("name", "The name has already been taken.")
	}
	return nil
}

func toContacts(in []ContactInput) []ContactPerson {
	out := make([]ContactPerson, 0, len(in))
	for _, c := range in {
		out = append(out, ContactPerson{
			Name:     strings.TrimSpace(c.Name),
			Email:    strings.ToLower(strings.TrimSpace(c.Email)),
			Phone:    strings.TrimSpace(c.Phone),
			Position: strings.TrimSpace(c.Position),
		})
	}
	return out
}
