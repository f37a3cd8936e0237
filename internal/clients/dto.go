package clients

import "github.com/petrofield/fieldops/internal/shared"

// ContactInput is one contact in a create or update body.
type ContactInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"omitempty,email,max=190"`
	Phone    string `json:"phone" validate:"omitempty,max=40"`
	Position string `json:"position" validate:"omitempty,max=120"`
}

// CreateClientRequest is the body of POST /clients.
type CreateClientRequest struct {
	Name     string         `json:"name" validate:"required,max=200"`
	Logo     *string        `json:"logo" validate:"omitempty,max=500"`
	Contacts []ContactInput `json:"contacts" validate:"omitempty,max=50,dive"`
}

// UpdateClientRequest is the body of PUT /clients/{id}. When Contacts is
// present it replaces the whole contact list.
type UpdateClientRequest struct {
	Name     *string         `json:"name" validate:"omitempty,max=200"`
	Logo     *string         `json:"logo" validate:"omitempty,max=500"`
	Contacts *[]ContactInput `json:"contacts" validate:"omitempty,max=50,dive"`
}

// ListClientsRequest carries list filters.
type ListClientsRequest struct {
	shared.ListParams
}
