package clients

import "time"

// ContactPerson is a named contact at a client, kept in display order.
type ContactPerson struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Position string `json:"position"`
}

// Client is the root record every agreement, job, log and ticket refers to.
type Client struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Logo      *string         `json:"logo"`
	Contacts  []ContactPerson `json:"contacts"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
