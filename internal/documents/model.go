package documents

import (
	"io"
	"time"

	"github.com/petrofield/fieldops/internal/shared"
)

// Document is an archived file. The bytes live in object storage under ObjectKey.
type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	ObjectKey   string    `json:"-"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ClientID    *string   `json:"client_id,omitempty"`
	UploadedBy  *string   `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Upload describes one incoming file.
type Upload struct {
	Name        string
	Category    string
	ClientID    *string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ListDocumentsRequest filters document listings.
type ListDocumentsRequest struct {
	shared.ListParams
	ClientID string
	Category string
}
