package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/platform/storage"
	"github.com/petrofield/fieldops/internal/shared"
)

// DefaultMaxSize caps uploads when no limit is configured.
const DefaultMaxSize int64 = 20 << 20

var allowedExtensions = map[string]struct{}{
	".pdf": {}, ".xlsx": {}, ".xls": {}, ".csv": {},
	".doc": {}, ".docx": {}, ".png": {}, ".jpg": {}, ".jpeg": {},
}

// Service archives documents in object storage.
type Service struct {
	repo    Repository
	store   storage.ObjectStore
	logger  *slog.Logger
	maxSize int64
	now     func() time.Time
}

// NewService constructs the service. maxSize <= 0 selects DefaultMaxSize.
func NewService(repo Repository, store storage.ObjectStore, logger *slog.Logger, maxSize int64) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Service{repo: repo, store: store, logger: logger, maxSize: maxSize, now: time.Now}
}

// MaxSize returns the upload limit in bytes.
func (s *Service) MaxSize() int64 { return s.maxSize }

// List returns a page of documents.
func (s *Service) List(ctx context.Context, req ListDocumentsRequest) (shared.Page[Document], error) {
	items, total, err := s.repo.List(ctx, req)
	if err != nil {
		return shared.Page[Document]{}, err
	}
	return shared.NewPage(items, req.ListParams, total), nil
}

// Get returns document metadata.
func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

// Upload stores the file then records its metadata. The object is removed
// again when the metadata cannot be saved.
func (s *Service) Upload(ctx context.Context, in Upload) (*Document, error) {
	ext := strings.ToLower(path.Ext(in.Filename))
	verr := &httpx.ValidationError{}
	if _, ok := allowedExtensions[ext]; !ok {
		verr.Add("file", "The file must be a file of type: pdf, xlsx, xls, csv, doc, docx, png, jpg, jpeg.")
	}
	if in.Size <= 0 {
		verr.Add("file", "The file must not be empty.")
	}
	if in.Size > s.maxSize {
		verr.Add("file", fmt.Sprintf("The file may not be greater than %d kilobytes.", s.maxSize>>10))
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = path.Base(in.Filename)
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = "General"
	}
	contentType := in.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			contentType = byExt
		}
	}

	now := s.now()
	key := fmt.Sprintf("documents/%04d/%02d/%s%s", now.Year(), now.Month(), uuid.NewString(), ext)
	if err := s.store.Put(ctx, key, in.Body, in.Size, contentType); err != nil {
		return nil, err
	}

	doc := Document{
		Name:        name,
		Category:    category,
		ObjectKey:   key,
		ContentType: contentType,
		Size:        in.Size,
		ClientID:    in.ClientID,
	}
	if actor := shared.ActorID(ctx); actor != "" {
		doc.UploadedBy = &actor
	}
	id, err := s.repo.Create(ctx, doc)
	if err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn("orphaned document object", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, err
	}
	s.logger.Info("document uploaded", slog.String("document_id", id), slog.Int64("size", in.Size))
	return s.repo.Get(ctx, id)
}

// Open returns the document metadata and a reader over its bytes. The
// caller closes the reader.
func (s *Service) Open(ctx context.Context, id string) (*Document, io.ReadCloser, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	body, _, err := s.store.Get(ctx, doc.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, fmt.Errorf("document content: %w", httpx.ErrNotFound)
		}
		return nil, nil, err
	}
	return doc, body, nil
}

// Delete removes the metadata and then the stored object.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, doc.ObjectKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Warn("delete document object failed", slog.String("key", doc.ObjectKey), slog.Any("error", err))
	}
	return nil
}
