package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/platform/storage"
	"github.com/petrofield/fieldops/internal/rbac"
	"github.com/petrofield/fieldops/internal/shared"
)

type memRepo struct {
	docs    map[string]Document
	failing bool
}

func newMemRepo() *memRepo {
	return &memRepo{docs: map[string]Document{}}
}

func (m *memRepo) List(ctx context.Context, req ListDocumentsRequest) ([]Document, int, error) {
	var out []Document
	for _, d := range m.docs {
		if req.Category != "" && d.Category != req.Category {
			continue
		}
		out = append(out, d)
	}
	return out, len(out), nil
}

func (m *memRepo) Get(ctx context.Context, id string) (*Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document: %w", httpx.ErrNotFound)
	}
	return &d, nil
}

func (m *memRepo) Create(ctx context.Context, doc Document) (string, error) {
	if m.failing {
		return "", httpx.NewValidationError("client_id", "The selected client id is invalid.")
	}
	doc.ID = uuid.NewString()
	doc.CreatedAt = time.Now()
	m.docs[doc.ID] = doc
	return doc.ID, nil
}

func (m *memRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.docs[id]; !ok {
		return fmt.Errorf("document: %w", httpx.ErrNotFound)
	}
	delete(m.docs, id)
	return nil
}

func upload(name, body string) Upload {
	return Upload{Filename: name, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func TestUploadStoresObjectAndMetadata(t *testing.T) {
	store := storage.NewMemory()
	svc := NewService(newMemRepo(), store, nil, 0)
	svc.now = func() time.Time { return time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC) }
	ctx := shared.ContextWithPrincipal(context.Background(), &shared.Principal{UserID: "user-1"})

	doc, err := svc.Upload(ctx, upload("Field Report.PDF", "%PDF-1.4 body"))
	require.NoError(t, err)
	assert.Equal(t, "Field Report.PDF", doc.Name)
	assert.Equal(t, "General", doc.Category)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.True(t, strings.HasPrefix(doc.ObjectKey, "documents/2024/06/"))
	assert.True(t, strings.HasSuffix(doc.ObjectKey, ".pdf"))
	require.NotNil(t, doc.UploadedBy)
	assert.Equal(t, "user-1", *doc.UploadedBy)
	assert.Equal(t, 1, store.Len())

	got, body, err := svc.Open(ctx, doc.ID)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))
	assert.Equal(t, doc.ID, got.ID)

	require.NoError(t, svc.Delete(ctx, doc.ID))
	assert.Equal(t, 0, store.Len())
}

func TestUploadRejectsTypeAndSize(t *testing.T) {
	svc := NewService(newMemRepo(), storage.NewMemory(), nil, 8)

	_, err := svc.Upload(context.Background(), upload("script.sh", "echo"))
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Upload(context.Background(), upload("big.pdf", "0123456789"))
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Upload(context.Background(), upload("empty.pdf", ""))
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUploadRemovesObjectWhenMetadataFails(t *testing.T) {
	store := storage.NewMemory()
	repo := newMemRepo()
	repo.failing = true
	svc := NewService(repo, store, nil, 0)

	_, err := svc.Upload(context.Background(), upload("log.xlsx", "PK.."))
	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.Equal(t, 0, store.Len())
}

func TestHandlerUploadAndDownload(t *testing.T) {
	store := storage.NewMemory()
	h := NewHandler(NewService(newMemRepo(), store, nil, 0), nil, rbac.Middleware{Service: rbac.NewService()})
	r := chi.NewRouter()
	r.Route("/documents", h.MountRoutes)
	principal := &shared.Principal{UserID: uuid.NewString(), Role: shared.RoleUser}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("category", "Agreements"))
	part, err := form.CreateFormFile("file", "msa.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.7 contract"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"category":"Agreements"`)
	assert.NotContains(t, rec.Body.String(), "object_key")

	var id string
	for docID := range h.service.repo.(*memRepo).docs {
		id = docID
	}
	req = httptest.NewRequest(http.MethodGet, "/documents/"+id+"/download", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.7 contract", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "msa.pdf")
}
