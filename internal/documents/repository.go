package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petrofield/fieldops/internal/platform/db"
	"github.com/petrofield/fieldops/internal/platform/httpx"
)

// Repository defines persistence for document metadata.
type Repository interface {
	List(ctx context.Context, req ListDocumentsRequest) ([]Document, int, error)
	Get(ctx context.Context, id string) (*Document, error)
	Create(ctx context.Context, doc Document) (string, error)
	Delete(ctx context.Context, id string) error
}

type repository struct {
	db db.DBTX
}

// NewRepository returns a Postgres backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const documentColumns = `id::text, name, category, object_key, content_type, size_bytes, client_id::text, uploaded_by::text, created_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	if err := row.Scan(&d.ID, &d.Name, &d.Category, &d.ObjectKey, &d.ContentType, &d.Size, &d.ClientID, &d.UploadedBy, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) List(ctx context.Context, req ListDocumentsRequest) ([]Document, int, error) {
	var conditions []string
	var args []any
	argPos := 1
	if req.ClientID != "" {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argPos))
		args = append(args, req.ClientID)
		argPos++
	}
	if req.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argPos))
		args = append(args, req.Category)
		argPos++
	}
	if pattern := req.SearchPattern(); pattern != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argPos))
		args = append(args, pattern)
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM documents "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	query := fmt.Sprintf("SELECT %s FROM documents %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", documentColumns, where, argPos, argPos+1)
	args = append(args, req.Limit(), req.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id string) (*Document, error) {
	return scanDocument(r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, doc Document) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO documents (name, category, object_key, content_type, size_bytes, client_id, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text`,
		doc.Name, doc.Category, doc.ObjectKey, doc.ContentType, doc.Size, doc.ClientID, doc.UploadedBy,
	).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return "", httpx.NewValidationError("client_id", "The selected client id is invalid.")
		}
		return "", fmt.Errorf("create document: %w", err)
	}
	return id, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document: %w", httpx.ErrNotFound)
	}
	return nil
}
