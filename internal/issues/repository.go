package issues

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

// ErrUnknownTicket is returned when an issue names a ticket that does not exist.
var ErrUnknownTicket = httpx.NewValidationError("ticket_id", "The selected ticket id is invalid.")

// Repository defines persistence for ticket issues.
type Repository interface {
	List(ctx context.Context, req ListIssuesRequest) ([]Issue, int, error)
	Get(ctx context.Context, id string) (*Issue, error)
	Create(ctx context.Context, issue Issue) (string, error)
	Update(ctx context.Context, id string, updates map[string]any) error
	Delete(ctx context.Context, id string) error
}

type repository struct {
	db db.DBTX
}

// NewRepository returns a Postgres backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const issueColumns = `id::text, ticket_id::text, description, status, remarks, date_reported, created_at, updated_at`

func scanIssue(row pgx.Row) (*Issue, error) {
	var i Issue
	if err := row.Scan(&i.ID, &i.TicketID, &i.Description, &i.Status, &i.Remarks, &i.DateReported, &i.CreatedAt, &i.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ticket issue: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	return &i, nil
}

func (r *repository) List(ctx context.Context, req ListIssuesRequest) ([]Issue, int, error) {
	var conditions []string
	var args []any
	argPos := 1
	if req.TicketID != "" {
		conditions = append(conditions, fmt.Sprintf("ticket_id = $%d", argPos))
		args = append(args, req.TicketID)
		argPos++
	}
	if req.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(req.Status))
		argPos++
	}
	if pattern := req.SearchPattern(); pattern != "" {
		conditions = append(conditions, fmt.Sprintf("(description ILIKE $%d OR remarks ILIKE $%d)", argPos, argPos))
		args = append(args, pattern)
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM ticket_issues "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ticket issues: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM ticket_issues %s ORDER BY date_reported DESC, created_at DESC LIMIT $%d OFFSET $%d",
		issueColumns, where, argPos, argPos+1)
	args = append(args, req.Limit(), req.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ticket issues: %w", err)
	}
	defer rows.Close()

	var out []Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *i)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id string) (*Issue, error) {
	return scanIssue(r.db.QueryRow(ctx, `SELECT `+issueColumns+` FROM ticket_issues WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, issue Issue) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO ticket_issues (ticket_id, description, status, remarks, date_reported)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text`,
		issue.TicketID, issue.Description, string(issue.Status), issue.Remarks, issue.DateReported,
	).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return "", ErrUnknownTicket
		}
		return "", fmt.Errorf("create ticket issue: %w", err)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id string, updates map[string]any) error {
	query, args := db.UpdateSQL("ticket_issues", id, updates)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update ticket issue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticket issue: %w", httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM ticket_issues WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ticket issue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticket issue: %w", httpx.ErrNotFound)
	}
	return nil
}
