package agreements

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/platform/db"
	"github.com/petrofield/fieldops/internal/platform/httpx"
)

var (
	// ErrAgreementInUse is returned when tickets still bill against an agreement.
	ErrAgreementInUse = fmt.Errorf("sub-agreement has linked service tickets: %w", httpx.ErrConflict)
	// ErrCallOutInUse is returned when tickets still reference a call-out job.
	ErrCallOutInUse = fmt.Errorf("call-out job has linked service tickets: %w", httpx.ErrConflict)
	// ErrUnknownClient is returned when a record names a client that does not exist.
	ErrUnknownClient = httpx.NewValidationError("client_id", "The selected client id is invalid.")
)

// Repository defines persistence for sub-agreements, call-out jobs and the
// agreement ledger journal.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	ListAgreements(ctx context.Context, req ListAgreementsRequest) ([]billing.SubAgreement, int, error)
	GetAgreement(ctx context.Context, id string) (*billing.SubAgreement, error)
	LockAgreement(ctx context.Context, id string) (*billing.SubAgreement, error)
	CreateAgreement(ctx context.Context, a billing.SubAgreement) (string, error)
	UpdateAgreement(ctx context.Context, id string, updates map[string]any) error
	SetBalance(ctx context.Context, id string, balance decimal.Decimal) error
	DeleteAgreement(ctx context.Context, id string) error
	LedgerEntries(ctx context.Context, agreementID string) ([]LedgerEntry, error)
	JournalTotals(ctx context.Context, agreementID string) ([]JournalTotal, error)

	ListCallOuts(ctx context.Context, req ListCallOutsRequest) ([]billing.CallOutJob, int, error)
	GetCallOut(ctx context.Context, id string) (*billing.CallOutJob, error)
	CreateCallOut(ctx context.Context, job billing.CallOutJob) (string, error)
	UpdateCallOut(ctx context.Context, id string, updates map[string]any) error
	DeleteCallOut(ctx context.Context, id string) error
}

// JournalTotal pairs an agreement with the sum of its journal deltas.
type JournalTotal struct {
	Agreement billing.SubAgreement
	Sum       decimal.Decimal
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const agreementColumns = `id::text, client_id::text, name, amount, balance, start_date, end_date, file_id::text, created_at, updated_at`

func scanAgreement(row pgx.Row) (*billing.SubAgreement, error) {
	var a billing.SubAgreement
	err := row.Scan(&a.ID, &a.ClientID, &a.Name, &a.Amount, &a.Balance, &a.StartDate, &a.EndDate, &a.FileID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sub-agreement: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	return &a, nil
}

func listWhere(clientID, pattern string, searchCols ...string) (string, []any, int) {
	var conditions []string
	var args []any
	argPos := 1
	if clientID != "" {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argPos))
		args = append(args, clientID)
		argPos++
	}
	if pattern != "" {
		ors := make([]string, len(searchCols))
		for i, col := range searchCols {
			ors[i] = fmt.Sprintf("%s ILIKE $%d", col, argPos)
		}
		conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
		args = append(args, pattern)
		argPos++
	}
	if len(conditions) == 0 {
		return "", args, argPos
	}
	return "WHERE " + strings.Join(conditions, " AND "), args, argPos
}

func (r *repository) ListAgreements(ctx context.Context, req ListAgreementsRequest) ([]billing.SubAgreement, int, error) {
	where, args, argPos := listWhere(req.ClientID, req.SearchPattern(), "name")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM sub_agreements "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM sub_agreements %s ORDER BY start_date DESC, id LIMIT $%d OFFSET $%d`, agreementColumns, where, argPos, argPos+1)
	rows, err := r.db.Query(ctx, query, append(args, req.Limit(), req.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []billing.SubAgreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

func (r *repository) GetAgreement(ctx context.Context, id string) (*billing.SubAgreement, error) {
	return scanAgreement(r.db.QueryRow(ctx, `SELECT `+agreementColumns+` FROM sub_agreements WHERE id = $1`, id))
}

func (r *repository) LockAgreement(ctx context.Context, id string) (*billing.SubAgreement, error) {
	return scanAgreement(r.db.QueryRow(ctx, `SELECT `+agreementColumns+` FROM sub_agreements WHERE id = $1 FOR UPDATE`, id))
}

func (r *repository) CreateAgreement(ctx context.Context, a billing.SubAgreement) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO sub_agreements (client_id, name, amount, balance, start_date, end_date, file_id)
		VALUES ($1, $2, $3, $3, $4, $5, $6)
		RETURNING id::text`,
		a.ClientID, a.Name, a.Amount, a.StartDate, a.EndDate, a.FileID).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return "", ErrUnknownClient
		}
		return "", err
	}
	return id, nil
}

func (r *repository) UpdateAgreement(ctx context.Context, id string, updates map[string]any) error {
	query, args := db.UpdateSQL("sub_agreements", id, updates)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sub-agreement %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `UPDATE sub_agreements SET balance = $2, updated_at = now() WHERE id = $1`, id, balance)
	return err
}

func (r *repository) DeleteAgreement(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sub_agreements WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrAgreementInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sub-agreement %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) LedgerEntries(ctx context.Context, agreementID string) ([]LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, ticket_id::text, delta, reason, created_at
		FROM agreement_ledger_entries
		WHERE agreement_id = $1
		ORDER BY id`, agreementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.TicketID, &e.Delta, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// JournalTotals reads every agreement (or the one named) with its journal sum
// in a single statement, so a concurrent ticket transaction is seen either
// entirely or not at all.
func (r *repository) JournalTotals(ctx context.Context, agreementID string) ([]JournalTotal, error) {
	query := `
		SELECT a.id::text, a.client_id::text, a.name, a.amount, a.balance, a.start_date, a.end_date,
		       a.file_id::text, a.created_at, a.updated_at, COALESCE(SUM(e.delta), 0)
		FROM sub_agreements a
		LEFT JOIN agreement_ledger_entries e ON e.agreement_id = a.id`
	var args []any
	if agreementID != "" {
		query += ` WHERE a.id = $1`
		args = append(args, agreementID)
	}
	query += ` GROUP BY a.id ORDER BY a.id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalTotal
	for rows.Next() {
		var t JournalTotal
		a := &t.Agreement
		if err := rows.Scan(&a.ID, &a.ClientID, &a.Name, &a.Amount, &a.Balance, &a.StartDate, &a.EndDate,
			&a.FileID, &a.CreatedAt, &a.UpdatedAt, &t.Sum); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const callOutColumns = `id::text, client_id::text, job_name, work_order_number, description, priority, status, start_date, end_date, documents, created_at, updated_at`

func scanCallOut(row pgx.Row) (*billing.CallOutJob, error) {
	var c billing.CallOutJob
	err := row.Scan(&c.ID, &c.ClientID, &c.JobName, &c.WorkOrderNumber, &c.Description, &c.Priority, &c.Status,
		&c.StartDate, &c.EndDate, &c.Documents, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("call-out job: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	if c.Documents == nil {
		c.Documents = []string{}
	}
	return &c, nil
}

func (r *repository) ListCallOuts(ctx context.Context, req ListCallOutsRequest) ([]billing.CallOutJob, int, error) {
	where, args, argPos := listWhere(req.ClientID, req.SearchPattern(), "job_name", "work_order_number")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM call_out_jobs "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM call_out_jobs %s ORDER BY start_date DESC, id LIMIT $%d OFFSET $%d`, callOutColumns, where, argPos, argPos+1)
	rows, err := r.db.Query(ctx, query, append(args, req.Limit(), req.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []billing.CallOutJob
	for rows.Next() {
		c, err := scanCallOut(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *repository) GetCallOut(ctx context.Context, id string) (*billing.CallOutJob, error) {
	return scanCallOut(r.db.QueryRow(ctx, `SELECT `+callOutColumns+` FROM call_out_jobs WHERE id = $1`, id))
}

func (r *repository) CreateCallOut(ctx context.Context, job billing.CallOutJob) (string, error) {
	docs := job.Documents
	if docs == nil {
		docs = []string{}
	}
	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO call_out_jobs (client_id, job_name, work_order_number, description, priority, status, start_date, end_date, documents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text`,
		job.ClientID, job.JobName, job.WorkOrderNumber, job.Description, job.Priority, job.Status,
		job.StartDate, job.EndDate, docs).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return "", ErrUnknownClient
		}
		return "", err
	}
	return id, nil
}

func (r *repository) UpdateCallOut(ctx context.Context, id string, updates map[string]any) error {
	query, args := db.UpdateSQL("call_out_jobs", id, updates)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("call-out job %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) DeleteCallOut(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM call_out_jobs WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrCallOutInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("call-out job %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}
