package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/dailylogs"
	"github.com/petrofield/fieldops/internal/platform/db"
	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

// ErrUnknownAgreement is returned when a movement names a missing sub-agreement.
var ErrUnknownAgreement = httpx.NewValidationError("sub_agreement_id", "The selected sub agreement id is invalid.")

// Repository defines persistence for service tickets, their consumed logs
// and the balance movements they cause.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	// Querier exposes the current connection or transaction for shared stores.
	Querier() shared.Querier

	List(ctx context.Context, req ListTicketsRequest) ([]billing.ServiceTicket, int, error)
	Get(ctx context.Context, id string) (*billing.ServiceTicket, error)
	GetForUpdate(ctx context.Context, id string) (*billing.ServiceTicket, error)
	Insert(ctx context.Context, t billing.ServiceTicket) (string, error)
	Update(ctx context.Context, t billing.ServiceTicket) error
	Delete(ctx context.Context, id string) error

	// LockBalances locks the given sub-agreements in ascending id order and
	// returns their balances. Missing ids are absent from the map.
	LockBalances(ctx context.Context, agreementIDs []string) (map[string]decimal.Decimal, error)
	ApplyMovement(ctx context.Context, m billing.Movement) error

	LoadLogs(ctx context.Context, ids []string, forUpdate bool) ([]billing.DailyServiceLog, error)
	// ConsumedLogs maps each of ids already referenced by a ticket to that ticket.
	ConsumedLogs(ctx context.Context, ids []string) (map[string]string, error)
	ClientName(ctx context.Context, id string) (string, error)
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

func (r *repository) Querier() shared.Querier {
	return r.db
}

const ticketColumns = `t.id::text, t.ticket_number, t.client_id::text, t.sub_agreement_id::text, t.call_out_job_id::text,
	t.ticket_date, t.status, t.amount, t.documents, t.created_at, t.updated_at,
	COALESCE((SELECT array_agg(tl.log_id::text ORDER BY tl.log_id) FROM ticket_logs tl WHERE tl.ticket_id = t.id), '{}')`

func scanTicket(row pgx.Row) (*billing.ServiceTicket, error) {
	var t billing.ServiceTicket
	var status string
	err := row.Scan(&t.ID, &t.TicketNumber, &t.ClientID, &t.SubAgreementID, &t.CallOutJobID,
		&t.Date, &status, &t.Amount, &t.Documents, &t.CreatedAt, &t.UpdatedAt, &t.RelatedLogIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, translate(billing.ErrTicketNotFound)
		}
		return nil, err
	}
	t.Status = billing.TicketStatus(status)
	if t.Documents == nil {
		t.Documents = []string{}
	}
	if t.RelatedLogIDs == nil {
		t.RelatedLogIDs = []string{}
	}
	return &t, nil
}

func (r *repository) List(ctx context.Context, req ListTicketsRequest) ([]billing.ServiceTicket, int, error) {
	var conditions []string
	var args []any
	argPos := 1
	add := func(cond string, value any) {
		conditions = append(conditions, fmt.Sprintf(cond, argPos))
		args = append(args, value)
		argPos++
	}
	if req.ClientID != "" {
		add("t.client_id = $%d", req.ClientID)
	}
	if req.SubAgreementID != "" {
		add("t.sub_agreement_id = $%d", req.SubAgreementID)
	}
	if req.CallOutJobID != "" {
		add("t.call_out_job_id = $%d", req.CallOutJobID)
	}
	if req.Status != "" {
		add("t.status = $%d", string(req.Status))
	}
	if pattern := req.SearchPattern(); pattern != "" {
		add("t.ticket_number ILIKE $%d", pattern)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM service_tickets t "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count service tickets: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM service_tickets t %s ORDER BY t.ticket_date DESC, t.created_at DESC LIMIT $%d OFFSET $%d`,
		ticketColumns, where, argPos, argPos+1)
	args = append(args, req.Limit(), req.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list service tickets: %w", err)
	}
	defer rows.Close()

	var out []billing.ServiceTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id string) (*billing.ServiceTicket, error) {
	return scanTicket(r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM service_tickets t WHERE t.id = $1`, id))
}

func (r *repository) GetForUpdate(ctx context.Context, id string) (*billing.ServiceTicket, error) {
	return scanTicket(r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM service_tickets t WHERE t.id = $1 FOR UPDATE OF t`, id))
}

func (r *repository) Insert(ctx context.Context, t billing.ServiceTicket) (string, error) {
	documents := t.Documents
	if documents == nil {
		documents = []string{}
	}
	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO service_tickets (ticket_number, client_id, sub_agreement_id, call_out_job_id, ticket_date, status, amount, documents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text`,
		t.TicketNumber, t.ClientID, t.SubAgreementID, t.CallOutJobID, t.Date, string(t.Status), t.Amount, documents,
	).Scan(&id)
	if err != nil {
		return "", mapWriteError(err)
	}
	for _, logID := range t.RelatedLogIDs {
		if _, err := r.db.Exec(ctx, `INSERT INTO ticket_logs (ticket_id, log_id) VALUES ($1, $2)`, id, logID); err != nil {
			if db.IsUniqueViolation(err, "ticket_logs_log_key") || db.IsUniqueViolation(err, "ticket_logs_pkey") {
				return "", ErrLogAlreadyConsumed
			}
			if db.IsForeignKeyViolation(err) {
				return "", httpx.NewValidationError("log_ids", "One or more selected daily service logs do not exist.")
			}
			return "", fmt.Errorf("insert ticket log: %w", err)
		}
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, t billing.ServiceTicket) error {
	documents := t.Documents
	if documents == nil {
		documents = []string{}
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE service_tickets
		SET ticket_number = $2, client_id = $3, sub_agreement_id = $4, call_out_job_id = $5,
		    ticket_date = $6, status = $7, amount = $8, documents = $9, updated_at = now()
		WHERE id = $1`,
		t.ID, t.TicketNumber, t.ClientID, t.SubAgreementID, t.CallOutJobID, t.Date, string(t.Status), t.Amount, documents)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return translate(billing.ErrTicketNotFound)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM service_tickets WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("service ticket is referenced: %w", httpx.ErrConflict)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return translate(billing.ErrTicketNotFound)
	}
	return nil
}

func mapWriteError(err error) error {
	switch {
	case db.IsUniqueViolation(err, "service_tickets_number_key"):
		return ErrDuplicateNumber
	case db.IsForeignKeyViolation(err):
		verr := &httpx.ValidationError{}
		verr.Add("client_id", "The selected client, sub agreement or call-out job does not exist.")
		return verr
	}
	return fmt.Errorf("write service ticket: %w", err)
}

func (r *repository) LockBalances(ctx context.Context, agreementIDs []string) (map[string]decimal.Decimal, error) {
	balances := make(map[string]decimal.Decimal, len(agreementIDs))
	if len(agreementIDs) == 0 {
		return balances, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT id::text, balance FROM sub_agreements
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE`, agreementIDs)
	if err != nil {
		return nil, fmt.Errorf("lock sub-agreements: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var balance decimal.Decimal
		if err := rows.Scan(&id, &balance); err != nil {
			return nil, err
		}
		balances[id] = balance
	}
	return balances, rows.Err()
}

func (r *repository) ApplyMovement(ctx context.Context, m billing.Movement) error {
	tag, err := r.db.Exec(ctx, `UPDATE sub_agreements SET balance = balance + $2, updated_at = now() WHERE id = $1`, m.AgreementID, m.Delta)
	if err != nil {
		return fmt.Errorf("apply movement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownAgreement
	}
	var ticketID *string
	if m.TicketID != "" {
		ticketID = &m.TicketID
	}
	_, err = r.db.Exec(ctx, `INSERT INTO agreement_ledger_entries (agreement_id, ticket_id, delta, reason) VALUES ($1, $2, $3, $4)`,
		m.AgreementID, ticketID, m.Delta, string(m.Reason))
	if err != nil {
		return fmt.Errorf("journal movement: %w", err)
	}
	return nil
}

func (r *repository) LoadLogs(ctx context.Context, ids []string, forUpdate bool) ([]billing.DailyServiceLog, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + dailylogs.LogColumns + ` FROM daily_logs WHERE id = ANY($1::uuid[]) ORDER BY id`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("load daily logs: %w", err)
	}
	defer rows.Close()
	var out []billing.DailyServiceLog
	for rows.Next() {
		l, err := dailylogs.ScanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *repository) ConsumedLogs(ctx context.Context, ids []string) (map[string]string, error) {
	consumed := make(map[string]string)
	if len(ids) == 0 {
		return consumed, nil
	}
	rows, err := r.db.Query(ctx, `SELECT log_id::text, ticket_id::text FROM ticket_logs WHERE log_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("consumed logs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var logID, ticketID string
		if err := rows.Scan(&logID, &ticketID); err != nil {
			return nil, err
		}
		consumed[logID] = ticketID
	}
	return consumed, rows.Err()
}

func (r *repository) ClientName(ctx context.Context, id string) (string, error) {
	var name string
	err := r.db.QueryRow(ctx, `SELECT name FROM clients WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", httpx.NewValidationError("client_id", "The selected client id is invalid.")
	}
	return name, err
}
