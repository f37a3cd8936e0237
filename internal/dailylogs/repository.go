package dailylogs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/platform/db"
	"github.com/petrofield/fieldops/internal/platform/httpx"
)

var (
	// ErrLogConsumed is returned when a log already billed by a ticket is edited or deleted.
	ErrLogConsumed = fmt.Errorf("daily service log is consumed by a service ticket: %w", httpx.ErrConflict)
	// ErrDuplicateNumber is returned when a client already has a log with the same number.
	ErrDuplicateNumber = fmt.Errorf("log number already used for this client: %w", httpx.ErrDuplicate)
)

// Repository defines persistence for daily service logs.
type Repository interface {
	List(ctx context.Context, req ListLogsRequest) ([]billing.DailyServiceLog, int, error)
	ListByClient(ctx context.Context, clientID string) ([]billing.DailyServiceLog, error)
	Get(ctx context.Context, id string) (*billing.DailyServiceLog, error)
	Create(ctx context.Context, log billing.DailyServiceLog) (string, error)
	Update(ctx context.Context, log billing.DailyServiceLog) error
	Delete(ctx context.Context, id string) error
	// ConsumingTickets returns, for the client, every ticket that consumed
	// logs with only ID and RelatedLogIDs populated.
	ConsumingTickets(ctx context.Context, clientID string) ([]billing.ServiceTicket, error)
	ConsumedBy(ctx context.Context, logID string) (*string, error)
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// LogColumns lists the daily_logs columns read by ScanLog.
const LogColumns = `id::text, log_number, client_id::text, field, well, contract, job_no, log_date, linked_job_id::text,
	personnel, equipment_used, approval, excel_file_id::text, pdf_file_id::text, created_at, updated_at`

// ScanLog reads one row selected with LogColumns.
func ScanLog(row pgx.Row) (*billing.DailyServiceLog, error) {
	var l billing.DailyServiceLog
	err := row.Scan(&l.ID, &l.LogNumber, &l.ClientID, &l.Field, &l.Well, &l.Contract, &l.JobNo, &l.Date, &l.LinkedJobID,
		&l.Personnel, &l.EquipmentUsed, &l.Approval, &l.ExcelFileID, &l.PDFFileID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("daily service log: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	if l.Personnel == nil {
		l.Personnel = []billing.PersonnelLogItem{}
	}
	if l.EquipmentUsed == nil {
		l.EquipmentUsed = []billing.EquipmentLogItem{}
	}
	return &l, nil
}

func scanLogs(rows pgx.Rows) ([]billing.DailyServiceLog, error) {
	defer rows.Close()
	var out []billing.DailyServiceLog
	for rows.Next() {
		l, err := ScanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListLogsRequest) ([]billing.DailyServiceLog, int, error) {
	var conditions []string
	var args []any
	argPos := 1
	if req.ClientID != "" {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argPos))
		args = append(args, req.ClientID)
		argPos++
	}
	if pattern := req.SearchPattern(); pattern != "" {
		conditions = append(conditions, fmt.Sprintf("(log_number ILIKE $%d OR well ILIKE $%d OR field ILIKE $%d OR job_no ILIKE $%d)", argPos, argPos, argPos, argPos))
		args = append(args, pattern)
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM daily_logs "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM daily_logs %s ORDER BY log_date DESC, log_number LIMIT $%d OFFSET $%d`, LogColumns, where, argPos, argPos+1)
	rows, err := r.db.Query(ctx, query, append(args, req.Limit(), req.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	logs, err := scanLogs(rows)
	return logs, total, err
}

func (r *repository) ListByClient(ctx context.Context, clientID string) ([]billing.DailyServiceLog, error) {
	rows, err := r.db.Query(ctx, `SELECT `+LogColumns+` FROM daily_logs WHERE client_id = $1 ORDER BY log_date, log_number`, clientID)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

func (r *repository) Get(ctx context.Context, id string) (*billing.DailyServiceLog, error) {
	return ScanLog(r.db.QueryRow(ctx, `SELECT `+LogColumns+` FROM daily_logs WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, l billing.DailyServiceLog) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO daily_logs (log_number, client_id, field, well, contract, job_no, log_date, linked_job_id,
		                        personnel, equipment_used, approval, excel_file_id, pdf_file_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id::text`,
		l.LogNumber, l.ClientID, l.Field, l.Well, l.Contract, l.JobNo, l.Date, l.LinkedJobID,
		l.Personnel, l.EquipmentUsed, l.Approval, l.ExcelFileID, l.PDFFileID).Scan(&id)
	if err != nil {
		return "", mapWriteErr(err)
	}
	return id, nil
}

// Update rewrites a log unless a ticket consumed it. The log row is locked
// before the consumption check so a concurrent generation, which holds the
// same lock while it inserts ticket_logs, is either fully visible or blocked.
func (r *repository) Update(ctx context.Context, l billing.DailyServiceLog) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return updateUnconsumed(ctx, tx, l)
	})
}

func updateUnconsumed(ctx context.Context, q db.DBTX, l billing.DailyServiceLog) error {
	var locked string
	err := q.QueryRow(ctx, `SELECT id::text FROM daily_logs WHERE id = $1 FOR UPDATE`, l.ID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("daily service log %s: %w", l.ID, httpx.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock daily service log: %w", err)
	}

	var consumed bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ticket_logs WHERE log_id = $1)`, l.ID).Scan(&consumed); err != nil {
		return fmt.Errorf("check log consumption: %w", err)
	}
	if consumed {
		return ErrLogConsumed
	}

	_, err = q.Exec(ctx, `
		UPDATE daily_logs SET log_number = $2, client_id = $3, field = $4, well = $5, contract = $6, job_no = $7,
		       log_date = $8, linked_job_id = $9, personnel = $10, equipment_used = $11, approval = $12,
		       excel_file_id = $13, pdf_file_id = $14, updated_at = now()
		WHERE id = $1`,
		l.ID, l.LogNumber, l.ClientID, l.Field, l.Well, l.Contract, l.JobNo, l.Date, l.LinkedJobID,
		l.Personnel, l.EquipmentUsed, l.Approval, l.ExcelFileID, l.PDFFileID)
	if err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM daily_logs WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrLogConsumed
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("daily service log %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) ConsumingTickets(ctx context.Context, clientID string) ([]billing.ServiceTicket, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.id::text, array_agg(tl.log_id::text ORDER BY tl.log_id)
		FROM service_tickets t
		JOIN ticket_logs tl ON tl.ticket_id = t.id
		WHERE t.client_id = $1
		GROUP BY t.id`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []billing.ServiceTicket
	for rows.Next() {
		t := billing.ServiceTicket{ClientID: clientID}
		if err := rows.Scan(&t.ID, &t.RelatedLogIDs); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) ConsumedBy(ctx context.Context, logID string) (*string, error) {
	var ticketID string
	err := r.db.QueryRow(ctx, `SELECT ticket_id::text FROM ticket_logs WHERE log_id = $1`, logID).Scan(&ticketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticketID, nil
}

func mapWriteErr(err error) error {
	switch {
	case db.IsUniqueViolation(err, "daily_logs_number_key"):
		return ErrDuplicateNumber
	case db.IsForeignKeyViolation(err):
		return httpx.NewValidationError("client_id", "The selected client id is invalid.")
	}
	return err
}
