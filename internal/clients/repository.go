package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petrofield/fieldops/internal/platform/db"
	"github.com/petrofield/fieldops/internal/platform/httpx"
)

// ErrInUse is returned when a client still owns agreements, jobs, logs or tickets.
var ErrInUse = fmt.Errorf("client has dependent records: %w", httpx.ErrConflict)

// Repository defines persistence for clients and their contacts.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id string) (*Client, error)
	GetByName(ctx context.Context, name string) (*Client, error)
	List(ctx context.Context, req ListClientsRequest) ([]Client, int, error)
	Create(ctx context.Context, client Client) (string, error)
	Update(ctx context.Context, id string, updates map[string]any) error
	ReplaceContacts(ctx context.Context, clientID string, contacts []ContactPerson) error
	Delete(ctx context.Context, id string) error
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

func (r *repository) Get(ctx context.Context, id string) (*Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT id::text, name, logo, created_at, updated_at FROM clients WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	contacts, err := r.contacts(ctx, []string{c.ID})
	if err != nil {
		return nil, err
	}
	c.Contacts = orEmpty(contacts[c.ID])
	return c, nil
}

func (r *repository) GetByName(ctx context.Context, name string) (*Client, error) {
	return scanClient(r.db.QueryRow(ctx, `SELECT id::text, name, logo, created_at, updated_at FROM clients WHERE lower(name) = lower($1)`, name))
}

func (r *repository) List(ctx context.Context, req ListClientsRequest) ([]Client, int, error) {
	where := ""
	var args []any
	argPos := 1
	if pattern := req.SearchPattern(); pattern != "" {
		where = fmt.Sprintf(`WHERE (c.name ILIKE $%d OR EXISTS (
			SELECT 1 FROM client_contacts cc WHERE cc.client_id = c.id AND (cc.name ILIKE $%d OR cc.email ILIKE $%d)))`, argPos, argPos, argPos)
		args = append(args, pattern)
		argPos++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM clients c "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT c.id::text, c.name, c.logo, c.created_at, c.updated_at
		FROM clients c %s ORDER BY c.name, c.id LIMIT $%d OFFSET $%d`, where, argPos, argPos+1)
	args = append(args, req.Limit(), req.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	ids := make([]string, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	contacts, err := r.contacts(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Contacts = orEmpty(contacts[out[i].ID])
	}
	return out, total, nil
}

func (r *repository) Create(ctx context.Context, client Client) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `INSERT INTO clients (name, logo) VALUES ($1, $2) RETURNING id::text`, client.Name, client.Logo).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, "clients_name_key") {
			return "", fmt.Errorf("client name: %w", httpx.ErrDuplicate)
		}
		return "", err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id string, updates map[string]any) error {
	query, args := db.UpdateSQL("clients", id, updates)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if db.IsUniqueViolation(err, "clients_name_key") {
			return fmt.Errorf("client name: %w", httpx.ErrDuplicate)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("client %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) ReplaceContacts(ctx context.Context, clientID string, contacts []ContactPerson) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM client_contacts WHERE client_id = $1`, clientID); err != nil {
		return err
	}
	for i, c := range contacts {
		_, err := r.db.Exec(ctx, `
			INSERT INTO client_contacts (client_id, position, name, email, phone, title)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			clientID, i, c.Name, c.Email, c.Phone, c.Position)
		if err != nil {
			return fmt.Errorf("insert contact %d: %w", i, err)
		}
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("client %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) contacts(ctx context.Context, clientIDs []string) (map[string][]ContactPerson, error) {
	out := make(map[string][]ContactPerson, len(clientIDs))
	if len(clientIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT client_id::text, id::text, name, email, phone, title
		FROM client_contacts
		WHERE client_id = ANY($1::uuid[])
		ORDER BY client_id, position`, clientIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var clientID string
		var c ContactPerson
		if err := rows.Scan(&clientID, &c.ID, &c.Name, &c.Email, &c.Phone, &c.Position); err != nil {
			return nil, err
		}
		out[clientID] = append(out[clientID], c)
	}
	return out, rows.Err()
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	if err := row.Scan(&c.ID, &c.Name, &c.Logo, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("client: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

func orEmpty(contacts []ContactPerson) []ContactPerson {
	if contacts == nil {
		return []ContactPerson{}
	}
	return contacts
}
