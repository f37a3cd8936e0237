package users

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

// Repository defines data access for user accounts.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user User) (*User, error)
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

const userColumns = `id::text, name, email, password_hash, role, status, avatar, last_login_at, created_at, updated_at`

func (r *repository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if pattern := filter.SearchPattern(); pattern != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", argPos, argPos))
		args = append(args, pattern)
		argPos++
	}
	if filter.Role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argPos))
		args = append(args, filter.Role)
		argPos++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM users "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM users %s ORDER BY name, id LIMIT $%d OFFSET $%d`, userColumns, where, argPos, argPos+1)
	args = append(args, filter.Limit(), filter.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *repository) Create(ctx context.Context, user User) (*User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, role, status, avatar)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		user.Name, user.Email, user.PasswordHash, user.Role, user.Status, user.Avatar)
	created, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err, "users_email_key") {
			return nil, fmt.Errorf("email already registered: %w", httpx.ErrDuplicate)
		}
		return nil, err
	}
	return created, nil
}

func (r *repository) Update(ctx context.Context, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	query, args := db.UpdateSQL("users", id, updates)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if db.IsUniqueViolation(err, "users_email_key") {
			return fmt.Errorf("email already registered: %w", httpx.ErrDuplicate)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("user is referenced by other records: %w", httpx.ErrConflict)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Status,
		&u.Avatar, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}
