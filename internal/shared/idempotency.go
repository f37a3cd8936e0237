package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx used by the stores in this package.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// CheckAndInsert claims key for module using q, which is typically the
// transaction doing the work so a rollback releases the key.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, q Querier, key, module string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := q.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Attach records the resource produced under key.
func (s *IdempotencyStore) Attach(ctx context.Context, q Querier, key, resourceID string) error {
	_, err := q.Exec(ctx, `UPDATE idempotency_keys SET resource_id = $2 WHERE key = $1`, key, resourceID)
	return err
}

// Lookup returns the resource recorded for key, if any.
func (s *IdempotencyStore) Lookup(ctx context.Context, key, module string) (string, error) {
	var resourceID *string
	err := s.pool.QueryRow(ctx, `SELECT resource_id::text FROM idempotency_keys WHERE key = $1 AND module = $2`, key, module).Scan(&resourceID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && resourceID == nil) {
		return "", ErrNotRecorded
	}
	if err != nil {
		return "", err
	}
	return *resourceID, nil
}

// ErrNotRecorded indicates no resource is attached to a key yet.
var ErrNotRecorded = errors.New("idempotency key has no recorded resource")

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
