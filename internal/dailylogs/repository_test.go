package dailylogs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/platform/httpx"
)

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

// scriptedConn answers the statements issued while editing one log and
// records them in order.
type scriptedConn struct {
	exists   bool
	consumed bool
	stmts    []string
}

func (c *scriptedConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.stmts = append(c.stmts, sql)
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (c *scriptedConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (c *scriptedConn) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	c.stmts = append(c.stmts, sql)
	switch {
	case strings.Contains(sql, "FROM daily_logs"):
		return rowFunc(func(dest ...any) error {
			if !c.exists {
				return pgx.ErrNoRows
			}
			*dest[0].(*string) = "log-1"
			return nil
		})
	case strings.Contains(sql, "FROM ticket_logs"):
		return rowFunc(func(dest ...any) error {
			*dest[0].(*bool) = c.consumed
			return nil
		})
	}
	return rowFunc(func(...any) error { return errors.New("unexpected statement") })
}

func TestUpdateLocksLogBeforeConsumptionCheck(t *testing.T) {
	conn := &scriptedConn{exists: true}
	err := updateUnconsumed(context.Background(), conn, billing.DailyServiceLog{ID: "log-1", LogNumber: "DL-1"})
	require.NoError(t, err)

	require.Len(t, conn.stmts, 3)
	assert.Contains(t, conn.stmts[0], "FOR UPDATE")
	assert.Contains(t, conn.stmts[1], "ticket_logs")
	assert.Contains(t, conn.stmts[2], "UPDATE daily_logs")
}

func TestUpdateConsumedLogWritesNothing(t *testing.T) {
	conn := &scriptedConn{exists: true, consumed: true}
	err := updateUnconsumed(context.Background(), conn, billing.DailyServiceLog{ID: "log-1"})
	require.ErrorIs(t, err, ErrLogConsumed)
	assert.ErrorIs(t, err, httpx.ErrConflict)

	for _, stmt := range conn.stmts {
		assert.NotContains(t, stmt, "UPDATE daily_logs")
	}
}

func TestUpdateMissingLog(t *testing.T) {
	conn := &scriptedConn{}
	err := updateUnconsumed(context.Background(), conn, billing.DailyServiceLog{ID: "log-1"})
	require.ErrorIs(t, err, httpx.ErrNotFound)
	assert.Len(t, conn.stmts, 1)
}
