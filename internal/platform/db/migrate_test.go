package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/fieldops?sslmode=disable", MigrateURL("postgres://u:p@localhost:5432/fieldops?sslmode=disable"))
	assert.Equal(t, "pgx5://u@db/fieldops", MigrateURL("postgresql://u@db/fieldops"))
	assert.Equal(t, "pgx5://already", MigrateURL("pgx5://already"))
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
}

func TestUpdateSQL(t *testing.T) {
	query, args := UpdateSQL("clients", "id-1", map[string]any{"name": "Acme", "logo": nil})
	assert.Equal(t, "UPDATE clients SET logo = $1, name = $2, updated_at = now() WHERE id = $3", query)
	assert.Equal(t, []any{nil, "Acme", "id-1"}, args)
}
