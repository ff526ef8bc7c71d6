package migrations

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/herpsync/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUp_CreatesSchemaAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := dbx.OpenSQLite(ctx, "file:migrations_up?mode=memory&cache=shared")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Up(ctx, db))
	require.NoError(t, Up(ctx, db))

	for _, table := range []string{"animals", "offspring_batches", "pending_changes", "metadata"} {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}
