package records

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/client/migrations"
	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/dbx"
	"github.com/dmitrijs2005/herpsync/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := dbx.OpenSQLite(ctx, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(ctx, db))
	return db
}

func animal(id, owner, name string, updated time.Time) *record.Record {
	return &record.Record{
		ID:        id,
		OwnerID:   owner,
		Data:      map[string]any{"name": name, "species": "Python regius"},
		CreatedAt: base,
		UpdatedAt: updated,
	}
}

func TestUpsert_InsertAndUpdate(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, record.TableAnimals, animal("a1", "u1", "Rex", base)))

	got, err := r.Get(ctx, record.TableAnimals, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Rex", got.Field("name"))
	assert.Equal(t, base, got.CreatedAt)
	assert.Equal(t, base, got.UpdatedAt)
	assert.False(t, got.Deleted)

	upd := animal("a1", "u1", "Max", base.Add(time.Minute))
	upd.Deleted = true
	require.NoError(t, r.Upsert(ctx, record.TableAnimals, upd))

	got, err = r.Get(ctx, record.TableAnimals, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Max", got.Field("name"))
	assert.Equal(t, base.Add(time.Minute), got.UpdatedAt)
	assert.True(t, got.Deleted)
}

func TestGet_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	_, err := r.Get(context.Background(), record.TableAnimals, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUnknownTable(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	err := r.Upsert(ctx, "animals; DROP TABLE metadata", animal("a1", "u1", "Rex", base))
	assert.ErrorIs(t, err, common.ErrUnknownTable)

	_, err = r.List(ctx, "users", Filter{})
	assert.ErrorIs(t, err, common.ErrUnknownTable)
}

func TestList_OrderAndFilters(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, record.TableAnimals, animal("a1", "u1", "Old", base)))
	require.NoError(t, r.Upsert(ctx, record.TableAnimals, animal("a2", "u1", "New", base.Add(2*time.Hour))))
	require.NoError(t, r.Upsert(ctx, record.TableAnimals, animal("a3", "u2", "Other owner", base.Add(time.Hour))))
	gone := animal("a4", "u1", "Gone", base.Add(3*time.Hour))
	gone.Deleted = true
	require.NoError(t, r.Upsert(ctx, record.TableAnimals, gone))

	list, err := r.List(ctx, record.TableAnimals, Filter{OwnerID: "u1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].ID)
	assert.Equal(t, "a1", list[1].ID)

	list, err = r.List(ctx, record.TableAnimals, Filter{OwnerID: "u1", IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a4", list[0].ID)

	n, err := r.Count(ctx, record.TableAnimals, Filter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = r.Count(ctx, record.TableOffspringBatches, Filter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert_WithinTx(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return NewSQLiteRepository(tx).Upsert(ctx, record.TableOffspringBatches, animal("b1", "u1", "Clutch 1", base))
	})
	require.NoError(t, err)

	got, err := NewSQLiteRepository(db).Get(ctx, record.TableOffspringBatches, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Clutch 1", got.Field("name"))
}
