package records

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func versionAt(at time.Time, notes string) *record.Record {
	r := sample()
	r.UpdatedAt = at
	r.Data["notes"] = notes
	return r
}

func TestMemory_UpsertKeepsClientTimestamp(t *testing.T) {
	m := NewMemoryRepository()
	ctx := context.Background()

	got, outcome, err := m.Upsert(ctx, record.TableAnimals, sample(), stamp)
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)
	assert.Equal(t, stamp.Add(-time.Hour), got.UpdatedAt)
	assert.Equal(t, stamp.Add(-time.Hour), got.CreatedAt)

	again, outcome, err := m.Upsert(ctx, record.TableAnimals, sample(), stamp.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, Updated, outcome, "equal timestamps overwrite")
	assert.Equal(t, stamp.Add(-time.Hour), again.UpdatedAt)
}

func TestMemory_OlderWriteLoses(t *testing.T) {
	m := NewMemoryRepository()
	ctx := context.Background()
	t1, t2 := stamp.Add(-2*time.Minute), stamp.Add(-time.Minute)

	_, _, err := m.Upsert(ctx, record.TableAnimals, versionAt(t2, "newer"), stamp)
	require.NoError(t, err)

	got, outcome, err := m.Upsert(ctx, record.TableAnimals, versionAt(t1, "older"), stamp.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, Stale, outcome)
	assert.Equal(t, "newer", got.Field("notes"))
	assert.Equal(t, t2, got.UpdatedAt)

	list, err := m.ChangesSince(ctx, record.TableAnimals, "u1", stamp)
	require.NoError(t, err)
	assert.Empty(t, list, "a stale write is not a change")
}

func TestMemory_ForeignOwner(t *testing.T) {
	m := NewMemoryRepository()
	ctx := context.Background()

	_, _, err := m.Upsert(ctx, record.TableAnimals, sample(), stamp)
	require.NoError(t, err)

	foreign := sample()
	foreign.OwnerID = "u2"
	_, _, err = m.Upsert(ctx, record.TableAnimals, foreign, stamp)
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
	_, _, err = m.SoftDelete(ctx, record.TableAnimals, foreign, stamp)
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
}

func TestMemory_SoftDelete(t *testing.T) {
	m := NewMemoryRepository()
	ctx := context.Background()

	tomb, outcome, err := m.SoftDelete(ctx, record.TableAnimals, sample(), stamp)
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)
	assert.True(t, tomb.Deleted)

	_, _, err = m.Upsert(ctx, record.TableOffspringBatches, sample(), stamp)
	require.NoError(t, err)
	del, outcome, err := m.SoftDelete(ctx, record.TableOffspringBatches, versionAt(stamp, "ignored"), stamp.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, Updated, outcome)
	assert.True(t, del.Deleted)
	assert.Equal(t, stamp, del.UpdatedAt)
	assert.Empty(t, del.Field("notes"), "the stored fields are kept")
}

func TestMemory_SoftDeleteOlderThanStored(t *testing.T) {
	m := NewMemoryRepository()
	ctx := context.Background()

	_, _, err := m.Upsert(ctx, record.TableAnimals, versionAt(stamp, "edited"), stamp)
	require.NoError(t, err)

	got, outcome, err := m.SoftDelete(ctx, record.TableAnimals, versionAt(stamp.Add(-time.Minute), ""), stamp.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, Stale, outcome)
	assert.False(t, got.Deleted)
	assert.Equal(t, "edited", got.Field("notes"))
}

func TestMemory_ChangesSinceUsesArrivalTime(t *testing.T) {
	m := NewMemoryRepository()
	ctx := context.Background()

	for i, id := range []string{"a3", "a1", "a2"} {
		r := sample()
		r.ID = id
		_, _, err := m.Upsert(ctx, record.TableAnimals, r, stamp.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	other := sample()
	other.ID, other.OwnerID = "b1", "u2"
	_, _, err := m.Upsert(ctx, record.TableAnimals, other, stamp.Add(time.Hour))
	require.NoError(t, err)

	// Edited long ago, uploaded last.
	late := sample()
	late.ID = "a0"
	late.UpdatedAt = stamp.Add(-24 * time.Hour)
	_, _, err = m.Upsert(ctx, record.TableAnimals, late, stamp.Add(time.Minute))
	require.NoError(t, err)

	list, err := m.ChangesSince(ctx, record.TableAnimals, "u1", stamp)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a1", "a2", "a0"}, []string{list[0].ID, list[1].ID, list[2].ID})

	list[0].Data["name"] = "mutated"
	fresh, err := m.ChangesSince(ctx, record.TableAnimals, "u1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "Rex", fresh[1].Field("name"))
}
