package records

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/record"
)

type row struct {
	rec       *record.Record
	changedAt time.Time
}

// MemoryRepository keeps records in process memory. It backs the server
// when no database DSN is configured and the end-to-end tests.
type MemoryRepository struct {
	mu     sync.Mutex
	tables map[string]map[string]*row
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tables: map[string]map[string]*row{}}
}

func (m *MemoryRepository) Upsert(_ context.Context, table string, rec *record.Record, changedAt time.Time) (*record.Record, Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsert(table, rec, changedAt)
}

func (m *MemoryRepository) upsert(table string, rec *record.Record, changedAt time.Time) (*record.Record, Outcome, error) {
	rows, ok := m.tables[table]
	if !ok {
		rows = map[string]*row{}
		m.tables[table] = rows
	}

	next := rec.Clone()
	cur, exists := rows[rec.ID]
	if !exists {
		if next.CreatedAt.IsZero() {
			next.CreatedAt = next.UpdatedAt
		}
		rows[rec.ID] = &row{rec: next, changedAt: changedAt}
		return next.Clone(), Inserted, nil
	}

	if cur.rec.OwnerID != rec.OwnerID {
		return nil, Stale, fmt.Errorf("%w: %s/%s", common.ErrPermissionDenied, table, rec.ID)
	}
	if next.UpdatedAt.Before(cur.rec.UpdatedAt) {
		return cur.rec.Clone(), Stale, nil
	}
	next.CreatedAt = cur.rec.CreatedAt
	rows[rec.ID] = &row{rec: next, changedAt: changedAt}
	return next.Clone(), Updated, nil
}

func (m *MemoryRepository) SoftDelete(_ context.Context, table string, rec *record.Record, changedAt time.Time) (*record.Record, Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.tables[table][rec.ID]; ok && cur.rec.OwnerID == rec.OwnerID && !rec.UpdatedAt.Before(cur.rec.UpdatedAt) {
		cur.rec.Deleted = true
		cur.rec.UpdatedAt = rec.UpdatedAt
		cur.changedAt = changedAt
		return cur.rec.Clone(), Updated, nil
	}

	tomb := rec.Clone()
	tomb.Deleted = true
	return m.upsert(table, tomb, changedAt)
}

func (m *MemoryRepository) ChangesSince(_ context.Context, table, ownerID string, since time.Time) ([]*record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed []*row
	for _, r := range m.tables[table] {
		if r.rec.OwnerID == ownerID && r.changedAt.After(since) {
			changed = append(changed, r)
		}
	}
	sort.Slice(changed, func(i, j int) bool {
		if changed[i].changedAt.Equal(changed[j].changedAt) {
			return changed[i].rec.ID < changed[j].rec.ID
		}
		return changed[i].changedAt.Before(changed[j].changedAt)
	})

	result := make([]*record.Record, 0, len(changed))
	for _, r := range changed {
		result = append(result, r.rec.Clone())
	}
	return result, nil
}
