// Package records persists entity snapshots in the per-kind SQLite tables.
package records

import (
	"context"

	"github.com/dmitrijs2005/herpsync/internal/record"
)

// Filter narrows List and Count.
type Filter struct {
	OwnerID        string
	IncludeDeleted bool
}

type Repository interface {
	Upsert(ctx context.Context, table string, r *record.Record) error
	Get(ctx context.Context, table, id string) (*record.Record, error)
	List(ctx context.Context, table string, f Filter) ([]*record.Record, error)
	Count(ctx context.Context, table string, f Filter) (int, error)
}
