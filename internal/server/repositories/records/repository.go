// Package records stores the authoritative copy of every synchronised record
// on the server.
package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/record"
)

// Outcome tells what a write did to the stored row.
type Outcome int

const (
	Inserted Outcome = iota
	Updated
	// Stale means the stored row has a newer updated_at and was kept.
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "stale"
	}
}

// Repository resolves writes by last-writer-wins on the client supplied
// updated_at: an incoming version replaces the stored one only when its
// updated_at is not older. changedAt is the server arrival time; it is what
// ChangesSince filters on, so an old edit that reaches the server late is
// still delivered to every device.
type Repository interface {
	// Upsert fails with common.ErrPermissionDenied when the id is owned by
	// someone else. A Stale outcome returns the stored winner.
	Upsert(ctx context.Context, table string, r *record.Record, changedAt time.Time) (*record.Record, Outcome, error)
	// SoftDelete marks the record deleted as of r.UpdatedAt, inserting a
	// tombstone when the server has never seen it.
	SoftDelete(ctx context.Context, table string, r *record.Record, changedAt time.Time) (*record.Record, Outcome, error)
	// ChangesSince returns the owner's records that changed on the server
	// after since, in arrival order.
	ChangesSince(ctx context.Context, table, ownerID string, since time.Time) ([]*record.Record, error)
}
