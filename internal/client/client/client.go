// Package client talks to the remote sync backend.
//
// Backend is the transport-agnostic contract used by the sync engine and the
// device registry; GRPCClient implements it over gRPC. Transport failures
// surface as common.ErrUnavailable so callers can tell "offline" apart from
// rejected requests.
package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/record"
)

type Backend interface {
	Ping(ctx context.Context) error
	// Upsert uploads the full record. The backend keeps it only when its
	// updated_at is not older than the stored version.
	Upsert(ctx context.Context, table string, r *record.Record) error
	// SoftDelete uploads a tombstone, creating it when the backend has no
	// row for the record yet.
	SoftDelete(ctx context.Context, table string, r *record.Record) error
	// ChangesSince returns the owner's records that changed on the backend
	// after since.
	ChangesSince(ctx context.Context, table, ownerID string, since time.Time) ([]*record.Record, error)
	UpsertDevice(ctx context.Context, d record.Device) error
	Close() error
}
