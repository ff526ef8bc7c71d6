// Package devices stores the device registry reported by clients.
package devices

import (
	"context"

	"github.com/dmitrijs2005/herpsync/internal/record"
)

type Repository interface {
	// Upsert replaces the device row; sync_version never decreases.
	Upsert(ctx context.Context, d record.Device) error
	ListByOwner(ctx context.Context, ownerID string) ([]record.Device, error)
}
