// Package pending stores the queue of local mutations awaiting upload.
package pending

import (
	"context"

	"github.com/dmitrijs2005/herpsync/internal/client/models"
)

type Repository interface {
	Enqueue(ctx context.Context, c *models.PendingChange) (int64, error)
	// List returns queued changes oldest first.
	List(ctx context.Context) ([]*models.PendingChange, error)
	Remove(ctx context.Context, id int64) error
	SetRetries(ctx context.Context, id int64, retries int) error
	Count(ctx context.Context) (int, error)
}
