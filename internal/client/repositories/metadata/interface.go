// Package metadata is a small key/value table for sync bookkeeping such as
// watermarks and the device identity.
package metadata

import "context"

type Repository interface {
	// Get returns ok=false when key has never been set.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	// Increment adds one to an integer counter stored under key and returns
	// the new value. A missing key counts from zero.
	Increment(ctx context.Context, key string) (int64, error)
}
