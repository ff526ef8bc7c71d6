package common

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time so that timestamp-dependent logic can be tested.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock. Times are returned in UTC without a
// monotonic reading so they survive storage round-trips unchanged.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC().Round(0)
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	New() string
}

// UUIDGenerator issues random v4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string {
	return uuid.NewString()
}
