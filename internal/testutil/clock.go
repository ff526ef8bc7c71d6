// Package testutil holds deterministic stand-ins for clocks and id
// generators used throughout the test suites.
package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock is a manually driven clock. It is safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock returns a clock frozen at t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t.UTC()}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *StubClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// StubIDGenerator yields "<prefix>-1", "<prefix>-2", ...
type StubIDGenerator struct {
	mu     sync.Mutex
	Prefix string
	n      int
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	prefix := g.Prefix
	if prefix == "" {
		prefix = "id"
	}
	return fmt.Sprintf("%s-%d", prefix, g.n)
}

// Epoch is a fixed reference instant for tests.
var Epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
