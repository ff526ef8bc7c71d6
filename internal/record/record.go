// Package record defines the entity snapshot shared by the local store, the
// sync engine and the remote backend.
package record

import (
	"fmt"
	"time"
)

// Table names of the synchronised entity kinds.
const (
	TableAnimals          = "animals"
	TableOffspringBatches = "offspring_batches"
)

// Tables lists every synchronised table in a stable order.
func Tables() []string {
	return []string{TableAnimals, TableOffspringBatches}
}

// KnownTable reports whether name is one of Tables.
func KnownTable(name string) bool {
	for _, t := range Tables() {
		if t == name {
			return true
		}
	}
	return false
}

// Action is the kind of local mutation recorded in the pending-change queue.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Record is a full snapshot of one entity. Data holds the domain fields as
// JSON-compatible values; the bookkeeping fields live outside it.
type Record struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Deleted   bool           `json:"deleted"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Data = cloneMap(r.Data)
	return &c
}

// Field returns the string form of a data field, or "" when it is absent
// or null.
func (r *Record) Field(name string) string {
	v, ok := r.Data[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Truncate brings t to UTC at microsecond precision, the resolution both the
// local store and PostgreSQL keep. updated_at values are always truncated so
// that a round trip through the backend compares equal.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Advance returns now when it is strictly after prev, otherwise the smallest
// step past prev. Timestamps stamped through it never move backwards.
func Advance(prev, now time.Time) time.Time {
	now = Truncate(now)
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
