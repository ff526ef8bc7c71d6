package models

import (
	"time"

	"github.com/dmitrijs2005/herpsync/internal/record"
)

// MaxPushRetries is how many failed push attempts a change survives. The
// change is dropped on the attempt that pushes its retry count past it.
const MaxPushRetries = 3

// ChangeState is the lifecycle state of a queued change.
type ChangeState string

const (
	ChangePending      ChangeState = "pending"
	ChangeAcknowledged ChangeState = "acknowledged"
	ChangeDropped      ChangeState = "dropped"
)

// PendingChange is one local mutation awaiting upload. Data is the full
// record as it stood when the change was enqueued.
type PendingChange struct {
	ID        int64
	Table     string
	Action    record.Action
	RecordID  string
	Data      *record.Record
	CreatedAt time.Time
	Retries   int
	State     ChangeState
}

// NewPendingChange snapshots rec for upload.
func NewPendingChange(table string, action record.Action, rec *record.Record, at time.Time) *PendingChange {
	return &PendingChange{
		Table:     table,
		Action:    action,
		RecordID:  rec.ID,
		Data:      rec.Clone(),
		CreatedAt: at,
		State:     ChangePending,
	}
}

// Ack marks the change as accepted by the backend.
func (c *PendingChange) Ack() {
	c.State = ChangeAcknowledged
}

// Fail records a failed push attempt. The change is dropped once its retries
// exceed MaxPushRetries.
func (c *PendingChange) Fail() {
	c.Retries++
	if c.Retries > MaxPushRetries {
		c.State = ChangeDropped
		return
	}
	c.State = ChangePending
}

// Terminal reports whether the change has left the queue's pending state
// and should be removed.
func (c *PendingChange) Terminal() bool {
	return c.State == ChangeAcknowledged || c.State == ChangeDropped
}
