// Package feed applies change events pushed by the backend to the local
// store. Events are applied as they arrive, without conflict checks; a lost
// or malformed event is logged and left for the next pull to repair.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/client/store"
	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/dmitrijs2005/herpsync/internal/record"
	"github.com/dmitrijs2005/herpsync/internal/wire"
)

type Store interface {
	Upsert(ctx context.Context, table string, rec *record.Record, st store.Stamp) (*record.Record, error)
}

// Refresher holds aggregates derived from one table.
type Refresher interface {
	Invalidate()
}

// Notification tells UI callbacks that a remote change was applied.
type Notification struct {
	Kind      string
	Action    wire.FeedAction
	Record    *record.Record
	Timestamp time.Time
}

type Listener struct {
	store   Store
	ownerID string
	clock   common.Clock
	logger  logging.Logger

	mu         sync.Mutex
	callbacks  map[int]func(Notification)
	nextID     int
	refreshers map[string][]Refresher
}

func NewListener(st Store, ownerID string, clock common.Clock, logger logging.Logger) *Listener {
	return &Listener{
		store:      st,
		ownerID:    ownerID,
		clock:      clock,
		logger:     logger.With("module", "feed"),
		callbacks:  map[int]func(Notification){},
		refreshers: map[string][]Refresher{},
	}
}

// OnChange registers fn for applied changes and returns its removal func.
func (l *Listener) OnChange(fn func(Notification)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.callbacks[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.callbacks, id)
	}
}

// AddRefresher invalidates r whenever table changes through the feed.
func (l *Listener) AddRefresher(table string, r Refresher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshers[table] = append(l.refreshers[table], r)
}

// Apply writes one event to the store. Inserts and updates are stored as
// sent; a delete stores a tombstone copy of the record.
func (l *Listener) Apply(ctx context.Context, ev wire.FeedEvent) error {
	if !record.KnownTable(ev.Kind) {
		return fmt.Errorf("%w: %q", common.ErrUnknownTable, ev.Kind)
	}
	if ev.Record == nil || ev.Record.ID == "" {
		return fmt.Errorf("%w: event without record", common.ErrValidation)
	}
	if ev.Record.OwnerID != l.ownerID {
		return fmt.Errorf("%w: record %s belongs to another owner", common.ErrPermissionDenied, ev.Record.ID)
	}

	rec := ev.Record.Clone()
	switch ev.Action {
	case wire.FeedInsert, wire.FeedUpdate:
	case wire.FeedDelete:
		rec.Deleted = true
	default:
		return fmt.Errorf("%w: feed action %q", common.ErrValidation, ev.Action)
	}

	stamp := store.Preserve(rec.UpdatedAt)
	if rec.UpdatedAt.IsZero() {
		stamp = store.Now()
	}
	stored, err := l.store.Upsert(ctx, ev.Kind, rec, stamp)
	if err != nil {
		return err
	}

	l.mu.Lock()
	refreshers := append([]Refresher(nil), l.refreshers[ev.Kind]...)
	callbacks := make([]func(Notification), 0, len(l.callbacks))
	for id := 0; id < l.nextID; id++ {
		if fn, ok := l.callbacks[id]; ok {
			callbacks = append(callbacks, fn)
		}
	}
	l.mu.Unlock()

	for _, r := range refreshers {
		r.Invalidate()
	}
	n := Notification{Kind: ev.Kind, Action: ev.Action, Record: stored, Timestamp: l.clock.Now()}
	for _, fn := range callbacks {
		fn(n)
	}
	return nil
}

// HandleMessage decodes and applies one raw feed message. Failures are
// logged and otherwise ignored.
func (l *Listener) HandleMessage(ctx context.Context, data []byte) {
	ev, err := wire.DecodeFeedEvent(data)
	if err != nil {
		l.logger.Warn(ctx, "malformed feed event ignored", "error", err)
		return
	}
	if err := l.Apply(ctx, ev); err != nil {
		l.logger.Warn(ctx, "feed event not applied", "kind", ev.Kind, "action", ev.Action, "id", ev.Record.ID, "error", err)
		return
	}
	l.logger.Debug(ctx, "feed event applied", "kind", ev.Kind, "action", ev.Action, "id", ev.Record.ID)
}

// Source delivers raw feed messages until ctx is done.
type Source interface {
	Run(ctx context.Context, handle func(context.Context, []byte)) error
}

// Run consumes src until ctx is done.
func (l *Listener) Run(ctx context.Context, src Source) error {
	return src.Run(ctx, l.HandleMessage)
}
