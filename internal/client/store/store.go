// Package store is the local persistence layer of the client. It wraps the
// SQLite repositories with per-table locking, timestamp stamping and the
// transactional operations the sync engine relies on.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/client/migrations"
	"github.com/dmitrijs2005/herpsync/internal/client/models"
	"github.com/dmitrijs2005/herpsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/herpsync/internal/client/repositories/pending"
	"github.com/dmitrijs2005/herpsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/dbx"
	"github.com/dmitrijs2005/herpsync/internal/record"
)

// Metadata keys.
const (
	KeyDeviceID    = "device_id"
	KeyLastSyncAt  = "last_sync_at"
	KeySyncVersion = "sync_version"
	watermarkKey   = "watermark:"
)

const pendingLock = "pending_changes"

// Stamp decides what updated_at a write carries.
type Stamp struct {
	at       time.Time
	preserve bool
}

// Now stamps the write with the store clock.
func Now() Stamp { return Stamp{} }

// Preserve keeps the supplied timestamp, as needed when applying remote
// snapshots.
func Preserve(t time.Time) Stamp { return Stamp{at: t, preserve: true} }

// ResolveFunc picks the record that should survive when a remote snapshot
// meets the local one. local is nil when the record is not stored yet.
// Returning local (or nil) leaves the store untouched.
type ResolveFunc func(local, remote *record.Record) *record.Record

type Store struct {
	db    *sql.DB
	clock common.Clock
	locks map[string]*sync.Mutex
}

// Open opens the database at dsn and applies migrations.
func Open(ctx context.Context, dsn string, clock common.Clock) (*Store, error) {
	db, err := dbx.OpenSQLite(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	return New(db, clock), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, clock common.Clock) *Store {
	locks := map[string]*sync.Mutex{pendingLock: {}}
	for _, t := range record.Tables() {
		locks[t] = &sync.Mutex{}
	}
	return &Store{db: db, clock: clock, locks: locks}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Tables lists the entity tables the store manages.
func (s *Store) Tables() []string {
	return record.Tables()
}

func (s *Store) lock(name string) (func(), error) {
	mu, ok := s.locks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownTable, name)
	}
	mu.Lock()
	return mu.Unlock, nil
}

func (s *Store) stamp(rec *record.Record, st Stamp) {
	if st.preserve {
		rec.UpdatedAt = st.at.UTC()
	} else {
		rec.UpdatedAt = record.Truncate(s.clock.Now())
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
}

// Upsert inserts or replaces rec and returns the stored copy.
func (s *Store) Upsert(ctx context.Context, table string, rec *record.Record, st Stamp) (*record.Record, error) {
	unlock, err := s.lock(table)
	if err != nil {
		return nil, err
	}
	defer unlock()

	stored := rec.Clone()
	s.stamp(stored, st)
	if err := records.NewSQLiteRepository(s.db).Upsert(ctx, table, stored); err != nil {
		return nil, storageErr(err)
	}
	return stored, nil
}

// WriteLocal stores rec with its own timestamps and queues the matching
// change for upload, both in one transaction.
func (s *Store) WriteLocal(ctx context.Context, table string, rec *record.Record, action record.Action) (*record.Record, error) {
	unlock, err := s.lock(table)
	if err != nil {
		return nil, err
	}
	defer unlock()
	unlockPending, _ := s.lock(pendingLock)
	defer unlockPending()

	stored := rec.Clone()
	s.stamp(stored, Preserve(rec.UpdatedAt))
	change := models.NewPendingChange(table, action, stored, s.clock.Now())

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := records.NewSQLiteRepository(tx).Upsert(ctx, table, stored); err != nil {
			return err
		}
		_, err := pending.NewSQLiteRepository(tx).Enqueue(ctx, change)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return stored, nil
}

func (s *Store) Get(ctx context.Context, table, id string) (*record.Record, error) {
	rec, err := records.NewSQLiteRepository(s.db).Get(ctx, table, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return rec, nil
}

// ListOptions narrows List.
type ListOptions struct {
	OwnerID        string
	IncludeDeleted bool
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, table string, opts ListOptions) ([]*record.Record, error) {
	list, err := records.NewSQLiteRepository(s.db).List(ctx, table, records.Filter{
		OwnerID:        opts.OwnerID,
		IncludeDeleted: opts.IncludeDeleted,
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return list, nil
}

func (s *Store) Count(ctx context.Context, table string, opts ListOptions) (int, error) {
	n, err := records.NewSQLiteRepository(s.db).Count(ctx, table, records.Filter{
		OwnerID:        opts.OwnerID,
		IncludeDeleted: opts.IncludeDeleted,
	})
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

// SoftDelete marks the record deleted and moves updated_at forward.
func (s *Store) SoftDelete(ctx context.Context, table, id string) (*record.Record, error) {
	unlock, err := s.lock(table)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var stored *record.Record
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)
		cur, err := repo.Get(ctx, table, id)
		if err != nil {
			return err
		}
		cur.Deleted = true
		cur.UpdatedAt = record.Advance(cur.UpdatedAt, s.clock.Now())
		stored = cur
		return repo.Upsert(ctx, table, cur)
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return stored, nil
}

// ApplyRemote merges a remote snapshot into table under resolve. The read,
// the decision and the write happen in one transaction while the table is
// locked. It reports whether the local row changed.
func (s *Store) ApplyRemote(ctx context.Context, table string, remote *record.Record, resolve ResolveFunc) (bool, error) {
	unlock, err := s.lock(table)
	if err != nil {
		return false, err
	}
	defer unlock()

	applied := false
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)
		local, err := repo.Get(ctx, table, remote.ID)
		switch {
		case errors.Is(err, common.ErrNotFound):
			local = nil
		case err != nil:
			return err
		}

		winner := resolve(local, remote)
		if winner == nil || winner == local {
			return nil
		}
		if local != nil && winner.UpdatedAt.Before(local.UpdatedAt) {
			return nil
		}
		applied = true
		return repo.Upsert(ctx, table, winner)
	})
	if err != nil {
		return false, storageErr(err)
	}
	return applied, nil
}

func (s *Store) Enqueue(ctx context.Context, c *models.PendingChange) (int64, error) {
	unlock, _ := s.lock(pendingLock)
	defer unlock()

	id, err := pending.NewSQLiteRepository(s.db).Enqueue(ctx, c)
	if err != nil {
		return 0, storageErr(err)
	}
	return id, nil
}

// PendingChanges returns the queue oldest first.
func (s *Store) PendingChanges(ctx context.Context) ([]*models.PendingChange, error) {
	list, err := pending.NewSQLiteRepository(s.db).List(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	return list, nil
}

func (s *Store) RemovePending(ctx context.Context, id int64) error {
	unlock, _ := s.lock(pendingLock)
	defer unlock()

	if err := pending.NewSQLiteRepository(s.db).Remove(ctx, id); err != nil {
		return storageErr(err)
	}
	return nil
}

// SavePendingRetries persists the retry counter of c.
func (s *Store) SavePendingRetries(ctx context.Context, c *models.PendingChange) error {
	unlock, _ := s.lock(pendingLock)
	defer unlock()

	if err := pending.NewSQLiteRepository(s.db).SetRetries(ctx, c.ID, c.Retries); err != nil {
		return storageErr(err)
	}
	return nil
}

func (s *Store) PendingCount(ctx context.Context) (int, error) {
	n, err := pending.NewSQLiteRepository(s.db).Count(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

// Watermark returns the last successful pull time for owner, or the Unix
// epoch when the owner has never synced.
func (s *Store) Watermark(ctx context.Context, ownerID string) (time.Time, error) {
	raw, ok, err := s.Meta(ctx, watermarkKey+ownerID)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Unix(0, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad watermark %q: %w", common.ErrStorage, raw, err)
	}
	return t.UTC(), nil
}

func (s *Store) SetWatermark(ctx context.Context, ownerID string, t time.Time) error {
	return s.SetMeta(ctx, watermarkKey+ownerID, []byte(t.UTC().Format(time.RFC3339Nano)))
}

// LastSyncAt returns when the last sync completed, zero if never.
func (s *Store) LastSyncAt(ctx context.Context) (time.Time, error) {
	raw, ok, err := s.Meta(ctx, KeyLastSyncAt)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad last_sync_at %q: %w", common.ErrStorage, raw, err)
	}
	return t.UTC(), nil
}

func (s *Store) SetLastSyncAt(ctx context.Context, t time.Time) error {
	return s.SetMeta(ctx, KeyLastSyncAt, []byte(t.UTC().Format(time.RFC3339Nano)))
}

func (s *Store) Meta(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := metadata.NewSQLiteRepository(s.db).Get(ctx, key)
	if err != nil {
		return nil, false, storageErr(err)
	}
	return v, ok, nil
}

func (s *Store) SetMeta(ctx context.Context, key string, value []byte) error {
	if err := metadata.NewSQLiteRepository(s.db).Set(ctx, key, value); err != nil {
		return storageErr(err)
	}
	return nil
}

// IncrementMeta bumps an integer counter atomically.
func (s *Store) IncrementMeta(ctx context.Context, key string) (int64, error) {
	var n int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = metadata.NewSQLiteRepository(tx).Increment(ctx, key)
		return err
	})
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

// MetaInt reads an integer counter, zero when unset.
func (s *Store) MetaInt(ctx context.Context, key string) (int64, error) {
	raw, ok, err := s.Meta(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: metadata[%s]: %w", common.ErrStorage, key, err)
	}
	return n, nil
}

func storageErr(err error) error {
	switch {
	case errors.Is(err, common.ErrNotFound),
		errors.Is(err, common.ErrUnknownTable),
		errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrStorage):
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrStorage, err)
}
