// Package device owns the identity of this install and reports it to the
// backend together with its sync progress.
package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/client/store"
	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/dmitrijs2005/herpsync/internal/record"
)

// Store is the metadata surface the registry persists to.
type Store interface {
	Meta(ctx context.Context, key string) ([]byte, bool, error)
	SetMeta(ctx context.Context, key string, value []byte) error
	IncrementMeta(ctx context.Context, key string) (int64, error)
	MetaInt(ctx context.Context, key string) (int64, error)
	LastSyncAt(ctx context.Context) (time.Time, error)
}

// Reporter receives device metadata.
type Reporter interface {
	UpsertDevice(ctx context.Context, d record.Device) error
}

type Registry struct {
	store    Store
	reporter Reporter
	ownerID  string
	ids      common.IDGenerator
	logger   logging.Logger

	mu sync.Mutex
	id string
}

func NewRegistry(st Store, reporter Reporter, ownerID string, ids common.IDGenerator, logger logging.Logger) *Registry {
	return &Registry{
		store:    st,
		reporter: reporter,
		ownerID:  ownerID,
		ids:      ids,
		logger:   logger.With("module", "device"),
	}
}

// DeviceID returns the persisted identifier, generating and storing one on
// first use.
func (r *Registry) DeviceID(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.id != "" {
		return r.id, nil
	}

	raw, ok, err := r.store.Meta(ctx, store.KeyDeviceID)
	if err != nil {
		return "", err
	}
	if ok && len(raw) > 0 {
		r.id = string(raw)
		return r.id, nil
	}

	id := r.ids.New()
	if err := r.store.SetMeta(ctx, store.KeyDeviceID, []byte(id)); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	r.id = id
	r.logger.Info(ctx, "device id generated", "device_id", id)
	return id, nil
}

// Device assembles the current metadata of this install.
func (r *Registry) Device(ctx context.Context) (record.Device, error) {
	id, err := r.DeviceID(ctx)
	if err != nil {
		return record.Device{}, err
	}
	last, err := r.store.LastSyncAt(ctx)
	if err != nil {
		return record.Device{}, err
	}
	version, err := r.store.MetaInt(ctx, store.KeySyncVersion)
	if err != nil {
		return record.Device{}, err
	}
	return record.Device{DeviceID: id, OwnerID: r.ownerID, LastSyncAt: last, SyncVersion: version}, nil
}

// Register announces the device. Only a failure to establish the local
// identity is returned; backend errors are logged.
func (r *Registry) Register(ctx context.Context) error {
	d, err := r.Device(ctx)
	if err != nil {
		return err
	}
	if err := r.reporter.UpsertDevice(ctx, d); err != nil {
		r.logger.Warn(ctx, "device registration failed", "device_id", d.DeviceID, "error", err)
		return nil
	}
	r.logger.Debug(ctx, "device registered", "device_id", d.DeviceID)
	return nil
}

// ReportSync bumps the local sync counter and reports the sync at time at.
func (r *Registry) ReportSync(ctx context.Context, at time.Time) error {
	id, err := r.DeviceID(ctx)
	if err != nil {
		return err
	}
	version, err := r.store.IncrementMeta(ctx, store.KeySyncVersion)
	if err != nil {
		return err
	}
	return r.reporter.UpsertDevice(ctx, record.Device{
		DeviceID:    id,
		OwnerID:     r.ownerID,
		LastSyncAt:  at,
		SyncVersion: version,
	})
}
