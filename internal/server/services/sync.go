package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/dmitrijs2005/herpsync/internal/record"
	"github.com/dmitrijs2005/herpsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/herpsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/herpsync/internal/wire"
)

// Publisher fans record changes out to change-feed subscribers.
type Publisher interface {
	Publish(ownerID string, ev wire.FeedEvent)
}

// SyncService is the reference backend: it keeps the newest uploaded
// snapshot of every record, answers incremental pulls and announces every
// applied write on the feed.
type SyncService struct {
	repos     repomanager.RepositoryManager
	clock     common.Clock
	publisher Publisher
	logger    logging.Logger
}

func NewSyncService(repos repomanager.RepositoryManager, clock common.Clock, publisher Publisher, logger logging.Logger) *SyncService {
	return &SyncService{
		repos:     repos,
		clock:     clock,
		publisher: publisher,
		logger:    logger.With("module", "sync_service"),
	}
}

// stamp is the server arrival time, truncated to what PostgreSQL keeps.
func (s *SyncService) stamp() time.Time {
	return record.Truncate(s.clock.Now())
}

func validate(table string, r *record.Record) error {
	if !record.KnownTable(table) {
		return fmt.Errorf("%w: %q", common.ErrUnknownTable, table)
	}
	if r == nil || r.ID == "" || r.OwnerID == "" {
		return fmt.Errorf("%w: record id and owner_id are required", common.ErrValidation)
	}
	return nil
}

// incoming keeps the client's updated_at, which decides conflicts. Writes
// without one are stamped with the arrival time.
func (s *SyncService) incoming(r *record.Record, arrived time.Time) *record.Record {
	in := r.Clone()
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = arrived
	} else {
		in.UpdatedAt = record.Truncate(in.UpdatedAt)
	}
	return in
}

// Upsert stores r unless the server already holds a newer version of it, in
// which case the stored winner is returned and nothing is published.
func (s *SyncService) Upsert(ctx context.Context, table string, r *record.Record) (*record.Record, error) {
	if err := validate(table, r); err != nil {
		return nil, err
	}
	arrived := s.stamp()
	stored, outcome, err := s.repos.Records().Upsert(ctx, table, s.incoming(r, arrived), arrived)
	if err != nil {
		return nil, err
	}

	action := wire.FeedUpdate
	switch {
	case outcome == records.Stale:
		s.logger.Debug(ctx, "stale write ignored", "table", table, "id", r.ID, "updated_at", r.UpdatedAt)
		return stored, nil
	case stored.Deleted:
		action = wire.FeedDelete
	case outcome == records.Inserted:
		action = wire.FeedInsert
	}
	s.publish(ctx, table, action, stored)
	return stored, nil
}

func (s *SyncService) SoftDelete(ctx context.Context, table string, r *record.Record) (*record.Record, error) {
	if err := validate(table, r); err != nil {
		return nil, err
	}
	arrived := s.stamp()
	stored, outcome, err := s.repos.Records().SoftDelete(ctx, table, s.incoming(r, arrived), arrived)
	if err != nil {
		return nil, err
	}
	if outcome == records.Stale {
		s.logger.Debug(ctx, "stale delete ignored", "table", table, "id", r.ID, "updated_at", r.UpdatedAt)
		return stored, nil
	}
	s.publish(ctx, table, wire.FeedDelete, stored)
	return stored, nil
}

func (s *SyncService) ChangesSince(ctx context.Context, table, ownerID string, since time.Time) ([]*record.Record, error) {
	if !record.KnownTable(table) {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownTable, table)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner_id is required", common.ErrValidation)
	}
	return s.repos.Records().ChangesSince(ctx, table, ownerID, since)
}

func (s *SyncService) UpsertDevice(ctx context.Context, d record.Device) error {
	if d.DeviceID == "" || d.OwnerID == "" {
		return fmt.Errorf("%w: device_id and owner_id are required", common.ErrValidation)
	}
	if err := s.repos.Devices().Upsert(ctx, d); err != nil {
		return err
	}
	s.logger.Debug(ctx, "device reported", "device_id", d.DeviceID, "sync_version", d.SyncVersion)
	return nil
}

func (s *SyncService) Devices(ctx context.Context, ownerID string) ([]record.Device, error) {
	return s.repos.Devices().ListByOwner(ctx, ownerID)
}

func (s *SyncService) publish(ctx context.Context, table string, action wire.FeedAction, r *record.Record) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(r.OwnerID, wire.FeedEvent{
		Kind:      table,
		Action:    action,
		Record:    r,
		Timestamp: s.clock.Now(),
	})
	s.logger.Debug(ctx, "change published", "table", table, "action", action, "id", r.ID)
}
