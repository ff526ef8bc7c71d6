package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/herpsync/internal/client/models"
	"github.com/dmitrijs2005/herpsync/internal/client/store"
	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/dmitrijs2005/herpsync/internal/record"
)

// LocalStore is the part of the local store the record service writes
// through.
type LocalStore interface {
	Get(ctx context.Context, table, id string) (*record.Record, error)
	List(ctx context.Context, table string, opts store.ListOptions) ([]*record.Record, error)
	WriteLocal(ctx context.Context, table string, rec *record.Record, action record.Action) (*record.Record, error)
}

// RecordService is the local-first repository for one entity kind. Every
// operation reads and writes the local store only; mutations are queued
// for the sync engine.
type RecordService interface {
	Kind() models.Kind
	Create(ctx context.Context, fields map[string]any) (*record.Record, error)
	Read(ctx context.Context, id string) (*record.Record, error)
	Update(ctx context.Context, id string, patch map[string]any) (*record.Record, error)
	Delete(ctx context.Context, id string) (*record.Record, error)
	Restore(ctx context.Context, id string) (*record.Record, error)
	List(ctx context.Context, opts ListOptions) ([]*record.Record, error)
	Search(ctx context.Context, query string, opts ListOptions) ([]*record.Record, error)
	Statistics(ctx context.Context) (*Statistics, error)
	// Invalidate drops cached aggregates after out-of-band writes.
	Invalidate()
}

// Keys managed by the repository itself; callers cannot set them.
var reservedKeys = []string{"id", "owner_id", "created_at", "updated_at", "deleted"}

type recordService struct {
	store   LocalStore
	kind    models.Kind
	ownerID string
	clock   common.Clock
	ids     common.IDGenerator
	logger  logging.Logger

	mu sync.Mutex

	statsMu  sync.Mutex
	stats    *Statistics
	statsGen uint64
}

func NewRecordService(st LocalStore, kind models.Kind, ownerID string, clock common.Clock, ids common.IDGenerator, logger logging.Logger) RecordService {
	return &recordService{
		store:   st,
		kind:    kind,
		ownerID: ownerID,
		clock:   clock,
		ids:     ids,
		logger:  logger.With("table", kind.Table),
	}
}

func (s *recordService) Kind() models.Kind { return s.kind }

func (s *recordService) Create(ctx context.Context, fields map[string]any) (*record.Record, error) {
	data := sanitize(fields)
	for k, v := range data {
		if v == nil {
			delete(data, k)
		}
	}
	name, err := s.validName(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUnique(ctx, name, ""); err != nil {
		return nil, err
	}

	now := record.Truncate(s.clock.Now())
	rec := &record.Record{
		ID:        s.ids.New(),
		OwnerID:   s.ownerID,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored, err := s.store.WriteLocal(ctx, s.kind.Table, rec, record.ActionCreate)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", s.kind.Singular, err)
	}
	s.Invalidate()
	s.logger.Debug(ctx, "record created", "id", stored.ID)
	return stored, nil
}

func (s *recordService) Read(ctx context.Context, id string) (*record.Record, error) {
	rec, err := s.store.Get(ctx, s.kind.Table, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != s.ownerID {
		return nil, fmt.Errorf("%w: %s %s", common.ErrPermissionDenied, s.kind.Singular, id)
	}
	return rec, nil
}

// Update merges patch into the record. A nil value removes the field.
func (s *recordService) Update(ctx context.Context, id string, patch map[string]any) (*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Read(ctx, id)
	if err != nil {
		return nil, err
	}

	next := cur.Clone()
	for k, v := range sanitize(patch) {
		if v == nil {
			delete(next.Data, k)
			continue
		}
		next.Data[k] = v
	}

	name, err := s.validName(next.Data)
	if err != nil {
		return nil, err
	}
	if !next.Deleted {
		if err := s.ensureUnique(ctx, name, id); err != nil {
			return nil, err
		}
	}

	next.UpdatedAt = record.Advance(cur.UpdatedAt, s.clock.Now())
	stored, err := s.store.WriteLocal(ctx, s.kind.Table, next, record.ActionUpdate)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", s.kind.Singular, err)
	}
	s.Invalidate()
	s.logger.Debug(ctx, "record updated", "id", id)
	return stored, nil
}

// Delete soft-deletes the record. Deleting a tombstone is a no-op.
func (s *recordService) Delete(ctx context.Context, id string) (*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Deleted {
		return cur, nil
	}

	next := cur.Clone()
	next.Deleted = true
	next.UpdatedAt = record.Advance(cur.UpdatedAt, s.clock.Now())
	stored, err := s.store.WriteLocal(ctx, s.kind.Table, next, record.ActionDelete)
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", s.kind.Singular, err)
	}
	s.Invalidate()
	s.logger.Debug(ctx, "record deleted", "id", id)
	return stored, nil
}

// Restore clears the tombstone. Records that are not deleted come back
// unchanged.
func (s *recordService) Restore(ctx context.Context, id string) (*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cur.Deleted {
		return cur, nil
	}
	if err := s.ensureUnique(ctx, cur.Field(s.kind.NameField), id); err != nil {
		return nil, err
	}

	next := cur.Clone()
	next.Deleted = false
	next.UpdatedAt = record.Advance(cur.UpdatedAt, s.clock.Now())
	stored, err := s.store.WriteLocal(ctx, s.kind.Table, next, record.ActionUpdate)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", s.kind.Singular, err)
	}
	s.Invalidate()
	s.logger.Debug(ctx, "record restored", "id", id)
	return stored, nil
}

func (s *recordService) validName(data map[string]any) (string, error) {
	raw, ok := data[s.kind.NameField]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", common.ErrValidation, s.kind.NameField)
	}
	name, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be text", common.ErrValidation, s.kind.NameField)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: %s must not be empty", common.ErrValidation, s.kind.NameField)
	}
	data[s.kind.NameField] = name
	return name, nil
}

// ensureUnique rejects name when another active record of the owner
// already uses it, ignoring case.
func (s *recordService) ensureUnique(ctx context.Context, name, selfID string) error {
	active, err := s.store.List(ctx, s.kind.Table, store.ListOptions{OwnerID: s.ownerID})
	if err != nil {
		return err
	}
	for _, r := range active {
		if r.ID == selfID {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(r.Field(s.kind.NameField)), name) {
			return fmt.Errorf("%w: %s %q already exists", common.ErrDuplicateName, s.kind.Singular, name)
		}
	}
	return nil
}

func sanitize(fields map[string]any) map[string]any {
	data := (&record.Record{Data: fields}).Clone().Data
	for _, k := range reservedKeys {
		delete(data, k)
	}
	return data
}

// IsUserError reports whether err stems from caller input rather than a
// storage failure.
func IsUserError(err error) bool {
	return errors.Is(err, common.ErrValidation) ||
		errors.Is(err, common.ErrDuplicateName) ||
		errors.Is(err, common.ErrNotFound) ||
		errors.Is(err, common.ErrPermissionDenied)
}
