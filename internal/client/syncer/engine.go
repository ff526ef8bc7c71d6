// Package syncer reconciles the local store with the remote backend. An
// Engine pushes the pending-change queue, pulls remote changes since the
// watermark and resolves conflicts last-writer-wins.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/client/client"
	"github.com/dmitrijs2005/herpsync/internal/client/models"
	"github.com/dmitrijs2005/herpsync/internal/client/store"
	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/dmitrijs2005/herpsync/internal/record"
)

type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// Store is the part of the local store the engine drives.
type Store interface {
	Tables() []string
	PendingChanges(ctx context.Context) ([]*models.PendingChange, error)
	RemovePending(ctx context.Context, id int64) error
	SavePendingRetries(ctx context.Context, c *models.PendingChange) error
	PendingCount(ctx context.Context) (int, error)
	Watermark(ctx context.Context, ownerID string) (time.Time, error)
	SetWatermark(ctx context.Context, ownerID string, t time.Time) error
	LastSyncAt(ctx context.Context) (time.Time, error)
	SetLastSyncAt(ctx context.Context, t time.Time) error
	ApplyRemote(ctx context.Context, table string, remote *record.Record, resolve store.ResolveFunc) (bool, error)
	Count(ctx context.Context, table string, opts store.ListOptions) (int, error)
}

// DeviceReporter records a completed sync against this install.
type DeviceReporter interface {
	ReportSync(ctx context.Context, at time.Time) error
}

// Report summarises one sync run.
type Report struct {
	Pushed  int // changes accepted by the backend
	Failed  int // changes kept for another attempt
	Dropped int // changes given up after too many failures
	Pulled  int // remote versions written locally
	Skipped int // remote versions that lost to the local copy
}

type Engine struct {
	store   Store
	backend client.Backend
	device  DeviceReporter
	ownerID string
	clock   common.Clock
	resolve store.ResolveFunc
	logger  logging.Logger

	mu         sync.Mutex
	state      State
	online     bool
	lastErr    error
	lastReport Report
	listeners  map[int]func(Event)
	nextID     int
}

type Option func(*Engine)

// WithResolver replaces the default LastWriterWins strategy.
func WithResolver(r store.ResolveFunc) Option {
	return func(e *Engine) { e.resolve = r }
}

// WithDevice reports every successful sync to d.
func WithDevice(d DeviceReporter) Option {
	return func(e *Engine) { e.device = d }
}

func NewEngine(st Store, backend client.Backend, ownerID string, clock common.Clock, logger logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		backend:   backend,
		ownerID:   ownerID,
		clock:     clock,
		resolve:   LastWriterWins,
		logger:    logger.With("module", "syncer", "owner", ownerID),
		state:     StateIdle,
		online:    true,
		listeners: map[int]func(Event){},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSyncing {
		return false
	}
	e.state = StateSyncing
	return true
}

func (e *Engine) finish(report Report, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastReport = report
	e.lastErr = err
	if err != nil {
		e.state = StateError
	} else {
		e.state = StateIdle
	}
}

// SyncNow runs one push/pull cycle. A call made while another cycle is in
// flight returns nil without doing anything. Failures leave the engine in
// StateError; the next call starts over from the persisted queue and
// watermark.
func (e *Engine) SyncNow(ctx context.Context) error {
	if !e.begin() {
		e.logger.Info(ctx, "sync already running, skipping")
		return nil
	}
	e.emit(Event{Type: EventStarted, At: e.clock.Now()})
	e.logger.Info(ctx, "sync started")

	report, err := e.run(ctx)
	e.finish(report, err)

	if err != nil {
		e.logger.Error(ctx, "sync failed", "error", err, "pushed", report.Pushed, "pulled", report.Pulled)
		e.emit(Event{Type: EventError, Report: report, Err: err, At: e.clock.Now()})
		return err
	}
	e.logger.Info(ctx, "sync completed",
		"pushed", report.Pushed, "failed", report.Failed, "dropped", report.Dropped,
		"pulled", report.Pulled, "skipped", report.Skipped)
	e.emit(Event{Type: EventCompleted, Report: report, At: e.clock.Now()})
	return nil
}

func (e *Engine) run(ctx context.Context) (Report, error) {
	var report Report

	if err := e.push(ctx, &report); err != nil {
		return report, fmt.Errorf("%w: %w", common.ErrSyncPush, err)
	}
	if err := e.pull(ctx, &report); err != nil {
		return report, fmt.Errorf("%w: %w", common.ErrSyncPull, err)
	}

	now := e.clock.Now()
	if err := e.store.SetWatermark(ctx, e.ownerID, now); err != nil {
		return report, fmt.Errorf("%w: advance watermark: %w", common.ErrSyncPull, err)
	}
	if err := e.store.SetLastSyncAt(ctx, now); err != nil {
		e.logger.Warn(ctx, "could not record sync time", "error", err)
	}

	if e.device != nil {
		if err := e.device.ReportSync(ctx, now); err != nil {
			e.logger.Warn(ctx, "device report failed", "error", err)
		}
	}
	return report, nil
}

// push uploads the queue oldest first. A change the backend rejects is
// retried on later runs and dropped once it has failed too often; it never
// holds up the changes behind it.
func (e *Engine) push(ctx context.Context, report *Report) error {
	changes, err := e.store.PendingChanges(ctx)
	if err != nil {
		return err
	}

	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}

		pushErr := e.dispatch(ctx, c)
		if pushErr == nil {
			c.Ack()
		} else {
			c.Fail()
		}

		if !c.Terminal() {
			e.logger.Warn(ctx, "push failed, will retry",
				"table", c.Table, "record_id", c.RecordID, "retries", c.Retries, "error", pushErr)
			if err := e.store.SavePendingRetries(ctx, c); err != nil {
				return err
			}
			report.Failed++
			continue
		}

		if c.State == models.ChangeDropped {
			e.logger.Warn(ctx, "pending change dropped",
				"table", c.Table, "record_id", c.RecordID, "action", c.Action,
				"retries", c.Retries, "error", pushErr)
			report.Dropped++
		} else {
			report.Pushed++
		}
		if err := e.store.RemovePending(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, c *models.PendingChange) error {
	rec := c.Data
	if rec == nil {
		rec = &record.Record{ID: c.RecordID, OwnerID: e.ownerID, Data: map[string]any{}}
	}
	if rec.OwnerID == "" {
		rec = rec.Clone()
		rec.OwnerID = e.ownerID
	}

	switch c.Action {
	case record.ActionDelete:
		return e.backend.SoftDelete(ctx, c.Table, rec)
	case record.ActionCreate, record.ActionUpdate:
		return e.backend.Upsert(ctx, c.Table, rec)
	default:
		return fmt.Errorf("%w: action %q", common.ErrValidation, c.Action)
	}
}

// pull applies every change the backend received after the watermark, table by
// table, in the order the backend returns them.
func (e *Engine) pull(ctx context.Context, report *Report) error {
	since, err := e.store.Watermark(ctx, e.ownerID)
	if err != nil {
		return err
	}

	for _, table := range e.store.Tables() {
		changes, err := e.backend.ChangesSince(ctx, table, e.ownerID, since)
		if err != nil {
			return fmt.Errorf("%s: %w", table, err)
		}
		for _, remote := range changes {
			applied, err := e.store.ApplyRemote(ctx, table, remote, e.resolve)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", table, remote.ID, err)
			}
			if applied {
				report.Pulled++
			} else {
				report.Skipped++
			}
		}
	}
	return nil
}

// Status is a snapshot for display.
type Status struct {
	State        State          `json:"state"`
	Online       bool           `json:"online"`
	PendingCount int            `json:"pending_count"`
	LastSyncAt   time.Time      `json:"last_sync_at"`
	Watermark    time.Time      `json:"watermark"`
	LastError    string         `json:"last_error,omitempty"`
	LastReport   Report         `json:"last_report"`
	LocalCounts  map[string]int `json:"local_counts"`
}

func (e *Engine) Status(ctx context.Context) (*Status, error) {
	e.mu.Lock()
	st := &Status{
		State:       e.state,
		Online:      e.online,
		LastReport:  e.lastReport,
		LocalCounts: map[string]int{},
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	e.mu.Unlock()

	var err error
	if st.PendingCount, err = e.store.PendingCount(ctx); err != nil {
		return nil, err
	}
	if st.LastSyncAt, err = e.store.LastSyncAt(ctx); err != nil {
		return nil, err
	}
	if st.Watermark, err = e.store.Watermark(ctx, e.ownerID); err != nil {
		return nil, err
	}
	for _, table := range e.store.Tables() {
		n, err := e.store.Count(ctx, table, store.ListOptions{OwnerID: e.ownerID})
		if err != nil {
			return nil, err
		}
		st.LocalCounts[table] = n
	}
	return st, nil
}

func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// SetOnline records the connectivity state and reports whether this call
// brought the engine back online.
func (e *Engine) SetOnline(ctx context.Context, online bool) bool {
	e.mu.Lock()
	was := e.online
	e.online = online
	e.mu.Unlock()

	if was != online {
		mode := "offline"
		if online {
			mode = "online"
		}
		e.logger.Info(ctx, "connectivity changed", "mode", mode)
	}
	return online && !was
}

// CheckConnectivity pings the backend and syncs on an offline to online
// transition.
func (e *Engine) CheckConnectivity(ctx context.Context, timeout time.Duration) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	err := e.backend.Ping(pctx)
	cancel()

	if err != nil && !errors.Is(err, common.ErrUnavailable) {
		e.logger.Debug(ctx, "ping failed", "error", err)
	}
	if e.SetOnline(ctx, err == nil) {
		_ = e.SyncNow(ctx)
	}
}
