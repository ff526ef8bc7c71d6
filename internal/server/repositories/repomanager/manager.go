// Package repomanager assembles the server repositories for the configured
// storage backend.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/herpsync/internal/server/migrations"
	"github.com/dmitrijs2005/herpsync/internal/server/repositories/devices"
	"github.com/dmitrijs2005/herpsync/internal/server/repositories/pgdb"
	"github.com/dmitrijs2005/herpsync/internal/server/repositories/records"
)

type RepositoryManager interface {
	Records() records.Repository
	Devices() devices.Repository
	Close()
}

// PostgresRepositoryManager vends PostgreSQL-backed repositories sharing one
// pgx pool.
type PostgresRepositoryManager struct {
	db      *pgdb.DB
	records *records.PostgresRepository
	devices *devices.PostgresRepository
}

// gooseUp is a seam for testing migrations without a database.
var gooseUp = migrations.Up

// RunMigrations applies the embedded schema over db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if err := gooseUp(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// NewPostgresRepositoryManager migrates the database at dsn and opens the
// pool used by the repositories.
func NewPostgresRepositoryManager(ctx context.Context, dsn string) (*PostgresRepositoryManager, error) {
	sqlDB, err := pgdb.OpenSQL(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	err = RunMigrations(ctx, sqlDB)
	_ = sqlDB.Close()
	if err != nil {
		return nil, err
	}

	db, err := pgdb.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return NewPostgresRepositoryManagerFromDB(db), nil
}

func NewPostgresRepositoryManagerFromDB(db *pgdb.DB) *PostgresRepositoryManager {
	return &PostgresRepositoryManager{
		db:      db,
		records: records.NewPostgresRepository(db),
		devices: devices.NewPostgresRepository(db),
	}
}

func (m *PostgresRepositoryManager) Records() records.Repository { return m.records }
func (m *PostgresRepositoryManager) Devices() devices.Repository { return m.devices }
func (m *PostgresRepositoryManager) Close()                      { m.db.Close() }

// InMemoryRepositoryManager keeps everything in process memory.
type InMemoryRepositoryManager struct {
	records *records.MemoryRepository
	devices *devices.MemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		records: records.NewMemoryRepository(),
		devices: devices.NewMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) Records() records.Repository { return m.records }
func (m *InMemoryRepositoryManager) Devices() devices.Repository { return m.devices }
func (m *InMemoryRepositoryManager) Close()                      {}
