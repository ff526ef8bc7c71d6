package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/record"
	"github.com/dmitrijs2005/herpsync/internal/server/repositories/pgdb"
)

type PostgresRepository struct {
	db *pgdb.DB
}

func NewPostgresRepository(db *pgdb.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, d record.Device) error {
	var lastSync *time.Time
	if !d.LastSyncAt.IsZero() {
		lastSync = &d.LastSyncAt
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO devices (device_id, owner_id, last_sync_at, sync_version, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (device_id) DO UPDATE SET
			owner_id     = EXCLUDED.owner_id,
			last_sync_at = COALESCE(EXCLUDED.last_sync_at, devices.last_sync_at),
			sync_version = GREATEST(EXCLUDED.sync_version, devices.sync_version),
			updated_at   = now()
	`, d.DeviceID, d.OwnerID, lastSync, d.SyncVersion)
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", d.DeviceID, err)
	}
	return nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]record.Device, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT device_id, owner_id, last_sync_at, sync_version
		FROM devices WHERE owner_id = $1 ORDER BY device_id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select devices: %w", err)
	}
	defer rows.Close()

	var result []record.Device
	for rows.Next() {
		var (
			d        record.Device
			lastSync *time.Time
		)
		if err := rows.Scan(&d.DeviceID, &d.OwnerID, &lastSync, &d.SyncVersion); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		if lastSync != nil {
			d.LastSyncAt = lastSync.UTC()
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
