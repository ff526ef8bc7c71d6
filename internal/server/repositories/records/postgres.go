package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/record"
	"github.com/dmitrijs2005/herpsync/internal/server/repositories/pgdb"
	"github.com/jackc/pgx/v5"
)

type PostgresRepository struct {
	db *pgdb.DB
}

func NewPostgresRepository(db *pgdb.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const returning = `RETURNING id, owner_id, data, created_at, updated_at, deleted`

const upsertSQL = `
INSERT INTO records (table_name, id, owner_id, data, created_at, updated_at, deleted, changed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (table_name, id) DO UPDATE SET
	data       = EXCLUDED.data,
	deleted    = EXCLUDED.deleted,
	updated_at = EXCLUDED.updated_at,
	changed_at = EXCLUDED.changed_at
WHERE records.owner_id = EXCLUDED.owner_id AND EXCLUDED.updated_at >= records.updated_at
` + returning + `, (xmax = 0) AS inserted`

const softDeleteSQL = `
UPDATE records SET
	deleted    = TRUE,
	updated_at = $4,
	changed_at = $5
WHERE table_name = $1 AND id = $2 AND owner_id = $3 AND updated_at <= $4
` + returning

const currentSQL = `
SELECT id, owner_id, data, created_at, updated_at, deleted
FROM records
WHERE table_name = $1 AND id = $2`

const changesSQL = `
SELECT id, owner_id, data, created_at, updated_at, deleted
FROM records
WHERE table_name = $1 AND owner_id = $2 AND changed_at > $3
ORDER BY changed_at ASC, id ASC`

func (r *PostgresRepository) Upsert(ctx context.Context, table string, rec *record.Record, changedAt time.Time) (stored *record.Record, outcome Outcome, err error) {
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		stored, outcome, err = upsert(ctx, tx, table, rec, changedAt)
		return err
	})
	return stored, outcome, err
}

// upsert writes rec unless the stored row is newer. When the conditional
// update matches nothing the current row decides between a foreign owner
// and a stale write.
func upsert(ctx context.Context, q pgdb.Querier, table string, rec *record.Record, changedAt time.Time) (*record.Record, Outcome, error) {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return nil, Stale, fmt.Errorf("%w: encode data: %w", common.ErrValidation, err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = rec.UpdatedAt
	}

	var inserted bool
	row := q.QueryRow(ctx, upsertSQL, table, rec.ID, rec.OwnerID, data, createdAt, rec.UpdatedAt, rec.Deleted, changedAt)
	stored, err := scanRecord(row, &inserted)
	switch {
	case err == nil && inserted:
		return stored, Inserted, nil
	case err == nil:
		return stored, Updated, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, Stale, fmt.Errorf("upsert %s/%s: %w", table, rec.ID, err)
	}

	cur, err := scanRecord(q.QueryRow(ctx, currentSQL, table, rec.ID))
	if err != nil {
		return nil, Stale, fmt.Errorf("select %s/%s: %w", table, rec.ID, err)
	}
	if cur.OwnerID != rec.OwnerID {
		return nil, Stale, fmt.Errorf("%w: %s/%s", common.ErrPermissionDenied, table, rec.ID)
	}
	return cur, Stale, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, table string, rec *record.Record, changedAt time.Time) (stored *record.Record, outcome Outcome, err error) {
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		stored, err = scanRecord(tx.QueryRow(ctx, softDeleteSQL, table, rec.ID, rec.OwnerID, rec.UpdatedAt, changedAt))
		if err == nil {
			outcome = Updated
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("soft delete %s/%s: %w", table, rec.ID, err)
		}

		tomb := rec.Clone()
		tomb.Deleted = true
		stored, outcome, err = upsert(ctx, tx, table, tomb, changedAt)
		return err
	})
	return stored, outcome, err
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			err = fmt.Errorf("commit: %w", cerr)
		}
	}()
	return fn(tx)
}

func (r *PostgresRepository) ChangesSince(ctx context.Context, table, ownerID string, since time.Time) ([]*record.Record, error) {
	rows, err := r.db.Pool.Query(ctx, changesSQL, table, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("select changes of %s: %w", table, err)
	}
	defer rows.Close()

	var result []*record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", table, err)
	}
	return result, nil
}

func scanRecord(row pgx.Row, extra ...any) (*record.Record, error) {
	var (
		rec  record.Record
		data []byte
	)
	dest := append([]any{&rec.ID, &rec.OwnerID, &data, &rec.CreatedAt, &rec.UpdatedAt, &rec.Deleted}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &rec.Data); err != nil {
		return nil, fmt.Errorf("decode data of %s: %w", rec.ID, err)
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}
