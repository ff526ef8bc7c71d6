package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/dbx"
	"github.com/dmitrijs2005/herpsync/internal/record"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const columns = `id, owner_id, data, created_at, updated_at, deleted`

// Table names cannot be bound as parameters, so they are checked against
// the known set before being spliced into SQL.
func tableName(table string) (string, error) {
	if !record.KnownTable(table) {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownTable, table)
	}
	return table, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, table string, rec *record.Record) error {
	t, err := tableName(table)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", t, rec.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO `+t+` (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id   = excluded.owner_id,
			data       = excluded.data,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted    = excluded.deleted
	`, rec.ID, rec.OwnerID, string(data), toNanos(rec.CreatedAt), toNanos(rec.UpdatedAt), rec.Deleted)
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", t, rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, table, id string) (*record.Record, error) {
	t, err := tableName(table)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM `+t+` WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", t, id, err)
	}
	return rec, nil
}

// List returns records newest first by updated_at.
func (r *SQLiteRepository) List(ctx context.Context, table string, f Filter) ([]*record.Record, error) {
	t, err := tableName(table)
	if err != nil {
		return nil, err
	}
	where, args := f.clause()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+columns+` FROM `+t+where+` ORDER BY updated_at DESC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", t, err)
	}
	defer rows.Close()

	var result []*record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", t, err)
	}
	return result, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, table string, f Filter) (int, error) {
	t, err := tableName(table)
	if err != nil {
		return 0, err
	}
	where, args := f.clause()

	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t, err)
	}
	return n, nil
}

func (f Filter) clause() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.OwnerID != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if !f.IncludeDeleted {
		conds = append(conds, "deleted = 0")
	}
	if len(conds) == 0 {
		return "", nil
	}
	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*record.Record, error) {
	var (
		rec                  record.Record
		data                 string
		createdAt, updatedAt int64
	)
	if err := s.Scan(&rec.ID, &rec.OwnerID, &data, &createdAt, &updatedAt, &rec.Deleted); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, fmt.Errorf("decode data of %s: %w", rec.ID, err)
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	rec.CreatedAt = fromNanos(createdAt)
	rec.UpdatedAt = fromNanos(updatedAt)
	return &rec, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
