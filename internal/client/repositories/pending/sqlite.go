package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/client/models"
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

func (r *SQLiteRepository) Enqueue(ctx context.Context, c *models.PendingChange) (int64, error) {
	if !c.Action.Valid() {
		return 0, fmt.Errorf("%w: action %q", common.ErrValidation, c.Action)
	}
	data, err := json.Marshal(c.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to encode pending change: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_changes (table_name, action, record_id, data, created_at, retries)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.Table, string(c.Action), c.RecordID, string(data), c.CreatedAt.UnixNano(), c.Retries)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s %s/%s: %w", c.Action, c.Table, c.RecordID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read pending change id: %w", err)
	}
	c.ID = id
	return id, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.PendingChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, table_name, action, record_id, data, created_at, retries
		FROM pending_changes
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingChange
	for rows.Next() {
		var (
			c         models.PendingChange
			action    string
			data      string
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.Table, &action, &c.RecordID, &data, &createdAt, &c.Retries); err != nil {
			return nil, fmt.Errorf("failed to scan pending change: %w", err)
		}
		c.Action = record.Action(action)
		c.CreatedAt = time.Unix(0, createdAt).UTC()
		c.State = models.ChangePending
		if err := json.Unmarshal([]byte(data), &c.Data); err != nil {
			return nil, fmt.Errorf("failed to decode pending change %d: %w", c.ID, err)
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending changes: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove pending change %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) SetRetries(ctx context.Context, id int64, retries int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE pending_changes SET retries = ? WHERE id = ?`, retries, id)
	if err != nil {
		return fmt.Errorf("failed to update retries of pending change %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_changes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return n, nil
}
