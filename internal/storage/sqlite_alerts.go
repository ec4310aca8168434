package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/alertboard/internal/models"
)

const alertColumns = `id, text, email, timestamp_ns`

type sqliteAlertRepo struct {
	db *sql.DB
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	a := &models.Alert{}
	var ts sql.NullInt64
	if err := row.Scan(&a.ID, &a.Text, &a.Email, &ts); err != nil {
		return nil, err
	}
	if ts.Valid {
		t := time.Unix(0, ts.Int64).UTC()
		a.Timestamp = &t
	}
	return a, nil
}

func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	var ts sql.NullInt64
	if alert.HasTimestamp() {
		ts = sql.NullInt64{Int64: alert.Timestamp.UnixNano(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES (?, ?, ?, ?)`,
		alert.ID, alert.Text, alert.Email, ts,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) ListNewestFirst(ctx context.Context, limit int) ([]*models.Alert, error) {
	// NULL sorts lowest in SQLite, so DESC places pending alerts last.
	query := `SELECT ` + alertColumns + ` FROM alerts ORDER BY timestamp_ns DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*models.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *sqliteAlertRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteAlertRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}
