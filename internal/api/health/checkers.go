package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/metrics"
)

// SQLiteChecker pings the SQLite database.
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker creates a SQLite checker.
func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

func (c *SQLiteChecker) Name() string { return "sqlite" }

func (c *SQLiteChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return errors.New("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// FeedChecker reads one alert from the feed backend.
type FeedChecker struct {
	name    string
	backend feed.Backend
}

// NewFeedChecker creates a checker for backend, reported under name.
func NewFeedChecker(name string, backend feed.Backend) *FeedChecker {
	return &FeedChecker{name: name, backend: backend}
}

func (c *FeedChecker) Name() string { return c.name }

func (c *FeedChecker) Check(ctx context.Context) error {
	if c.backend == nil {
		return errors.New("feed not configured")
	}
	q := feed.AlertsNewestFirst()
	q.Limit = 1
	if _, err := c.backend.Current(ctx, q); err != nil {
		return fmt.Errorf("read feed: %w", err)
	}
	return nil
}

// AlertCounter counts stored alerts.
type AlertCounter interface {
	Count(ctx context.Context) (int64, error)
}

// AlertStoreChecker counts the local alert table and publishes the result as
// a gauge.
type AlertStoreChecker struct {
	alerts AlertCounter
}

// NewAlertStoreChecker creates a checker over alerts.
func NewAlertStoreChecker(alerts AlertCounter) *AlertStoreChecker {
	return &AlertStoreChecker{alerts: alerts}
}

func (c *AlertStoreChecker) Name() string { return "alerts" }

func (c *AlertStoreChecker) Check(ctx context.Context) error {
	if c.alerts == nil {
		return errors.New("alert store not initialized")
	}
	n, err := c.alerts.Count(ctx)
	if err != nil {
		return err
	}
	metrics.AlertsStored.Set(float64(n))
	return nil
}
