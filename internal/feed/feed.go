// Package feed defines the live alert collection the screen talks to and
// provides its implementations.
//
// A Collection is two narrow capabilities: a live ordered query that pushes
// full snapshots, and an append that lets the backend assign the identifier
// and the timestamp. Callers never sort, merge or reconcile; every snapshot
// replaces the previous one.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/alertboard/internal/models"
)

const (
	// CollectionAlerts is the name of the alert collection.
	CollectionAlerts = "alerts"
	// FieldTimestamp is the server-assigned creation time field.
	FieldTimestamp = "timestamp"
)

var (
	// ErrUnknownCollection is returned for a collection the backend does not serve.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrUnsupportedQuery is returned for an ordering the backend cannot serve.
	ErrUnsupportedQuery = errors.New("unsupported query")
	// ErrClosed is returned after the backend has been closed.
	ErrClosed = errors.New("feed closed")
	// ErrNotFound is returned when deleting an alert that does not exist.
	ErrNotFound = errors.New("alert not found")
)

// Query selects an ordered view of a collection.
type Query struct {
	Collection string
	OrderBy    string
	Desc       bool
	// Limit caps the number of alerts per snapshot; 0 means all.
	Limit int
}

// Check reports whether q is the one ordering every backend serves:
// the alert collection by timestamp, newest first.
func (q Query) Check() error {
	if q.Collection != CollectionAlerts {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, q.Collection)
	}
	if q.OrderBy != FieldTimestamp || !q.Desc {
		return fmt.Errorf("%w: order by %q desc=%t", ErrUnsupportedQuery, q.OrderBy, q.Desc)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrUnsupportedQuery)
	}
	return nil
}

// AlertsNewestFirst is the query the alert screen subscribes to.
func AlertsNewestFirst() Query {
	return Query{Collection: CollectionAlerts, OrderBy: FieldTimestamp, Desc: true}
}

// Snapshot is the complete result set of a query at one point in time.
type Snapshot struct {
	Alerts []*models.Alert
	ReadAt time.Time
}

// Subscription is a live query with an explicit lifecycle.
//
// Snapshots are delivered on the channel, newest state wins: a consumer that
// falls behind skips intermediate snapshots but always sees the latest.
// The channel is closed after Stop or when the subscription fails; Err then
// reports the failure, or nil after a clean stop.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Err() error
	// Stop releases the subscription. It is idempotent.
	Stop()
}

// Subscriber opens live queries.
// The first snapshot delivered is the initial result set.
type Subscriber interface {
	Subscribe(ctx context.Context, q Query) (Subscription, error)
}

// NewAlert holds the caller-supplied fields of an append.
// The identifier and timestamp are always assigned by the backend.
type NewAlert struct {
	Text  string
	Email string
}

// Appender stores new alerts.
type Appender interface {
	Append(ctx context.Context, collection string, alert NewAlert) error
}

// Collection is the full backend surface used by the alert screen.
type Collection interface {
	Subscriber
	Appender
}

// Backend is a Collection with the administrative operations used by the
// API: a one-off read and removal of a single alert.
type Backend interface {
	Collection
	Current(ctx context.Context, q Query) (Snapshot, error)
	Delete(ctx context.Context, id string) error
}
