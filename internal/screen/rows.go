package screen

import (
	"time"

	"github.com/good-yellow-bee/alertboard/internal/feed"
)

const (
	// TimeFormat is the layout row timestamps are shown in.
	TimeFormat = "2006-01-02 15:04:05"
	// PendingTimestamp is shown while the server has not assigned a timestamp.
	PendingTimestamp = "pending"
)

// Row is one alert as displayed.
type Row struct {
	ID        string
	Text      string
	Email     string
	Timestamp *time.Time
	// When is Timestamp formatted in the screen's location.
	When string
}

// Byline is the author suffix shown after the timestamp.
func (r Row) Byline() string {
	return ", by " + r.Email
}

// Project converts a snapshot into rows, preserving its order.
func Project(snap feed.Snapshot, loc *time.Location) []Row {
	rows := make([]Row, 0, len(snap.Alerts))
	for _, a := range snap.Alerts {
		if a == nil {
			continue
		}
		row := Row{
			ID:    a.ID,
			Text:  a.Text,
			Email: a.Email,
			When:  FormatTimestamp(a.Timestamp, loc),
		}
		if a.Timestamp != nil {
			ts := *a.Timestamp
			row.Timestamp = &ts
		}
		rows = append(rows, row)
	}
	return rows
}

// FormatTimestamp formats ts in loc, or returns PendingTimestamp for nil.
func FormatTimestamp(ts *time.Time, loc *time.Location) string {
	if ts == nil {
		return PendingTimestamp
	}
	if loc == nil {
		loc = time.Local
	}
	return ts.In(loc).Format(TimeFormat)
}
