package models

import (
	"strings"
	"time"
)

// MaxAlertTextLength bounds the text accepted for a new alert.
const MaxAlertTextLength = 1000

// Alert is one entry of the shared alert feed.
// Timestamp is assigned by the backend and is nil until the write is acknowledged.
type Alert struct {
	ID        string     `json:"id" yaml:"id"`
	Text      string     `json:"text" yaml:"text"`
	Timestamp *time.Time `json:"timestamp" yaml:"timestamp"`
	Email     string     `json:"email" yaml:"email"`
}

// HasTimestamp reports whether the backend has assigned a creation time.
func (a *Alert) HasTimestamp() bool {
	return a.Timestamp != nil && !a.Timestamp.IsZero()
}

// Clone returns a deep copy of the alert.
func (a *Alert) Clone() *Alert {
	c := *a
	if a.Timestamp != nil {
		ts := *a.Timestamp
		c.Timestamp = &ts
	}
	return &c
}

// CloneAlerts deep-copies a list of alerts, preserving order.
func CloneAlerts(alerts []*Alert) []*Alert {
	if alerts == nil {
		return nil
	}
	out := make([]*Alert, len(alerts))
	for i, a := range alerts {
		out[i] = a.Clone()
	}
	return out
}

// IsBlankText reports whether text is empty after trimming whitespace.
func IsBlankText(text string) bool {
	return strings.TrimSpace(text) == ""
}
