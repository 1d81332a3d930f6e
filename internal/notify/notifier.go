// Package notify delivers setup progress events to external systems such
// as Slack or a generic webhook.
package notify

import (
	"context"
	"time"
)

// EventStatus describes the outcome a notification reports.
type EventStatus string

const (
	StatusStarted   EventStatus = "started"
	StatusCompleted EventStatus = "completed"
	StatusFailed    EventStatus = "failed"
	StatusRecovered EventStatus = "recovered"
)

// Event is one reportable moment in a setup run.
type Event struct {
	RunID     string      `json:"run_id"`
	Phase     string      `json:"phase"`
	Status    EventStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notifier delivers setup events to an external system.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
