// Package alert carries realtime alerts from the core to every surface that
// shows them: the alerts table, the MQTT alert topics and WebSocket clients.
//
// Producers publish to a single Sink. In production that sink is a Fanout
// over the repository, the MQTT publisher and the WebSocket hub; a failing
// destination is logged and never stops delivery to the others.
package alert

import (
	"context"
	"time"
)

// Alert types.
const (
	TypeUnauthorizedVisit = "unauthorized_visit"
)

// Priority ranks how urgently an alert needs attention.
type Priority string

// Priority levels.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Alert is a notification raised by the core.
type Alert struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Priority  Priority       `json:"priority"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"timestamp"`
}

// Sink receives alerts. Delivery is at-least-once; consumers tolerate repeats.
type Sink interface {
	Publish(ctx context.Context, a Alert) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, a Alert) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, a Alert) error {
	return f(ctx, a)
}
