package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/hostel-gate/internal/clock"
)

// Logger is the logging interface used by the fanout.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

type namedSink struct {
	name string
	sink Sink
}

// Fanout delivers each alert to every registered sink in registration order.
type Fanout struct {
	sinks  []namedSink
	clock  clock.Clock
	logger Logger
}

// NewFanout creates an empty fanout. A nil clock uses the wall clock.
func NewFanout(clk clock.Clock) *Fanout {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Fanout{clock: clk, logger: noopLogger{}}
}

// SetLogger sets the logger for the fanout.
func (f *Fanout) SetLogger(logger Logger) {
	f.logger = logger
}

// Add registers a sink. Not safe to call concurrently with Publish.
func (f *Fanout) Add(name string, sink Sink) {
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
}

// Len returns the number of registered sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Publish stamps the alert with an ID and time if missing, then hands it to
// every sink. Failures are logged per sink and returned joined.
func (f *Fanout) Publish(ctx context.Context, a Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = f.clock.Now().UTC()
	}
	if a.Priority == "" {
		a.Priority = PriorityMedium
	}

	f.logger.Info("alert raised", "alert_id", a.ID, "type", a.Type, "priority", a.Priority)

	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.Publish(ctx, a); err != nil {
			f.logger.Warn("alert sink failed", "sink", s.name, "alert_id", a.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
