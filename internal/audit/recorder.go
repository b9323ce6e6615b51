package audit

import (
	"context"
	"sync"

	"github.com/nerrad567/hostel-gate/internal/auth"
	"github.com/nerrad567/hostel-gate/internal/clock"
)

// recorderChanSize is the buffer size for the async security event channel.
const recorderChanSize = 256

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder implements auth.SecurityLog. Events are stamped on receipt,
// queued, and written serially by a single goroutine so login latency never
// waits on the store. When the queue is full the event is logged and dropped.
type Recorder struct {
	repo   Repository
	clock  clock.Clock
	logger Logger
	ch     chan *SecurityEvent

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder. A nil clock uses the wall clock.
func NewRecorder(repo Repository, clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Recorder{
		repo:   repo,
		clock:  clk,
		logger: noopLogger{},
		ch:     make(chan *SecurityEvent, recorderChanSize),
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Record enqueues a security event (best-effort).
func (r *Recorder) Record(_ context.Context, ev auth.SecurityEvent) {
	entry := &SecurityEvent{
		EventType: ev.Type,
		Role:      ev.Role,
		DeviceID:  ev.DeviceID,
		IPAddress: ev.IPAddress,
		Details:   ev.Details,
		CreatedAt: r.clock.Now().UTC(),
	}

	r.logger.Info("security event",
		"event_type", entry.EventType,
		"role", entry.Role,
		"device_id", entry.DeviceID,
		"ip", entry.IPAddress,
	)

	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("security event channel full, dropping entry",
			"event_type", entry.EventType,
			"device_id", entry.DeviceID,
		)
	}
}

// Start launches the drain goroutine.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.drain(ctx)
	}()
}

// Stop cancels the drain goroutine and waits for queued entries to be written.
func (r *Recorder) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
}

// drain reads entries from the channel and writes them serially.
// It runs until the context is cancelled, then drains remaining entries.
func (r *Recorder) drain(ctx context.Context) {
	for {
		select {
		case entry := <-r.ch:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.ch:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *SecurityEvent) {
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("security event write failed",
			"event_type", entry.EventType,
			"error", err,
		)
	}
}
