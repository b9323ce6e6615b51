// Package housekeeping runs the periodic maintenance jobs of the core:
// expiring idle admin sessions, forgetting stale login failures, dropping
// expired offline dedup claims and trimming old movement history.
package housekeeping

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultInterval is how often jobs run when no interval is configured.
const DefaultInterval = time.Hour

// Job is one named maintenance task.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Logger is the logging interface used by the scheduler.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Scheduler runs its jobs serially on a fixed interval.
type Scheduler struct {
	interval time.Duration
	logger   Logger

	mu   sync.Mutex
	jobs []Job

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// NewScheduler creates a scheduler. interval <= 0 uses DefaultInterval.
func NewScheduler(interval time.Duration, logger Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Add registers a job. Jobs run in registration order.
func (s *Scheduler) Add(job Job) {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
}

// Interval returns the configured run interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// RunOnce runs every job once and returns how many failed. A failing or
// panicking job is logged and does not stop the jobs after it.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	failed := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return failed
		}
		if err := s.runJob(ctx, job); err != nil {
			failed++
			s.logger.Error("housekeeping job failed", "job", job.Name, "error", err)
		}
	}
	return failed
}

func (s *Scheduler) runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx)
}

// Start runs the jobs every interval in a background goroutine until ctx is
// cancelled or Stop is called. The first run happens after one interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop ends the background loop and waits for an in-progress run to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
