package housekeeping

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/hostel-gate/internal/clock"
)

// Job names.
const (
	JobSessionSweep      = "session_sweep"
	JobAttemptSweep      = "attempt_sweep"
	JobDedupSweep        = "dedup_sweep"
	JobMovementRetention = "movement_retention"
)

// Sweeper drops expired in-memory entries and reports how many it removed.
// Implemented by auth.SessionRegistry, auth.AttemptTracker and
// offline.MemoryDeduper.
type Sweeper interface {
	Sweep() int
}

// Pruner deletes movement history older than a cutoff.
type Pruner interface {
	PruneMovementRecords(ctx context.Context, before time.Time) (int64, error)
}

// SweepJob wraps an in-memory sweeper as a job.
func SweepJob(name string, sw Sweeper, logger Logger) Job {
	if logger == nil {
		logger = noopLogger{}
	}
	return Job{
		Name: name,
		Run: func(context.Context) error {
			if n := sw.Sweep(); n > 0 {
				logger.Info("swept expired entries", "job", name, "removed", n)
			}
			return nil
		},
	}
}

// RetentionJob deletes movement records older than retention.
func RetentionJob(p Pruner, retention time.Duration, clk clock.Clock, logger Logger) Job {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return Job{
		Name: JobMovementRetention,
		Run: func(ctx context.Context) error {
			cutoff := clk.Now().Add(-retention)
			n, err := p.PruneMovementRecords(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("pruning movement records: %w", err)
			}
			logger.Info("movement retention applied",
				"cutoff", cutoff.UTC().Format(time.RFC3339),
				"deleted", n,
			)
			return nil
		},
	}
}
