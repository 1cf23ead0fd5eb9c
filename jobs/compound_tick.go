package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/accounting/compound"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

// DueRunner fires due compound definitions.
type DueRunner interface {
	RunDue(ctx context.Context, now time.Time) (compound.TickSummary, error)
}

// CompoundTickJob runs one scheduler sweep per cron tick.
type CompoundTickJob struct {
	Runner  DueRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewCompoundTickJob constructs the job handler.
func NewCompoundTickJob(runner DueRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *CompoundTickJob {
	return &CompoundTickJob{
		Runner:  runner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep. Individual execution failures are recorded in
// execution logs and never fail the task.
func (j *CompoundTickJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("compound tick: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskCompoundTick)
	start := j.now()
	summary, err := j.Runner.RunDue(ctx, start)
	if err != nil {
		j.log().Error("run due definitions", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddTickOutcome(summary.Succeeded, summary.Failed, summary.Skipped)
	if summary.Due > 0 {
		j.log().Info("compound sweep finished",
			slog.Int("due", summary.Due),
			slog.Int("succeeded", summary.Succeeded),
			slog.Int("failed", summary.Failed),
			slog.Int("skipped", summary.Skipped),
			slog.Duration("duration", time.Since(start)))
	}
	return tracker.End(nil)
}

func (j *CompoundTickJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CompoundTickJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCompoundTick))
	}
	return slog.Default().With(slog.String("job", TaskCompoundTick))
}

func (j *CompoundTickJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
