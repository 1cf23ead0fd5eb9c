package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/accounting/compound"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

// Executor fires a single compound definition.
type Executor interface {
	Execute(ctx context.Context, definitionID int64, req compound.Request) (compound.Result, error)
}

// CompoundExecuteJob processes TaskCompoundExecute tasks.
type CompoundExecuteJob struct {
	Executor Executor
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewCompoundExecuteJob constructs the job handler.
func NewCompoundExecuteJob(executor Executor, logger *slog.Logger, metrics *jobmetrics.Metrics) *CompoundExecuteJob {
	return &CompoundExecuteJob{Executor: executor, Logger: logger, Metrics: metrics}
}

// Handle runs the execution. Ledger validation failures are final and skip
// retries; infrastructure failures are retried by Asynq.
func (j *CompoundExecuteJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Executor == nil {
		return errors.New("compound execute: dependencies not configured")
	}
	var payload CompoundExecutePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskCompoundExecute)

	req := compound.Request{
		ExecutorID:       payload.ExecutorID,
		Reference:        payload.Reference,
		Description:      payload.Description,
		ContextOverrides: payload.Context,
	}
	if payload.JournalDate != "" {
		date, err := time.Parse("2006-01-02", payload.JournalDate)
		if err != nil {
			return tracker.End(fmt.Errorf("%w: %v", asynq.SkipRetry, err))
		}
		req.JournalDate = &date
	}

	logger := j.log().With(slog.Int64("definition_id", payload.DefinitionID))
	res, err := j.Executor.Execute(ctx, payload.DefinitionID, req)
	if err != nil {
		if shared.KindOf(err) != "" {
			logger.Warn("compound execution rejected", slog.Any("error", err))
			return tracker.End(fmt.Errorf("%w: %v", asynq.SkipRetry, err))
		}
		logger.Error("compound execution failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("compound execution posted", slog.String("entry_number", res.EntryNumber))
	return tracker.End(nil)
}

func (j *CompoundExecuteJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CompoundExecuteJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCompoundExecute))
	}
	return slog.Default().With(slog.String("job", TaskCompoundExecute))
}
