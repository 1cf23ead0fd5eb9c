package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCompoundTick sweeps compound definitions that are due.
	TaskCompoundTick = "compound:tick"
	// TaskCompoundExecute fires one compound definition on behalf of a user.
	TaskCompoundExecute = "compound:execute"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// taskNamespace seeds deterministic task ids.
var taskNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:odyssey:ledger:tasks"))

// CompoundTickPayload is empty today; the sweep always uses the worker clock.
type CompoundTickPayload struct{}

// NewCompoundTickTask builds the cron task that drives the scheduler.
func NewCompoundTickTask() (*asynq.Task, error) {
	body, err := json.Marshal(CompoundTickPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCompoundTick, body, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}

// CompoundExecutePayload asks the worker to execute a definition manually.
type CompoundExecutePayload struct {
	DefinitionID int64             `json:"definition_id"`
	ExecutorID   int64             `json:"executor_id"`
	JournalDate  string            `json:"journal_date,omitempty"`
	Reference    string            `json:"reference,omitempty"`
	Description  string            `json:"description,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
}

// TaskID derives a stable id so re-enqueueing the same reference for a
// definition is rejected by Asynq as a duplicate. Executions without a
// reference get a random id.
func (p CompoundExecutePayload) TaskID() string {
	if p.Reference == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(taskNamespace, []byte(fmt.Sprintf("%s:%d:%s", TaskCompoundExecute, p.DefinitionID, p.Reference))).String()
}

// NewCompoundExecuteTask builds an async execution task.
func NewCompoundExecuteTask(payload CompoundExecutePayload) (*asynq.Task, error) {
	if payload.DefinitionID <= 0 {
		return nil, fmt.Errorf("jobs: definition id required")
	}
	if payload.JournalDate != "" {
		if _, err := time.Parse("2006-01-02", payload.JournalDate); err != nil {
			return nil, fmt.Errorf("jobs: journal date: %w", err)
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCompoundExecute, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(payload.TaskID()),
		asynq.MaxRetry(3),
	), nil
}
