// Package compound stores compound journal definitions and executes them
// through the posting engine, manually or on schedule.
package compound

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/compound/template"
	"github.com/odyssey-erp/ledger/internal/accounting/compound/trigger"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
)

// Definition is a stored compound journal template with its trigger.
type Definition struct {
	ID                 int64        `json:"id"`
	Name               string       `json:"name"`
	Template           string       `json:"template"`
	TriggerType        trigger.Type `json:"trigger_type"`
	RecurrenceUnit     trigger.Unit `json:"recurrence_unit,omitempty"`
	RecurrenceInterval int          `json:"recurrence_interval,omitempty"`
	StartDate          *time.Time   `json:"start_date,omitempty"`
	EndDate            *time.Time   `json:"end_date,omitempty"`
	NextRun            *time.Time   `json:"next_run,omitempty"`
	IsActive           bool         `json:"is_active"`
	CreatedBy          int64        `json:"created_by"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Schedule projects the trigger fields of d.
func (d Definition) Schedule() trigger.Schedule {
	return trigger.Schedule{
		Type:      d.TriggerType,
		Unit:      d.RecurrenceUnit,
		Interval:  d.RecurrenceInterval,
		StartDate: d.StartDate,
		EndDate:   d.EndDate,
		NextRun:   d.NextRun,
		IsActive:  d.IsActive,
	}
}

// ExecutionLog is the append-only record of one execution attempt.
type ExecutionLog struct {
	ID           int64             `json:"id"`
	DefinitionID int64             `json:"definition_id"`
	ExecutedAt   time.Time         `json:"executed_at"`
	IsAutomatic  bool              `json:"is_automatic"`
	ExecutedBy   int64             `json:"executed_by"`
	EntryID      *int64            `json:"entry_id,omitempty"`
	EntryNumber  string            `json:"entry_number,omitempty"`
	Success      bool              `json:"success"`
	Message      string            `json:"message,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
}

// DefinitionInput carries the editable fields of a definition.
type DefinitionInput struct {
	Name               string
	Template           string
	TriggerType        trigger.Type
	RecurrenceUnit     trigger.Unit
	RecurrenceInterval int
	StartDate          *time.Time
	EndDate            *time.Time
	IsActive           bool
	ActorID            int64
}

// Request parameterizes one execution.
type Request struct {
	ExecutorID       int64
	ExecutionDate    time.Time
	JournalDate      *time.Time
	BranchID         *int64
	Description      string
	Reference        string
	Status           journals.Status
	ContextOverrides map[string]string
	IsAutomatic      bool
}

// Result reports the outcome of an execution.
type Result struct {
	Success     bool         `json:"success"`
	EntryID     *int64       `json:"entry_id,omitempty"`
	EntryNumber string       `json:"entry_number,omitempty"`
	Message     string       `json:"message,omitempty"`
	Log         ExecutionLog `json:"log"`
}

// TickSummary counts what a scheduler sweep did.
type TickSummary struct {
	Due       int `json:"due"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// PreviewRequest resolves a template without posting.
type PreviewRequest struct {
	Template string
	Context  map[string]string
}

// Preview is the resolved plan of a template.
type Preview struct {
	Lines       []template.LineDraft `json:"lines"`
	Context     map[string]string    `json:"context"`
	TotalDebit  decimal.Decimal      `json:"total_debit"`
	TotalCredit decimal.Decimal      `json:"total_credit"`
	Balanced    bool                 `json:"balanced"`
}
