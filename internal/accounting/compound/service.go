package compound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledger/internal/accounting/compound/template"
	"github.com/odyssey-erp/ledger/internal/accounting/compound/trigger"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/cache"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

// Poster is the posting engine surface used by executions.
type Poster interface {
	Create(ctx context.Context, input journals.CreateInput) (journals.CreateResult, error)
}

// Locker guards a definition while a scheduled firing runs.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// ExecutionRecorder observes execution outcomes.
type ExecutionRecorder interface {
	RecordExecution(automatic, success bool)
}

// DefaultConcurrency bounds parallel firings during one sweep.
const DefaultConcurrency = 4

// Service orchestrates compound journal definitions.
type Service struct {
	repo        Repository
	poster      Poster
	locker      Locker
	recorder    ExecutionRecorder
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
}

// NewService constructs the orchestrator.
func NewService(repo Repository, poster Poster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		poster:      poster,
		logger:      logger,
		now:         time.Now,
		concurrency: DefaultConcurrency,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLocker installs the cross-worker definition lock.
func (s *Service) WithLocker(l Locker) {
	s.locker = l
}

// WithRecorder installs the execution metrics sink.
func (s *Service) WithRecorder(r ExecutionRecorder) {
	s.recorder = r
}

// WithConcurrency bounds parallel firings in RunDue.
func (s *Service) WithConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

func (s *Service) Get(ctx context.Context, id int64) (Definition, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Definition, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListLogs(ctx context.Context, definitionID int64, limit int) ([]ExecutionLog, error) {
	if _, err := s.repo.Get(ctx, definitionID); err != nil {
		return nil, err
	}
	return s.repo.ListLogs(ctx, definitionID, limit)
}

// CreateDefinition validates and stores a new definition.
func (s *Service) CreateDefinition(ctx context.Context, in DefinitionInput) (Definition, error) {
	def, err := s.prepare(in)
	if err != nil {
		return Definition{}, err
	}
	def.CreatedBy = in.ActorID
	return s.repo.Create(ctx, def)
}

// UpdateDefinition replaces the editable fields of a definition. The next run
// is kept unless the trigger changed, and a one-time definition that already
// fired automatically is never re-armed.
func (s *Service) UpdateDefinition(ctx context.Context, id int64, in DefinitionInput) (Definition, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Definition{}, err
	}
	def, err := s.prepare(in)
	if err != nil {
		return Definition{}, err
	}
	def.ID = current.ID
	def.CreatedBy = current.CreatedBy
	switch {
	case sameTrigger(current, def):
		def.NextRun = current.NextRun
	case def.TriggerType == trigger.OneTime:
		fired, err := s.repo.HasAutomaticSuccess(ctx, id)
		if err != nil {
			return Definition{}, err
		}
		if fired {
			def.NextRun = nil
		}
	}
	return s.repo.Update(ctx, def)
}

func sameTrigger(a, b Definition) bool {
	return a.TriggerType == b.TriggerType &&
		a.RecurrenceUnit == b.RecurrenceUnit &&
		a.RecurrenceInterval == b.RecurrenceInterval &&
		sameInstant(a.StartDate, b.StartDate)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (s *Service) prepare(in DefinitionInput) (Definition, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Definition{}, shared.KeyErrorf(shared.KindInvalidDefinition, shared.NoLine, "name", "name is required")
	}
	if !in.TriggerType.Valid() {
		return Definition{}, shared.KeyErrorf(shared.KindInvalidDefinition, shared.NoLine, "trigger_type", "unknown trigger type %q", in.TriggerType)
	}
	def := Definition{
		Name:        name,
		Template:    in.Template,
		TriggerType: in.TriggerType,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		IsActive:    in.IsActive,
	}
	switch in.TriggerType {
	case trigger.Recurring:
		if !in.RecurrenceUnit.Valid() {
			return Definition{}, shared.KeyErrorf(shared.KindInvalidDefinition, shared.NoLine, "recurrence_unit", "unknown recurrence unit %q", in.RecurrenceUnit)
		}
		def.RecurrenceUnit = in.RecurrenceUnit
		def.RecurrenceInterval = in.RecurrenceInterval
		if def.RecurrenceInterval < 1 {
			def.RecurrenceInterval = 1
		}
	case trigger.OneTime:
		if in.StartDate == nil {
			return Definition{}, shared.KeyErrorf(shared.KindInvalidDefinition, shared.NoLine, "start_date", "one-time definitions need a start date")
		}
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return Definition{}, shared.KeyErrorf(shared.KindInvalidDefinition, shared.NoLine, "end_date", "end date precedes start date")
	}
	if _, err := template.Parse(in.Template); err != nil {
		return Definition{}, err
	}
	def.NextRun = trigger.ComputeNextRun(def.Schedule(), s.now())
	return def, nil
}

// Preview parses and resolves a template without posting.
func (s *Service) Preview(_ context.Context, req PreviewRequest) (Preview, error) {
	tpl, err := template.Parse(req.Template)
	if err != nil {
		return Preview{}, err
	}
	merged := template.MergeContext(tpl.DefaultContext, req.Context)
	lines, err := template.BuildLines(tpl, merged)
	if err != nil {
		return Preview{}, err
	}
	p := Preview{Lines: lines, Context: merged}
	for _, line := range lines {
		p.TotalDebit = p.TotalDebit.Add(shared.Round2(line.Debit))
		p.TotalCredit = p.TotalCredit.Add(shared.Round2(line.Credit))
	}
	p.Balanced = p.TotalDebit.Equal(p.TotalCredit)
	return p, nil
}

// Execute fires definitionID once. Manual executions return categorized
// errors next to the failed result; automatic executions report failures
// only through the result and the execution log.
func (s *Service) Execute(ctx context.Context, definitionID int64, req Request) (Result, error) {
	if req.ExecutionDate.IsZero() {
		req.ExecutionDate = s.now()
	}
	def, err := s.repo.Get(ctx, definitionID)
	if err == nil && !def.IsActive {
		err = shared.Errorf(shared.KindNotFound, "compound definition %d is inactive", definitionID)
	}
	if err != nil {
		s.observe(req.IsAutomatic, false)
		return s.surface(req, Result{Message: err.Error()}, err)
	}

	log := ExecutionLog{
		DefinitionID: def.ID,
		ExecutedAt:   req.ExecutionDate,
		IsAutomatic:  req.IsAutomatic,
		ExecutedBy:   req.ExecutorID,
	}

	tpl, err := template.Parse(def.Template)
	if err != nil {
		return s.fail(ctx, req, log, err)
	}
	merged := template.MergeContext(tpl.DefaultContext, req.ContextOverrides)
	log.Context = merged

	drafts, err := template.BuildLines(tpl, merged)
	if err != nil {
		return s.fail(ctx, req, log, err)
	}

	created, err := s.poster.Create(ctx, s.postingInput(def, tpl, drafts, req))
	if err != nil {
		return s.fail(ctx, req, log, err)
	}

	entryID := created.Entry.ID
	log.Success = true
	log.EntryID = &entryID
	log.EntryNumber = created.Entry.Number
	log.Message = "posted " + created.Entry.Number
	if !created.Created {
		log.Message = "already posted " + created.Entry.Number
	}
	log = s.appendLog(ctx, log)
	s.observe(req.IsAutomatic, true)

	if req.IsAutomatic {
		next := trigger.Advance(def.Schedule(), req.ExecutionDate)
		if err := s.repo.SetNextRun(ctx, def.ID, next); err != nil {
			s.logger.Error("advance compound schedule", slog.Int64("definition_id", def.ID), slog.Any("error", err))
		}
	}

	return Result{
		Success:     true,
		EntryID:     &entryID,
		EntryNumber: created.Entry.Number,
		Message:     log.Message,
		Log:         log,
	}, nil
}

func (s *Service) postingInput(def Definition, tpl template.Template, drafts []template.LineDraft, req Request) journals.CreateInput {
	in := journals.CreateInput{
		Date:        req.ExecutionDate,
		Description: req.Description,
		BranchID:    tpl.DefaultBranchID,
		CreatedBy:   req.ExecutorID,
		Reference:   req.Reference,
		Status:      req.Status,
		Lines:       make([]journals.LineInput, 0, len(drafts)),
	}
	// Automatic firings post on the scheduled date under a reference derived
	// from it. Replaying a run returns the entry it already posted.
	if req.IsAutomatic && def.NextRun != nil {
		in.Date = *def.NextRun
		if in.Reference == "" {
			in.Reference = ScheduledReference(def.ID, *def.NextRun)
			in.ReferencePolicy = journals.ReferenceSkip
		}
	}
	if req.JournalDate != nil {
		in.Date = *req.JournalDate
	}
	if in.Description == "" {
		in.Description = tpl.Description
	}
	if in.Description == "" {
		in.Description = def.Name
	}
	if req.BranchID != nil {
		in.BranchID = *req.BranchID
	}
	if in.Status == "" {
		in.Status = tpl.DefaultStatus
	}
	if in.Status == "" {
		in.Status = journals.StatusPosted
	}
	for _, d := range drafts {
		in.Lines = append(in.Lines, journals.LineInput{
			AccountID:    d.AccountID,
			Debit:        d.Debit,
			Credit:       d.Credit,
			CostCenterID: d.CostCenterID,
			Description:  d.Description,
		})
	}
	return in
}

// ScheduledReference is the journal reference of the automatic run of a
// definition scheduled at run.
func ScheduledReference(definitionID int64, run time.Time) string {
	return fmt.Sprintf("COMPOUND:%d:%s", definitionID, run.UTC().Format(time.RFC3339))
}

func (s *Service) fail(ctx context.Context, req Request, log ExecutionLog, cause error) (Result, error) {
	log.Success = false
	log.Message = cause.Error()
	log = s.appendLog(ctx, log)
	s.observe(req.IsAutomatic, false)
	s.logger.Warn("compound execution failed",
		slog.Int64("definition_id", log.DefinitionID),
		slog.Bool("automatic", req.IsAutomatic),
		slog.String("kind", string(shared.KindOf(cause))),
		slog.Any("error", cause))
	return s.surface(req, Result{Message: log.Message, Log: log}, cause)
}

func (s *Service) surface(req Request, res Result, err error) (Result, error) {
	if req.IsAutomatic {
		return res, nil
	}
	return res, err
}

func (s *Service) appendLog(ctx context.Context, log ExecutionLog) ExecutionLog {
	stored, err := s.repo.AppendLog(ctx, log)
	if err != nil {
		s.logger.Error("append compound execution log", slog.Int64("definition_id", log.DefinitionID), slog.Any("error", err))
		return log
	}
	return stored
}

func (s *Service) observe(automatic, success bool) {
	if s.recorder != nil {
		s.recorder.RecordExecution(automatic, success)
	}
}

// RunDue fires every definition due at now. Each firing holds the
// definition lock and rechecks the schedule, so overlapping sweeps from
// several workers fire a definition at most once per due run.
func (s *Service) RunDue(ctx context.Context, now time.Time) (TickSummary, error) {
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return TickSummary{}, err
	}
	var (
		mu      sync.Mutex
		summary = TickSummary{Due: len(due)}
	)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, def := range due {
		g.Go(func() error {
			fired, ok := s.fireLocked(gctx, def.ID, now)
			switch {
			case !fired:
				count(&summary.Skipped)
			case ok:
				count(&summary.Succeeded)
			default:
				count(&summary.Failed)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Service) fireLocked(ctx context.Context, id int64, now time.Time) (fired, success bool) {
	release := func(context.Context) error { return nil }
	if s.locker != nil {
		var err error
		release, err = s.locker.Acquire(ctx, internalShared.DefinitionLockKey(id))
		if err != nil {
			if !errors.Is(err, cache.ErrLockHeld) {
				s.logger.Warn("acquire compound lock", slog.Int64("definition_id", id), slog.Any("error", err))
			}
			return false, false
		}
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release compound lock", slog.Int64("definition_id", id), slog.Any("error", err))
		}
	}()

	def, err := s.repo.Get(ctx, id)
	if err != nil || !trigger.IsDue(def.Schedule(), now) {
		return false, false
	}
	res, _ := s.Execute(ctx, id, Request{
		ExecutionDate: now,
		IsAutomatic:   true,
	})
	return true, res.Success
}
