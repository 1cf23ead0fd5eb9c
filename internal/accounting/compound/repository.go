package compound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Repository persists definitions and their execution logs.
type Repository interface {
	Create(ctx context.Context, def Definition) (Definition, error)
	Update(ctx context.Context, def Definition) (Definition, error)
	Get(ctx context.Context, id int64) (Definition, error)
	List(ctx context.Context) ([]Definition, error)
	// ListDue returns active definitions whose next run is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]Definition, error)
	SetNextRun(ctx context.Context, id int64, next *time.Time) error
	AppendLog(ctx context.Context, log ExecutionLog) (ExecutionLog, error)
	// HasAutomaticSuccess reports whether any automatic execution posted.
	HasAutomaticSuccess(ctx context.Context, definitionID int64) (bool, error)
	// ListLogs returns the newest logs first.
	ListLogs(ctx context.Context, definitionID int64, limit int) ([]ExecutionLog, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx backed definition store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const definitionColumns = `id, name, template, trigger_type, COALESCE(recurrence_unit, ''), recurrence_interval,
start_date, end_date, next_run, is_active, COALESCE(created_by, 0), created_at, updated_at`

const logColumns = `id, definition_id, executed_at, is_automatic, COALESCE(executed_by, 0), entry_id,
COALESCE(entry_number, ''), success, message, context`

func scanDefinition(row pgx.Row) (Definition, error) {
	var d Definition
	err := row.Scan(&d.ID, &d.Name, &d.Template, &d.TriggerType, &d.RecurrenceUnit, &d.RecurrenceInterval,
		&d.StartDate, &d.EndDate, &d.NextRun, &d.IsActive, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func collectDefinitions(rows pgx.Rows) ([]Definition, error) {
	defer rows.Close()
	var out []Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func notFound(id int64, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Errorf(shared.KindNotFound, "compound definition %d not found", id)
	}
	return err
}

func (r *repository) Create(ctx context.Context, d Definition) (Definition, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO compound_definitions
(name, template, trigger_type, recurrence_unit, recurrence_interval, start_date, end_date, next_run, is_active, created_by)
VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9,NULLIF($10::bigint,0)) RETURNING `+definitionColumns,
		d.Name, d.Template, d.TriggerType, string(d.RecurrenceUnit), d.RecurrenceInterval, d.StartDate, d.EndDate, d.NextRun, d.IsActive, d.CreatedBy)
	created, err := scanDefinition(row)
	if err != nil {
		return Definition{}, fmt.Errorf("compound: insert definition: %w", err)
	}
	return created, nil
}

func (r *repository) Update(ctx context.Context, d Definition) (Definition, error) {
	row := r.db.QueryRow(ctx, `UPDATE compound_definitions SET name=$2, template=$3, trigger_type=$4,
recurrence_unit=NULLIF($5,''), recurrence_interval=$6, start_date=$7, end_date=$8, next_run=$9, is_active=$10, updated_at=NOW()
WHERE id=$1 RETURNING `+definitionColumns,
		d.ID, d.Name, d.Template, d.TriggerType, string(d.RecurrenceUnit), d.RecurrenceInterval, d.StartDate, d.EndDate, d.NextRun, d.IsActive)
	updated, err := scanDefinition(row)
	if err != nil {
		return Definition{}, notFound(d.ID, err)
	}
	return updated, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Definition, error) {
	d, err := scanDefinition(r.db.QueryRow(ctx, `SELECT `+definitionColumns+` FROM compound_definitions WHERE id=$1`, id))
	if err != nil {
		return Definition{}, notFound(id, err)
	}
	return d, nil
}

func (r *repository) List(ctx context.Context) ([]Definition, error) {
	rows, err := r.db.Query(ctx, `SELECT `+definitionColumns+` FROM compound_definitions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectDefinitions(rows)
}

func (r *repository) ListDue(ctx context.Context, now time.Time) ([]Definition, error) {
	rows, err := r.db.Query(ctx, `SELECT `+definitionColumns+` FROM compound_definitions
WHERE is_active AND trigger_type <> 'MANUAL' AND next_run IS NOT NULL AND next_run <= $1
ORDER BY next_run, id`, now)
	if err != nil {
		return nil, err
	}
	return collectDefinitions(rows)
}

func (r *repository) SetNextRun(ctx context.Context, id int64, next *time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE compound_definitions SET next_run=$2, updated_at=NOW() WHERE id=$1`, id, next)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.KindNotFound, "compound definition %d not found", id)
	}
	return nil
}

func (r *repository) AppendLog(ctx context.Context, log ExecutionLog) (ExecutionLog, error) {
	contextJSON, err := json.Marshal(log.Context)
	if err != nil {
		return ExecutionLog{}, err
	}
	err = r.db.QueryRow(ctx, `INSERT INTO compound_execution_logs
(definition_id, executed_at, is_automatic, executed_by, entry_id, entry_number, success, message, context)
VALUES ($1,$2,$3,NULLIF($4::bigint,0),$5,NULLIF($6,''),$7,$8,$9) RETURNING id`,
		log.DefinitionID, log.ExecutedAt, log.IsAutomatic, log.ExecutedBy, log.EntryID, log.EntryNumber, log.Success, log.Message, contextJSON).Scan(&log.ID)
	if err != nil {
		return ExecutionLog{}, fmt.Errorf("compound: append log: %w", err)
	}
	return log, nil
}

func (r *repository) HasAutomaticSuccess(ctx context.Context, definitionID int64) (bool, error) {
	var fired bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM compound_execution_logs
WHERE definition_id=$1 AND is_automatic AND success)`, definitionID).Scan(&fired)
	if err != nil {
		return false, fmt.Errorf("compound: automatic history: %w", err)
	}
	return fired, nil
}

func (r *repository) ListLogs(ctx context.Context, definitionID int64, limit int) ([]ExecutionLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+logColumns+` FROM compound_execution_logs
WHERE definition_id=$1 ORDER BY executed_at DESC, id DESC LIMIT $2`, definitionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExecutionLog
	for rows.Next() {
		var l ExecutionLog
		var raw []byte
		if err := rows.Scan(&l.ID, &l.DefinitionID, &l.ExecutedAt, &l.IsAutomatic, &l.ExecutedBy, &l.EntryID, &l.EntryNumber, &l.Success, &l.Message, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &l.Context); err != nil {
				return nil, err
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
