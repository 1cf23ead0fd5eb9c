package ledgermem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/compound"
	"github.com/odyssey-erp/ledger/internal/accounting/compound/trigger"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Definitions is an in-memory compound.Repository.
type Definitions struct {
	mu     sync.Mutex
	defs   map[int64]compound.Definition
	logs   []compound.ExecutionLog
	nextID int64
	logID  int64
	now    func() time.Time
}

var _ compound.Repository = (*Definitions)(nil)

// NewDefinitions returns an empty definition store.
func NewDefinitions() *Definitions {
	return &Definitions{defs: map[int64]compound.Definition{}, now: time.Now}
}

func (d *Definitions) Create(_ context.Context, def compound.Definition) (compound.Definition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	now := d.now()
	def.ID = d.nextID
	def.CreatedAt = now
	def.UpdatedAt = now
	d.defs[def.ID] = def
	return def, nil
}

func (d *Definitions) Update(_ context.Context, def compound.Definition) (compound.Definition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.defs[def.ID]
	if !ok {
		return compound.Definition{}, shared.Errorf(shared.KindNotFound, "compound definition %d not found", def.ID)
	}
	def.CreatedAt = current.CreatedAt
	def.UpdatedAt = d.now()
	d.defs[def.ID] = def
	return def, nil
}

func (d *Definitions) Get(_ context.Context, id int64) (compound.Definition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.defs[id]
	if !ok {
		return compound.Definition{}, shared.Errorf(shared.KindNotFound, "compound definition %d not found", id)
	}
	return def, nil
}

func (d *Definitions) List(_ context.Context) ([]compound.Definition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]compound.Definition, 0, len(d.defs))
	for _, def := range d.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Definitions) ListDue(ctx context.Context, now time.Time) ([]compound.Definition, error) {
	all, err := d.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, def := range all {
		if def.IsActive && def.TriggerType != trigger.Manual && def.NextRun != nil && !def.NextRun.After(now) {
			out = append(out, def)
		}
	}
	return out, nil
}

func (d *Definitions) SetNextRun(_ context.Context, id int64, next *time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.defs[id]
	if !ok {
		return shared.Errorf(shared.KindNotFound, "compound definition %d not found", id)
	}
	def.NextRun = next
	def.UpdatedAt = d.now()
	d.defs[id] = def
	return nil
}

func (d *Definitions) AppendLog(_ context.Context, log compound.ExecutionLog) (compound.ExecutionLog, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logID++
	log.ID = d.logID
	d.logs = append(d.logs, log)
	return log, nil
}

func (d *Definitions) HasAutomaticSuccess(_ context.Context, definitionID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, log := range d.logs {
		if log.DefinitionID == definitionID && log.IsAutomatic && log.Success {
			return true, nil
		}
	}
	return false, nil
}

func (d *Definitions) ListLogs(_ context.Context, definitionID int64, limit int) ([]compound.ExecutionLog, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []compound.ExecutionLog
	for i := len(d.logs) - 1; i >= 0; i-- {
		if d.logs[i].DefinitionID != definitionID {
			continue
		}
		out = append(out, d.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
