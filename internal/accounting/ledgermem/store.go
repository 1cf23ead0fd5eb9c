// Package ledgermem is an in-memory ledger store used by LEDGER_TEST_MODE
// and by package tests. Transactions run one at a time against a cloned
// state that only replaces the live state when the callback succeeds.
package ledgermem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

type state struct {
	accounts    map[int64]accounts.Account
	entries     map[int64]journals.JournalEntry
	nextEntryID int64
	nextLineID  int64
}

func (s *state) clone() *state {
	cp := &state{
		accounts:    make(map[int64]accounts.Account, len(s.accounts)),
		entries:     make(map[int64]journals.JournalEntry, len(s.entries)),
		nextEntryID: s.nextEntryID,
		nextLineID:  s.nextLineID,
	}
	for id, a := range s.accounts {
		cp.accounts[id] = a
	}
	for id, e := range s.entries {
		cp.entries[id] = copyEntry(e)
	}
	return cp
}

func copyEntry(e journals.JournalEntry) journals.JournalEntry {
	lines := make([]journals.JournalLine, len(e.Lines))
	copy(lines, e.Lines)
	e.Lines = lines
	return e
}

// Store implements accounts.Repository directly and journals.Repository
// through Journals.
type Store struct {
	mu  sync.Mutex
	txM sync.Mutex
	cur *state
	now func() time.Time

	numberConflicts int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		cur: &state{
			accounts: map[int64]accounts.Account{},
			entries:  map[int64]journals.JournalEntry{},
		},
		now: time.Now,
	}
}

var (
	_ journals.Repository = journalView{}
	_ accounts.Repository = (*Store)(nil)
)

// PutAccount inserts or replaces an account.
func (s *Store) PutAccount(a accounts.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Currency == "" {
		a.Currency = "IDR"
	}
	s.cur.accounts[a.ID] = a
}

// AddAccount registers a postable, active account with a zero balance.
func (s *Store) AddAccount(id int64, code string, nature accounts.Nature, currency string) accounts.Account {
	a := accounts.Account{
		ID:                  id,
		Code:                code,
		Name:                code,
		Nature:              nature,
		Currency:            currency,
		CanPostTransactions: true,
		IsActive:            true,
		Balance:             decimal.Zero,
	}
	s.PutAccount(a)
	return a
}

// Balance returns the running balance of an account.
func (s *Store) Balance(id int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.accounts[id].Balance
}

// EntryCount reports how many entries exist in any status.
func (s *Store) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cur.entries)
}

// InjectNumberConflicts makes the next n generated-number inserts fail as if
// a concurrent writer took the number.
func (s *Store) InjectNumberConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numberConflicts = n
}

func (s *Store) List(_ context.Context) ([]accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounts.Account, 0, len(s.cur.accounts))
	for _, a := range s.cur.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) Get(_ context.Context, id int64) (accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.cur.accounts[id]
	if !ok {
		return accounts.Account{}, shared.Errorf(shared.KindNotFound, "account %d not found", id)
	}
	return a, nil
}

// Journals exposes the journal side of the store, whose Get/List
// signatures collide with the account ones.
func (s *Store) Journals() journals.Repository {
	return journalView{s}
}

type journalView struct{ s *Store }

func (v journalView) Get(_ context.Context, id int64) (journals.JournalEntry, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.cur.entries[id]
	if !ok {
		return journals.JournalEntry{}, shared.Errorf(shared.KindNotFound, "journal entry %d not found", id)
	}
	return copyEntry(e), nil
}

func (v journalView) List(_ context.Context, filter journals.ListFilter) ([]journals.JournalEntry, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := make([]journals.JournalEntry, 0, len(v.s.cur.entries))
	for _, e := range v.s.cur.entries {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (v journalView) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return v.s.WithTx(ctx, fn)
}

// WithTx runs fn against a private copy of the state and publishes it on
// success.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	s.txM.Lock()
	defer s.txM.Unlock()

	s.mu.Lock()
	work := s.cur.clone()
	s.mu.Unlock()

	if err := fn(ctx, &tx{store: s, st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = work
	s.mu.Unlock()
	return nil
}

type tx struct {
	store *Store
	st    *state
}

func (t *tx) LockAccounts(_ context.Context, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		if a, ok := t.st.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (t *tx) ApplyBalanceDelta(_ context.Context, accountID int64, delta decimal.Decimal) error {
	a, ok := t.st.accounts[accountID]
	if !ok {
		return shared.Errorf(shared.KindInvalidAccount, "account %d not found", accountID)
	}
	a.Balance = a.Balance.Add(delta)
	a.UpdatedAt = t.store.now()
	t.st.accounts[accountID] = a
	return nil
}

func (t *tx) FindLiveByReference(_ context.Context, reference string) (journals.JournalEntry, error) {
	var found *journals.JournalEntry
	for _, e := range t.st.entries {
		if e.Reference != reference || e.Status == journals.StatusCancelled {
			continue
		}
		if found == nil || e.ID < found.ID {
			cp := copyEntry(e)
			found = &cp
		}
	}
	if found == nil {
		return journals.JournalEntry{}, shared.Errorf(shared.KindNotFound, "reference %s not found", reference)
	}
	return *found, nil
}

func (t *tx) NextSequence(_ context.Context, year int) (int, error) {
	numbers := make([]string, 0, len(t.st.entries))
	for _, e := range t.st.entries {
		numbers = append(numbers, e.Number)
	}
	return journals.NextSequence(numbers, year), nil
}

func (t *tx) InsertJournalEntry(_ context.Context, entry journals.JournalEntry) (journals.JournalEntry, error) {
	t.store.mu.Lock()
	if t.store.numberConflicts > 0 && strings.HasPrefix(entry.Number, "JE") {
		t.store.numberConflicts--
		t.store.mu.Unlock()
		return journals.JournalEntry{}, journals.ErrNumberConflict
	}
	t.store.mu.Unlock()

	for _, e := range t.st.entries {
		if e.Number == entry.Number {
			return journals.JournalEntry{}, journals.ErrNumberConflict
		}
		if entry.Reference != "" && e.Reference == entry.Reference && e.Status != journals.StatusCancelled {
			return journals.JournalEntry{}, shared.KeyErrorf(shared.KindDuplicateReference, shared.NoLine, "reference", "reference %s already posted", entry.Reference)
		}
	}
	t.st.nextEntryID++
	now := t.store.now()
	entry.ID = t.st.nextEntryID
	entry.CreatedAt = now
	entry.UpdatedAt = now
	entry.Lines = nil
	t.st.entries[entry.ID] = entry
	return entry, nil
}

func (t *tx) InsertJournalLines(_ context.Context, entryID int64, lines []journals.JournalLine) ([]journals.JournalLine, error) {
	e, ok := t.st.entries[entryID]
	if !ok {
		return nil, shared.Errorf(shared.KindNotFound, "journal entry %d not found", entryID)
	}
	out := make([]journals.JournalLine, 0, len(lines))
	for _, line := range lines {
		t.st.nextLineID++
		line.ID = t.st.nextLineID
		line.JournalID = entryID
		out = append(out, line)
	}
	e.Lines = append(e.Lines, out...)
	t.st.entries[entryID] = e
	return out, nil
}

func (t *tx) DeleteJournalLines(_ context.Context, entryID int64) error {
	e, ok := t.st.entries[entryID]
	if !ok {
		return nil
	}
	e.Lines = nil
	t.st.entries[entryID] = e
	return nil
}

func (t *tx) GetJournalForUpdate(_ context.Context, id int64) (journals.JournalEntry, error) {
	e, ok := t.st.entries[id]
	if !ok {
		return journals.JournalEntry{}, shared.Errorf(shared.KindNotFound, "journal entry %d not found", id)
	}
	return copyEntry(e), nil
}

func (t *tx) UpdateJournalHeader(_ context.Context, entry journals.JournalEntry) error {
	e, ok := t.st.entries[entry.ID]
	if !ok {
		return shared.Errorf(shared.KindNotFound, "journal entry %d not found", entry.ID)
	}
	e.Date = entry.Date
	e.Description = entry.Description
	e.BranchID = entry.BranchID
	e.Currency = entry.Currency
	e.UpdatedAt = t.store.now()
	t.st.entries[entry.ID] = e
	return nil
}

func (t *tx) UpdateJournalStatus(_ context.Context, id int64, status journals.Status, postedAt *time.Time) error {
	e, ok := t.st.entries[id]
	if !ok {
		return shared.Errorf(shared.KindNotFound, "journal entry %d not found", id)
	}
	e.Status = status
	if postedAt != nil {
		at := *postedAt
		e.PostedAt = &at
	}
	e.UpdatedAt = t.store.now()
	t.st.entries[id] = e
	return nil
}
