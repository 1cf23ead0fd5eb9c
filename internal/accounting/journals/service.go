package journals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// DefaultRetries bounds restarts on numbering conflicts and serialization failures.
const DefaultRetries = 3

// Service is the posting engine: the single writer of journal entries and
// account balances.
type Service struct {
	repo    Repository
	audit   AuditPort
	now     func() time.Time
	retries int
}

// NewService constructs the posting engine.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now, retries: DefaultRetries}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithRetries overrides the restart budget.
func (s *Service) WithRetries(n int) {
	if n > 0 {
		s.retries = n
	}
}

func (s *Service) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) retryable(explicitNumber bool) func(error) bool {
	return func(err error) bool {
		if db.IsTransient(err) {
			return true
		}
		if errors.Is(err, errReferenceRace) {
			return true
		}
		return !explicitNumber && errors.Is(err, ErrNumberConflict)
	}
}

// errReferenceRace restarts a SKIP create that lost the reference to a
// concurrent writer so the retry observes the winner.
var errReferenceRace = errors.New("accounting: reference taken concurrently")

// Create validates and persists a new journal entry. Entries created as
// POSTED update account balances in the same transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (CreateResult, error) {
	status, err := initialStatus(input.Status)
	if err != nil {
		return CreateResult{}, err
	}
	lines, err := normalizeLines(input.Lines, input.Description)
	if err != nil {
		return CreateResult{}, err
	}
	reference := strings.TrimSpace(input.Reference)
	number := strings.TrimSpace(input.Number)
	policy := referencePolicy(input.ReferencePolicy)

	var result CreateResult
	err = db.Retry(ctx, s.retries, s.retryable(number != ""), func() error {
		result = CreateResult{}
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if reference != "" {
				existing, err := tx.FindLiveByReference(ctx, reference)
				switch {
				case err == nil:
					if policy == ReferenceSkip {
						result = CreateResult{Entry: existing, Created: false}
						return nil
					}
					return shared.KeyErrorf(shared.KindDuplicateReference, shared.NoLine, "reference",
						"reference %s already used by %s", reference, existing.Number)
				case shared.KindOf(err) != shared.KindNotFound:
					return err
				}
			}
			locked, err := tx.LockAccounts(ctx, accountIDs(lines))
			if err != nil {
				return err
			}
			currency, err := validateAgainstAccounts(lines, locked)
			if err != nil {
				return err
			}
			entry := JournalEntry{
				Number:      number,
				Date:        input.Date,
				Description: input.Description,
				Reference:   reference,
				BranchID:    input.BranchID,
				Currency:    currency,
				Status:      status,
				CreatedBy:   input.CreatedBy,
			}
			if entry.Number == "" {
				seq, err := tx.NextSequence(ctx, input.Date.Year())
				if err != nil {
					return err
				}
				entry.Number = FormatNumber(input.Date.Year(), seq)
			}
			if status == StatusPosted {
				postedAt := s.now()
				entry.PostedAt = &postedAt
			}
			inserted, err := tx.InsertJournalEntry(ctx, entry)
			if err != nil {
				if errors.Is(err, ErrNumberConflict) && number != "" {
					return shared.KeyErrorf(shared.KindDuplicateReference, shared.NoLine, "number", "number %s already exists", number)
				}
				if policy == ReferenceSkip && shared.KindOf(err) == shared.KindDuplicateReference {
					return errReferenceRace
				}
				return err
			}
			inserted.Lines, err = tx.InsertJournalLines(ctx, inserted.ID, lines)
			if err != nil {
				return err
			}
			if status == StatusPosted {
				if err := applyBalances(ctx, tx, inserted.Lines, locked); err != nil {
					return err
				}
			}
			result = CreateResult{Entry: inserted, Created: true}
			return nil
		})
	})
	if err != nil {
		return CreateResult{}, err
	}
	if result.Created {
		action := "journal.create"
		if result.Entry.Status == StatusPosted {
			action = "journal.post"
		}
		s.record(ctx, input.CreatedBy, action, result.Entry, map[string]any{
			"number":    result.Entry.Number,
			"status":    string(result.Entry.Status),
			"reference": result.Entry.Reference,
		})
	}
	return result, nil
}

// Post transitions a DRAFT or APPROVED entry to POSTED and applies balances.
func (s *Service) Post(ctx context.Context, input PostInput) (JournalEntry, error) {
	if input.EntryID <= 0 {
		return JournalEntry{}, shared.Errorf(shared.KindNotFound, "entry id required")
	}
	var entry JournalEntry
	err := db.Retry(ctx, s.retries, db.IsTransient, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetJournalForUpdate(ctx, input.EntryID)
			if err != nil {
				return err
			}
			if current.Status != StatusDraft && current.Status != StatusApproved {
				return shared.Errorf(shared.KindInvalidState, "entry %s is %s", current.Number, current.Status)
			}
			if !current.IsBalanced() {
				debit, credit := current.Totals()
				return shared.Errorf(shared.KindUnbalanced, "debit %s != credit %s", debit.StringFixed(2), credit.StringFixed(2))
			}
			locked, err := tx.LockAccounts(ctx, accountIDs(current.Lines))
			if err != nil {
				return err
			}
			if _, err := validateAgainstAccounts(current.Lines, locked); err != nil {
				return err
			}
			postedAt := s.now()
			if err := tx.UpdateJournalStatus(ctx, current.ID, StatusPosted, &postedAt); err != nil {
				return err
			}
			if err := applyBalances(ctx, tx, current.Lines, locked); err != nil {
				return err
			}
			current.Status = StatusPosted
			current.PostedAt = &postedAt
			entry = current
			return nil
		})
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, input.ActorID, "journal.post", entry, map[string]any{"number": entry.Number})
	return entry, nil
}

// Approve moves a DRAFT entry to APPROVED.
func (s *Service) Approve(ctx context.Context, entryID, actorID int64) (JournalEntry, error) {
	return s.transition(ctx, entryID, actorID, StatusApproved, "journal.approve")
}

// Cancel moves a DRAFT entry to CANCELLED, releasing its reference.
func (s *Service) Cancel(ctx context.Context, entryID, actorID int64) (JournalEntry, error) {
	return s.transition(ctx, entryID, actorID, StatusCancelled, "journal.cancel")
}

func (s *Service) transition(ctx context.Context, entryID, actorID int64, to Status, action string) (JournalEntry, error) {
	var entry JournalEntry
	err := db.Retry(ctx, s.retries, db.IsTransient, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetJournalForUpdate(ctx, entryID)
			if err != nil {
				return err
			}
			if current.Status != StatusDraft {
				return shared.Errorf(shared.KindInvalidState, "entry %s is %s, cannot become %s", current.Number, current.Status, to)
			}
			if err := tx.UpdateJournalStatus(ctx, current.ID, to, nil); err != nil {
				return err
			}
			current.Status = to
			entry = current
			return nil
		})
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, actorID, action, entry, map[string]any{"number": entry.Number})
	return entry, nil
}

// Edit replaces the lines (and optionally header fields) of a DRAFT entry.
// Balances are not touched.
func (s *Service) Edit(ctx context.Context, input EditInput) (JournalEntry, error) {
	var entry JournalEntry
	err := db.Retry(ctx, s.retries, db.IsTransient, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetJournalForUpdate(ctx, input.EntryID)
			if err != nil {
				return err
			}
			if current.Status != StatusDraft {
				return shared.Errorf(shared.KindInvalidState, "entry %s is %s and can no longer be edited", current.Number, current.Status)
			}
			if input.Date != nil {
				current.Date = *input.Date
			}
			if input.Description != nil {
				current.Description = *input.Description
			}
			if input.BranchID != nil {
				current.BranchID = *input.BranchID
			}
			lines, err := normalizeLines(input.Lines, current.Description)
			if err != nil {
				return err
			}
			locked, err := tx.LockAccounts(ctx, accountIDs(lines))
			if err != nil {
				return err
			}
			current.Currency, err = validateAgainstAccounts(lines, locked)
			if err != nil {
				return err
			}
			if err := tx.UpdateJournalHeader(ctx, current); err != nil {
				return err
			}
			if err := tx.DeleteJournalLines(ctx, current.ID); err != nil {
				return err
			}
			current.Lines, err = tx.InsertJournalLines(ctx, current.ID, lines)
			if err != nil {
				return err
			}
			entry = current
			return nil
		})
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, input.ActorID, "journal.edit", entry, map[string]any{"lines": len(entry.Lines)})
	return entry, nil
}

// Reverse issues a new POSTED entry mirroring a posted one. Each entry can be
// reversed once.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	original, err := s.repo.Get(ctx, input.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if original.Status != StatusPosted {
		return JournalEntry{}, shared.Errorf(shared.KindInvalidState, "only posted entries can be reversed, %s is %s", original.Number, original.Status)
	}
	date := s.now()
	if input.Date != nil {
		date = *input.Date
	}
	result, err := s.Create(ctx, CreateInput{
		Date:        date,
		Description: defaultReversalMemo(input.Description, original.Number),
		BranchID:    original.BranchID,
		CreatedBy:   input.ActorID,
		Lines:       reverseLines(original.Lines),
		Status:      StatusPosted,
		Reference:   "REVERSAL:" + original.Number,
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return result.Entry, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entry JournalEntry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta:     meta,
		At:       s.now(),
	})
}

func accountIDs(lines []JournalLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// validateAgainstAccounts enforces postable accounts, a single currency and
// the balance of rounded totals. It returns the shared currency.
func validateAgainstAccounts(lines []JournalLine, locked map[int64]accounts.Account) (string, error) {
	currency := ""
	for idx, line := range lines {
		account, ok := locked[line.AccountID]
		if !ok {
			return "", shared.LineErrorf(shared.KindInvalidAccount, idx, "account %d does not exist", line.AccountID)
		}
		if !account.CanPostTransactions {
			return "", shared.LineErrorf(shared.KindInvalidAccount, idx, "account %s does not accept postings", account.Code)
		}
		if currency == "" {
			currency = account.Currency
			continue
		}
		if account.Currency != currency {
			return "", shared.LineErrorf(shared.KindCurrencyMismatch, idx, "account %s is %s, entry is %s", account.Code, account.Currency, currency)
		}
	}
	debit, credit := totals(lines)
	if !debit.Equal(credit) {
		return "", shared.Errorf(shared.KindUnbalanced, "debit %s != credit %s", debit.StringFixed(2), credit.StringFixed(2))
	}
	return currency, nil
}

func applyBalances(ctx context.Context, tx TxRepository, lines []JournalLine, locked map[int64]accounts.Account) error {
	for _, line := range lines {
		account := locked[line.AccountID]
		delta := accounts.Delta(account.Nature, line.Debit, line.Credit)
		if delta.IsZero() {
			continue
		}
		if err := tx.ApplyBalanceDelta(ctx, line.AccountID, delta); err != nil {
			return err
		}
	}
	return nil
}

func reverseLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:    line.AccountID,
			Debit:        line.Credit,
			Credit:       line.Debit,
			CostCenterID: line.CostCenterID,
			Description:  line.Description,
		})
	}
	return out
}

func defaultReversalMemo(memo, number string) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of %s", number)
}
