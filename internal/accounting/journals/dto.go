package journals

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountID    int64
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	CostCenterID *int64
	Description  string
}

// CreateInput groups fields required to create a journal entry.
type CreateInput struct {
	Date            time.Time
	Description     string
	BranchID        int64
	CreatedBy       int64
	Lines           []LineInput
	Status          Status
	Reference       string
	Number          string
	ReferencePolicy ReferencePolicy
}

// CreateResult reports the persisted entry. Created is false when a SKIP
// reference policy matched an existing entry.
type CreateResult struct {
	Entry   JournalEntry
	Created bool
}

// PostInput wraps parameters for posting a draft or approved entry.
type PostInput struct {
	EntryID int64
	ActorID int64
}

// EditInput replaces the lines of a draft entry. Nil header fields keep
// their current values.
type EditInput struct {
	EntryID     int64
	ActorID     int64
	Date        *time.Time
	Description *string
	BranchID    *int64
	Lines       []LineInput
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID     int64
	ActorID     int64
	Date        *time.Time
	Description string
}

// ListFilter narrows List results.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// normalizeLines rounds every amount and checks the one-side-only rule.
func normalizeLines(in []LineInput, description string) ([]JournalLine, error) {
	if len(in) == 0 {
		return nil, shared.Errorf(shared.KindMalformedLine, "journal requires at least one line")
	}
	out := make([]JournalLine, 0, len(in))
	for idx, line := range in {
		debit := shared.Round2(line.Debit)
		credit := shared.Round2(line.Credit)
		if line.AccountID <= 0 {
			return nil, shared.LineErrorf(shared.KindInvalidAccount, idx, "line missing account")
		}
		if debit.IsNegative() || credit.IsNegative() {
			return nil, shared.LineErrorf(shared.KindMalformedLine, idx, "negative amount")
		}
		if debit.IsZero() == credit.IsZero() {
			if debit.IsZero() {
				return nil, shared.LineErrorf(shared.KindMalformedLine, idx, "line has neither debit nor credit")
			}
			return nil, shared.LineErrorf(shared.KindMalformedLine, idx, "line cannot be both debit and credit")
		}
		desc := strings.TrimSpace(line.Description)
		if desc == "" {
			desc = description
		}
		out = append(out, JournalLine{
			LineNo:       idx + 1,
			AccountID:    line.AccountID,
			Debit:        debit,
			Credit:       credit,
			CostCenterID: line.CostCenterID,
			Description:  desc,
		})
	}
	return out, nil
}

func initialStatus(s Status) (Status, error) {
	switch s {
	case "":
		return StatusDraft, nil
	case StatusDraft, StatusApproved, StatusPosted:
		return s, nil
	default:
		return "", shared.Errorf(shared.KindInvalidState, "entry cannot be created as %s", s)
	}
}

func referencePolicy(p ReferencePolicy) ReferencePolicy {
	if p == ReferenceSkip {
		return ReferenceSkip
	}
	return ReferenceReject
}
