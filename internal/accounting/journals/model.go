package journals

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Status enumerates journal lifecycle values.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusApproved  Status = "APPROVED"
	StatusPosted    Status = "POSTED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusPosted, StatusCancelled:
		return true
	}
	return false
}

// ReferencePolicy selects how Create treats a reference that is already
// carried by a live entry.
type ReferencePolicy string

const (
	// ReferenceReject fails with DUPLICATE_REFERENCE.
	ReferenceReject ReferencePolicy = "REJECT"
	// ReferenceSkip returns the existing entry without posting again.
	ReferenceSkip ReferencePolicy = "SKIP"
)

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID          int64         `json:"id"`
	Number      string        `json:"number"`
	Date        time.Time     `json:"date"`
	Description string        `json:"description"`
	Reference   string        `json:"reference,omitempty"`
	BranchID    int64         `json:"branch_id"`
	Currency    string        `json:"currency"`
	Status      Status        `json:"status"`
	CreatedBy   int64         `json:"created_by"`
	PostedAt    *time.Time    `json:"posted_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Lines       []JournalLine `json:"lines"`
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID           int64           `json:"id"`
	JournalID    int64           `json:"journal_id"`
	LineNo       int             `json:"line_no"`
	AccountID    int64           `json:"account_id"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	CostCenterID *int64          `json:"cost_center_id,omitempty"`
	Description  string          `json:"description"`
}

// Totals returns the rounded debit and credit sums of the entry lines.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	return totals(e.Lines)
}

// IsBalanced recomputes the balance check from the current lines.
func (e JournalEntry) IsBalanced() bool {
	debit, credit := e.Totals()
	return debit.Equal(credit)
}

func totals(lines []JournalLine) (decimal.Decimal, decimal.Decimal) {
	debits := make([]decimal.Decimal, 0, len(lines))
	credits := make([]decimal.Decimal, 0, len(lines))
	for _, line := range lines {
		debits = append(debits, line.Debit)
		credits = append(credits, line.Credit)
	}
	return shared.SumRounded(debits), shared.SumRounded(credits)
}
