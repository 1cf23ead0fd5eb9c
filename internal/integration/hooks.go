package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Ledger exposes journal posting operations required by integrations.
type Ledger interface {
	Create(ctx context.Context, input journals.CreateInput) (journals.CreateResult, error)
}

// AccountMappingRepository provides mapping lookups.
type AccountMappingRepository interface {
	Get(ctx context.Context, module, key string) (mappings.AccountMapping, error)
}

// VoucherType distinguishes cash-out from cash-in vouchers.
type VoucherType string

const (
	VoucherPayment VoucherType = "PAYMENT"
	VoucherReceipt VoucherType = "RECEIPT"
)

// VoucherApprovedEvent is raised once a cash voucher is approved.
type VoucherApprovedEvent struct {
	ID         int64
	Number     string
	Type       VoucherType
	Date       time.Time
	Amount     decimal.Decimal
	BranchID   int64
	ApprovedBy int64
}

// AssetExpenseEvent is raised when an asset expense (depreciation,
// maintenance) is recognised.
type AssetExpenseEvent struct {
	ID        int64
	AssetCode string
	Date      time.Time
	Amount    decimal.Decimal
	BranchID  int64
	PostedBy  int64
}

// Hooks wires domain events from operational modules into the general ledger.
type Hooks struct {
	ledger      Ledger
	mappingRepo AccountMappingRepository
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, mappingRepo AccountMappingRepository) *Hooks {
	return &Hooks{ledger: ledger, mappingRepo: mappingRepo}
}

func (h *Hooks) resolveAccount(ctx context.Context, module, key string) (int64, error) {
	mapping, err := h.mappingRepo.Get(ctx, module, key)
	if err != nil {
		return 0, err
	}
	return mapping.AccountID, nil
}

// post creates a POSTED entry keyed by reference. Replaying the same event
// returns the entry created the first time.
func (h *Hooks) post(ctx context.Context, input journals.CreateInput) (journals.CreateResult, error) {
	if input.Reference == "" {
		return journals.CreateResult{}, errors.New("integration: reference required")
	}
	input.Status = journals.StatusPosted
	input.ReferencePolicy = journals.ReferenceSkip
	return h.ledger.Create(ctx, input)
}

func (h *Hooks) ready() bool {
	return h != nil && h.ledger != nil && h.mappingRepo != nil
}

// HandleVoucherApproved posts the cash movement of an approved voucher.
func (h *Hooks) HandleVoucherApproved(ctx context.Context, evt VoucherApprovedEvent) (journals.CreateResult, error) {
	if !h.ready() {
		return journals.CreateResult{}, nil
	}
	if evt.ID <= 0 {
		return journals.CreateResult{}, errors.New("integration: voucher id required")
	}
	if evt.Date.IsZero() {
		return journals.CreateResult{}, errors.New("integration: voucher date required")
	}
	amount := shared.Round2(evt.Amount)
	if !amount.IsPositive() {
		return journals.CreateResult{}, nil
	}
	var debitKey, creditKey string
	switch evt.Type {
	case VoucherPayment:
		debitKey, creditKey = "voucher.payment.expense", "voucher.payment.cash"
	case VoucherReceipt:
		debitKey, creditKey = "voucher.receipt.cash", "voucher.receipt.revenue"
	default:
		return journals.CreateResult{}, fmt.Errorf("integration: unknown voucher type %q", evt.Type)
	}
	debitAccount, err := h.resolveAccount(ctx, "VOUCHER", debitKey)
	if err != nil {
		return journals.CreateResult{}, err
	}
	creditAccount, err := h.resolveAccount(ctx, "VOUCHER", creditKey)
	if err != nil {
		return journals.CreateResult{}, err
	}
	return h.post(ctx, journals.CreateInput{
		Date:        evt.Date,
		Description: fmt.Sprintf("Voucher %s", evt.Number),
		BranchID:    evt.BranchID,
		CreatedBy:   evt.ApprovedBy,
		Reference:   fmt.Sprintf("VOUCHER:%d", evt.ID),
		Lines: []journals.LineInput{
			{AccountID: debitAccount, Debit: amount},
			{AccountID: creditAccount, Credit: amount},
		},
	})
}

// HandleAssetExpense posts an asset expense against accumulated depreciation.
func (h *Hooks) HandleAssetExpense(ctx context.Context, evt AssetExpenseEvent) (journals.CreateResult, error) {
	if !h.ready() {
		return journals.CreateResult{}, nil
	}
	if evt.ID <= 0 {
		return journals.CreateResult{}, errors.New("integration: asset expense id required")
	}
	if evt.Date.IsZero() {
		return journals.CreateResult{}, errors.New("integration: asset expense date required")
	}
	amount := shared.Round2(evt.Amount)
	if !amount.IsPositive() {
		return journals.CreateResult{}, nil
	}
	expenseAccount, err := h.resolveAccount(ctx, "ASSET", "asset.expense.expense")
	if err != nil {
		return journals.CreateResult{}, err
	}
	accumulatedAccount, err := h.resolveAccount(ctx, "ASSET", "asset.expense.accumulated")
	if err != nil {
		return journals.CreateResult{}, err
	}
	return h.post(ctx, journals.CreateInput{
		Date:        evt.Date,
		Description: fmt.Sprintf("Asset expense %s", evt.AssetCode),
		BranchID:    evt.BranchID,
		CreatedBy:   evt.PostedBy,
		Reference:   fmt.Sprintf("ASSETEXP:%d", evt.ID),
		Lines: []journals.LineInput{
			{AccountID: expenseAccount, Debit: amount},
			{AccountID: accumulatedAccount, Credit: amount},
		},
	})
}
