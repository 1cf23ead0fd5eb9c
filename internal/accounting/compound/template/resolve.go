package template

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// LineDraft is a resolved line ready for the posting engine. Exactly one of
// Debit and Credit is non-zero when the rule resolved to a non-zero amount.
type LineDraft struct {
	AccountID    int64
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	CostCenterID *int64
	Description  string
}

// ResolveValue evaluates rule against ctx.
func ResolveValue(rule Rule, ctx map[string]string) (decimal.Decimal, error) {
	switch rule.Kind {
	case RuleFixed:
		return rule.Amount, nil
	case RuleContext:
		raw, ok := ctx[rule.Key]
		if !ok {
			return decimal.Zero, shared.KeyErrorf(shared.KindMissingContextValue, shared.NoLine, rule.Key, "context value %q missing", rule.Key)
		}
		amount, err := shared.ParseAmount(raw)
		if err != nil {
			return decimal.Zero, shared.KeyErrorf(shared.KindInvalidContextValue, shared.NoLine, rule.Key, "context value %q=%q is not an amount", rule.Key, strings.TrimSpace(raw))
		}
		return amount, nil
	default:
		return decimal.Zero, parseError("unknown rule type %q", rule.Kind)
	}
}

// MergeContext returns a copy of defaults with overrides applied key by key.
func MergeContext(defaults, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// BuildLines resolves every line of t in order.
func BuildLines(t Template, ctx map[string]string) ([]LineDraft, error) {
	if len(t.Lines) == 0 {
		return nil, parseError("template has no lines")
	}
	out := make([]LineDraft, 0, len(t.Lines))
	for idx, line := range t.Lines {
		draft := LineDraft{
			AccountID:    line.AccountID,
			CostCenterID: line.CostCenterID,
			Description:  line.Description,
		}
		switch {
		case line.Debit != nil && line.Credit == nil:
			amount, err := ResolveValue(*line.Debit, ctx)
			if err != nil {
				return nil, shared.WithLine(err, idx)
			}
			draft.Debit = amount
		case line.Credit != nil && line.Debit == nil:
			amount, err := ResolveValue(*line.Credit, ctx)
			if err != nil {
				return nil, shared.WithLine(err, idx)
			}
			draft.Credit = amount
		default:
			return nil, shared.LineErrorf(shared.KindTemplateParse, idx, "line must set exactly one of debit or credit rule")
		}
		out = append(out, draft)
	}
	return out, nil
}
