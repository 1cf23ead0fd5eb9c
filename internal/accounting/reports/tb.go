// Package reports derives read-only views from account balances.
package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
)

// GroupKey returns the chart segment an account code belongs to.
func GroupKey(code string) string {
	if idx := strings.Index(code, "."); idx > 0 {
		return code[:idx]
	}
	if len(code) >= 2 {
		return code[:2]
	}
	return code
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	ID     int64           `json:"id"`
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Nature accounts.Nature `json:"nature"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// TrialBalanceGroup aggregates accounts sharing a code segment.
type TrialBalanceGroup struct {
	Key      string                `json:"key"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
}

// TrialBalance lists every account of one currency on its natural side.
type TrialBalance struct {
	Currency    string              `json:"currency"`
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  decimal.Decimal     `json:"total_debit"`
	TotalCredit decimal.Decimal     `json:"total_credit"`
}

// Balanced reports whether debit and credit columns agree.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// sides places a signed running balance in the debit or credit column. A
// negative balance on a debit-nature account is shown as a credit and vice
// versa.
func sides(a accounts.Account) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	positive := a.Balance.Sign() >= 0
	switch {
	case a.Nature == accounts.NatureCredit && positive:
		credit = a.Balance
	case a.Nature == accounts.NatureCredit:
		debit = a.Balance.Neg()
	case positive:
		debit = a.Balance
	default:
		credit = a.Balance.Neg()
	}
	return debit, credit
}

// BuildTrialBalances produces one trial balance per currency, ordered by
// currency code. Groups and rows are ordered by account code.
func BuildTrialBalances(accts []accounts.Account) []TrialBalance {
	byCurrency := make(map[string][]accounts.Account)
	for _, a := range accts {
		byCurrency[a.Currency] = append(byCurrency[a.Currency], a)
	}
	currencies := make([]string, 0, len(byCurrency))
	for c := range byCurrency {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	out := make([]TrialBalance, 0, len(currencies))
	for _, c := range currencies {
		out = append(out, buildTrialBalance(c, byCurrency[c]))
	}
	return out
}

func buildTrialBalance(currency string, accts []accounts.Account) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range accts {
		key := GroupKey(acc.Code)
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key, Debit: decimal.Zero, Credit: decimal.Zero}
			groups[key] = grp
			keys = append(keys, key)
		}
		debit, credit := sides(acc)
		grp.Accounts = append(grp.Accounts, TrialBalanceAccount{
			ID:     acc.ID,
			Code:   acc.Code,
			Name:   acc.Name,
			Nature: acc.Nature,
			Debit:  debit,
			Credit: credit,
		})
		grp.Debit = grp.Debit.Add(debit)
		grp.Credit = grp.Credit.Add(credit)
	}

	sort.Strings(keys)
	result := TrialBalance{Currency: currency, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	return result
}
