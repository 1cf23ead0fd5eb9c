package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Nature is the polarity of an account balance.
type Nature string

const (
	// NatureDebit balances grow with debits (assets, expenses).
	NatureDebit Nature = "DEBIT"
	// NatureCredit balances grow with credits (liabilities, equity, revenue).
	NatureCredit Nature = "CREDIT"
)

// Valid reports whether n is a known polarity.
func (n Nature) Valid() bool {
	return n == NatureDebit || n == NatureCredit
}

// Account models a chart of accounts node and its running balance.
type Account struct {
	ID                  int64           `json:"id"`
	Code                string          `json:"code"`
	Name                string          `json:"name"`
	Nature              Nature          `json:"nature"`
	Currency            string          `json:"currency"`
	CanPostTransactions bool            `json:"can_post_transactions"`
	Balance             decimal.Decimal `json:"balance"`
	IsActive            bool            `json:"is_active"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Delta returns the signed balance change a debit/credit pair causes on an
// account of the given nature.
func Delta(nature Nature, debit, credit decimal.Decimal) decimal.Decimal {
	if nature == NatureCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}
