package accounts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDeltaFollowsNature(t *testing.T) {
	hundred := decimal.NewFromInt(100)
	zero := decimal.Zero

	require.True(t, Delta(NatureDebit, hundred, zero).Equal(hundred))
	require.True(t, Delta(NatureDebit, zero, hundred).Equal(hundred.Neg()))
	require.True(t, Delta(NatureCredit, zero, hundred).Equal(hundred))
	require.True(t, Delta(NatureCredit, hundred, zero).Equal(hundred.Neg()))
	require.True(t, NatureDebit.Valid())
	require.False(t, Nature("OTHER").Valid())
}
