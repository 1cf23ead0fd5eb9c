package reports_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/ledgermem"
	"github.com/odyssey-erp/ledger/internal/accounting/reports"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuildTrialBalancesPlacesBalancesByNature(t *testing.T) {
	accts := []accounts.Account{
		{ID: 1, Code: "1000", Name: "Cash", Nature: accounts.NatureDebit, Currency: "IDR", Balance: dec("800")},
		{ID: 2, Code: "1010", Name: "Overdraft", Nature: accounts.NatureDebit, Currency: "IDR", Balance: dec("-50")},
		{ID: 3, Code: "4000", Name: "Sales", Nature: accounts.NatureCredit, Currency: "IDR", Balance: dec("750")},
		{ID: 4, Code: "1100", Name: "USD Cash", Nature: accounts.NatureDebit, Currency: "USD", Balance: dec("10")},
	}

	tbs := reports.BuildTrialBalances(accts)
	require.Len(t, tbs, 2)
	require.Equal(t, "IDR", tbs[0].Currency)
	require.Equal(t, "USD", tbs[1].Currency)

	idr := tbs[0]
	require.Len(t, idr.Groups, 2)
	require.Equal(t, "10", idr.Groups[0].Key)
	require.True(t, idr.Groups[0].Accounts[1].Credit.Equal(dec("50")))
	require.True(t, idr.TotalDebit.Equal(dec("800")))
	require.True(t, idr.TotalCredit.Equal(dec("800")))
	require.True(t, idr.Balanced())
	require.False(t, tbs[1].Balanced())
}

func TestGroupKey(t *testing.T) {
	require.Equal(t, "1", reports.GroupKey("1.100"))
	require.Equal(t, "41", reports.GroupKey("4100"))
	require.Equal(t, "9", reports.GroupKey("9"))
}

func TestTrialBalanceStaysBalancedAfterPostings(t *testing.T) {
	store := ledgermem.New()
	store.AddAccount(1, "1000", accounts.NatureDebit, "IDR")
	store.AddAccount(2, "4000", accounts.NatureCredit, "IDR")
	store.AddAccount(3, "6000", accounts.NatureDebit, "IDR")
	svc := journals.NewService(store.Journals(), nil)

	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	for _, lines := range [][]journals.LineInput{
		{{AccountID: 1, Debit: dec("1200")}, {AccountID: 2, Credit: dec("1200")}},
		{{AccountID: 3, Debit: dec("300.25")}, {AccountID: 1, Credit: dec("300.25")}},
	} {
		_, err := svc.Create(context.Background(), journals.CreateInput{Date: date, Status: journals.StatusPosted, Lines: lines})
		require.NoError(t, err)
	}

	r := chi.NewRouter()
	r.Route("/reports", reports.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), store).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/trial-balance?currency=idr", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		TrialBalances []reports.TrialBalance `json:"trial_balances"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.TrialBalances, 1)
	tb := body.TrialBalances[0]
	require.True(t, tb.Balanced())
	require.True(t, tb.TotalDebit.Equal(dec("1200")))
}
