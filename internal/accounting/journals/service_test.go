package journals_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/ledgermem"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

const (
	cash    int64 = 1
	revenue int64 = 2
	expense int64 = 3
	usdCash int64 = 4
)

var fixedNow = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) (*journals.Service, *ledgermem.Store, *internalShared.MemoryAudit) {
	t.Helper()
	store := ledgermem.New()
	store.AddAccount(cash, "1000", accounts.NatureDebit, "IDR")
	store.AddAccount(revenue, "4000", accounts.NatureCredit, "IDR")
	store.AddAccount(expense, "6000", accounts.NatureDebit, "IDR")
	store.AddAccount(usdCash, "1100", accounts.NatureDebit, "USD")
	audit := &internalShared.MemoryAudit{}
	svc := journals.NewService(store.Journals(), audit)
	svc.WithNow(func() time.Time { return fixedNow })
	return svc, store, audit
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func saleLines(v string) []journals.LineInput {
	return []journals.LineInput{
		{AccountID: cash, Debit: amount(v)},
		{AccountID: revenue, Credit: amount(v)},
	}
}

func TestCreatePostedUpdatesBalancesByNature(t *testing.T) {
	svc, store, audit := newFixture(t)

	res, err := svc.Create(context.Background(), journals.CreateInput{
		Date:        fixedNow,
		Description: "cash sale",
		Lines:       saleLines("100.00"),
		Status:      journals.StatusPosted,
	})
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Equal(t, journals.StatusPosted, res.Entry.Status)
	require.Equal(t, "JE2024001", res.Entry.Number)
	require.Equal(t, "IDR", res.Entry.Currency)
	require.NotNil(t, res.Entry.PostedAt)
	require.Len(t, res.Entry.Lines, 2)
	require.Equal(t, "cash sale", res.Entry.Lines[0].Description)

	require.Equal(t, "100", store.Balance(cash).String())
	require.Equal(t, "100", store.Balance(revenue).String())
	require.Equal(t, []string{"journal.post"}, audit.Actions())
}

func TestCreateDraftLeavesBalances(t *testing.T) {
	svc, store, _ := newFixture(t)

	res, err := svc.Create(context.Background(), journals.CreateInput{Date: fixedNow, Lines: saleLines("40")})
	require.NoError(t, err)
	require.Equal(t, journals.StatusDraft, res.Entry.Status)
	require.Nil(t, res.Entry.PostedAt)
	require.True(t, store.Balance(cash).IsZero())
}

func TestCreateRejectsUnbalancedWithoutSideEffects(t *testing.T) {
	svc, store, _ := newFixture(t)

	_, err := svc.Create(context.Background(), journals.CreateInput{
		Date:   fixedNow,
		Status: journals.StatusPosted,
		Lines: []journals.LineInput{
			{AccountID: cash, Debit: amount("100.00")},
			{AccountID: revenue, Credit: amount("99.99")},
		},
	})
	require.ErrorIs(t, err, shared.ErrUnbalanced)
	require.Zero(t, store.EntryCount())
	require.True(t, store.Balance(cash).IsZero())
}

func TestCreateComparesRoundedTotals(t *testing.T) {
	svc, _, _ := newFixture(t)

	res, err := svc.Create(context.Background(), journals.CreateInput{
		Date: fixedNow,
		Lines: []journals.LineInput{
			{AccountID: cash, Debit: amount("10.005")},
			{AccountID: revenue, Credit: amount("10.01")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "10.01", res.Entry.Lines[0].Debit.StringFixed(2))
}

func TestCreateRejectsMalformedLines(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		lines []journals.LineInput
		kind  shared.Kind
		line  int
	}{
		"empty":    {lines: nil, kind: shared.KindMalformedLine, line: shared.NoLine},
		"both":     {lines: []journals.LineInput{{AccountID: cash, Debit: amount("1"), Credit: amount("1")}}, kind: shared.KindMalformedLine, line: 0},
		"neither":  {lines: []journals.LineInput{{AccountID: cash, Debit: amount("5")}, {AccountID: revenue}}, kind: shared.KindMalformedLine, line: 1},
		"negative": {lines: []journals.LineInput{{AccountID: cash, Debit: amount("-5")}}, kind: shared.KindMalformedLine, line: 0},
		"account":  {lines: []journals.LineInput{{AccountID: cash, Debit: amount("5")}, {AccountID: 99, Credit: amount("5")}}, kind: shared.KindInvalidAccount, line: 1},
		"currency": {lines: []journals.LineInput{{AccountID: cash, Debit: amount("5")}, {AccountID: usdCash, Credit: amount("5")}}, kind: shared.KindCurrencyMismatch, line: 1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, journals.CreateInput{Date: fixedNow, Lines: tc.lines})
			var lerr *shared.Error
			require.ErrorAs(t, err, &lerr)
			require.Equal(t, tc.kind, lerr.Kind)
			require.Equal(t, tc.line, lerr.Line)
		})
	}
}

func TestCreateRejectsNonPostableAccount(t *testing.T) {
	svc, store, _ := newFixture(t)
	store.PutAccount(accounts.Account{ID: 10, Code: "1999", Nature: accounts.NatureDebit, Currency: "IDR"})

	_, err := svc.Create(context.Background(), journals.CreateInput{
		Date: fixedNow,
		Lines: []journals.LineInput{
			{AccountID: 10, Debit: amount("5")},
			{AccountID: revenue, Credit: amount("5")},
		},
	})
	require.ErrorIs(t, err, shared.ErrInvalidAccount)
}

func TestNumberingIsSequentialPerYear(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	var numbers []string
	for _, date := range []time.Time{
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	} {
		res, err := svc.Create(ctx, journals.CreateInput{Date: date, Lines: saleLines("1")})
		require.NoError(t, err)
		numbers = append(numbers, res.Entry.Number)
	}
	require.Equal(t, []string{"JE2024001", "JE2024002", "JE2025001", "JE2024003"}, numbers)
}

func TestNumberConflictIsRetried(t *testing.T) {
	svc, store, _ := newFixture(t)
	store.InjectNumberConflicts(2)

	res, err := svc.Create(context.Background(), journals.CreateInput{Date: fixedNow, Lines: saleLines("1")})
	require.NoError(t, err)
	require.Equal(t, "JE2024001", res.Entry.Number)
}

func TestNumberConflictExhaustsRetries(t *testing.T) {
	svc, store, _ := newFixture(t)
	store.InjectNumberConflicts(journals.DefaultRetries)

	_, err := svc.Create(context.Background(), journals.CreateInput{Date: fixedNow, Lines: saleLines("1")})
	require.ErrorIs(t, err, journals.ErrNumberConflict)
	require.Zero(t, store.EntryCount())
}

func TestExplicitNumberCollision(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, journals.CreateInput{Date: fixedNow, Number: "MANUAL-1", Lines: saleLines("1")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, journals.CreateInput{Date: fixedNow, Number: "MANUAL-1", Lines: saleLines("1")})
	var lerr *shared.Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, shared.KindDuplicateReference, lerr.Kind)
	require.Equal(t, "number", lerr.Key)
}

func TestReferencePolicies(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, journals.CreateInput{Date: fixedNow, Reference: "INV-7", Status: journals.StatusPosted, Lines: saleLines("50")})
	require.NoError(t, err)

	_, err = svc.Create(ctx, journals.CreateInput{Date: fixedNow, Reference: "INV-7", Status: journals.StatusPosted, Lines: saleLines("50")})
	require.ErrorIs(t, err, shared.ErrDuplicateReference)

	skipped, err := svc.Create(ctx, journals.CreateInput{
		Date:            fixedNow,
		Reference:       "INV-7",
		Status:          journals.StatusPosted,
		ReferencePolicy: journals.ReferenceSkip,
		Lines:           saleLines("50"),
	})
	require.NoError(t, err)
	require.False(t, skipped.Created)
	require.Equal(t, first.Entry.ID, skipped.Entry.ID)
	require.Equal(t, "50", store.Balance(cash).String())
	require.Equal(t, 1, store.EntryCount())
}

func TestCancelReleasesReference(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	draft, err := svc.Create(ctx, journals.CreateInput{Date: fixedNow, Reference: "PO-1", Lines: saleLines("5")})
	require.NoError(t, err)
	cancelled, err := svc.Cancel(ctx, draft.Entry.ID, 7)
	require.NoError(t, err)
	require.Equal(t, journals.StatusCancelled, cancelled.Status)

	again, err := svc.Create(ctx, journals.CreateInput{Date: fixedNow, Reference: "PO-1", Lines: saleLines("5")})
	require.NoError(t, err)
	require.True(t, again.Created)
}

func TestLifecycleTransitions(t *testing.T) {
	svc, store, audit := newFixture(t)
	ctx := context.Background()

	draft, err := svc.Create(ctx, journals.CreateInput{Date: fixedNow, Lines: saleLines("20")})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, draft.Entry.ID, 1)
	require.NoError(t, err)
	require.Equal(t, journals.StatusApproved, approved.Status)

	_, err = svc.Approve(ctx, draft.Entry.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	_, err = svc.Cancel(ctx, draft.Entry.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	posted, err := svc.Post(ctx, journals.PostInput{EntryID: draft.Entry.ID, ActorID: 1})
	require.NoError(t, err)
	require.Equal(t, journals.StatusPosted, posted.Status)
	require.Equal(t, fixedNow, *posted.PostedAt)
	require.Equal(t, "20", store.Balance(revenue).String())

	_, err = svc.Post(ctx, journals.PostInput{EntryID: draft.Entry.ID, ActorID: 1})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, "20", store.Balance(revenue).String())

	require.Equal(t, []string{"journal.create", "journal.approve", "journal.post"}, audit.Actions())
}

func TestPostMissingEntry(t *testing.T) {
	svc, _, _ := newFixture(t)
	_, err := svc.Post(context.Background(), journals.PostInput{EntryID: 42})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEditReplacesDraftLines(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()

	draft, err := svc.Create(ctx, journals.CreateInput{Date: fixedNow, Description: "rent", Lines: saleLines("10")})
	require.NoError(t, err)

	memo := "office rent"
	edited, err := svc.Edit(ctx, journals.EditInput{
		EntryID:     draft.Entry.ID,
		Description: &memo,
		Lines: []journals.LineInput{
			{AccountID: expense, Debit: amount("75.5")},
			{AccountID: cash, Credit: amount("75.50")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "office rent", edited.Description)
	require.Len(t, edited.Lines, 2)
	require.Equal(t, expense, edited.Lines[0].AccountID)
	require.True(t, store.Balance(expense).IsZero())

	stored, err := svc.Get(ctx, draft.Entry.ID)
	require.NoError(t, err)
	require.Equal(t, edited.Lines, stored.Lines)

	posted, err := svc.Post(ctx, journals.PostInput{EntryID: draft.Entry.ID})
	require.NoError(t, err)
	_, err = svc.Edit(ctx, journals.EditInput{EntryID: posted.ID, Lines: saleLines("1")})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, "75.5", store.Balance(expense).String())
	require.Equal(t, "-75.5", store.Balance(cash).String())
}

func TestEditRejectsUnbalancedAndKeepsOldLines(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	draft, err := svc.Create(ctx, journals.CreateInput{Date: fixedNow, Lines: saleLines("10")})
	require.NoError(t, err)
	_, err = svc.Edit(ctx, journals.EditInput{EntryID: draft.Entry.ID, Lines: []journals.LineInput{
		{AccountID: cash, Debit: amount("10")},
		{AccountID: revenue, Credit: amount("9")},
	}})
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	stored, err := svc.Get(ctx, draft.Entry.ID)
	require.NoError(t, err)
	require.Equal(t, draft.Entry.Lines, stored.Lines)
}

func TestReverseMirrorsPostedEntryOnce(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()

	posted, err := svc.Create(ctx, journals.CreateInput{Date: fixedNow, Status: journals.StatusPosted, Lines: saleLines("30")})
	require.NoError(t, err)

	reversal, err := svc.Reverse(ctx, journals.ReverseInput{EntryID: posted.Entry.ID, ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, journals.StatusPosted, reversal.Status)
	require.Equal(t, "REVERSAL:"+posted.Entry.Number, reversal.Reference)
	require.Equal(t, "Reversal of "+posted.Entry.Number, reversal.Description)
	require.True(t, reversal.Lines[0].Credit.Equal(amount("30")))
	require.True(t, store.Balance(cash).IsZero())
	require.True(t, store.Balance(revenue).IsZero())

	_, err = svc.Reverse(ctx, journals.ReverseInput{EntryID: posted.Entry.ID})
	require.ErrorIs(t, err, shared.ErrDuplicateReference)

	draft, err := svc.Create(ctx, journals.CreateInput{Date: fixedNow, Lines: saleLines("1")})
	require.NoError(t, err)
	_, err = svc.Reverse(ctx, journals.ReverseInput{EntryID: draft.Entry.ID})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCreateRejectsCancelledInitialStatus(t *testing.T) {
	svc, _, _ := newFixture(t)
	_, err := svc.Create(context.Background(), journals.CreateInput{Date: fixedNow, Status: journals.StatusCancelled, Lines: saleLines("1")})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, journals.CreateInput{Date: fixedNow, Lines: saleLines("1")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, journals.CreateInput{Date: fixedNow, Status: journals.StatusPosted, Lines: saleLines("1")})
	require.NoError(t, err)

	posted, err := svc.List(ctx, journals.ListFilter{Status: journals.StatusPosted})
	require.NoError(t, err)
	require.Len(t, posted, 1)
	all, err := svc.List(ctx, journals.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}
