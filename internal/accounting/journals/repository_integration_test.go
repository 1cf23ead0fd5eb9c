//go:build integration

package journals_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	"github.com/odyssey-erp/ledger/migrations"
)

// startPostgres runs a disposable PostgreSQL, applies the schema twice and
// returns the pool with the ids of a debit cash and a credit revenue account.
func startPostgres(t *testing.T) (*pgxpool.Pool, int64, int64) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.Apply(ctx, pool))
	require.NoError(t, migrations.Apply(ctx, pool))

	rows, err := pool.Query(ctx, `INSERT INTO accounts (code, name, nature, currency)
VALUES ('1000', 'Cash', 'DEBIT', 'IDR'), ('4000', 'Revenue', 'CREDIT', 'IDR') RETURNING id`)
	require.NoError(t, err)
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	require.NoError(t, err)
	require.Len(t, ids, 2)
	return pool, ids[0], ids[1]
}

func balanceOf(t *testing.T, pool *pgxpool.Pool, id int64) decimal.Decimal {
	t.Helper()
	var balance decimal.Decimal
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT balance FROM accounts WHERE id=$1`, id).Scan(&balance))
	return balance
}

func pgSale(cashID, revenueID int64, v string) []journals.LineInput {
	return []journals.LineInput{
		{AccountID: cashID, Debit: amount(v)},
		{AccountID: revenueID, Credit: amount(v)},
	}
}

func TestIntegrationConcurrentPostingOnOneAccount(t *testing.T) {
	pool, cashID, revenueID := startPostgres(t)
	svc := journals.NewService(journals.NewRepository(pool), nil)
	svc.WithRetries(64)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	numbers := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Create(ctx, journals.CreateInput{
				Date:   fixedNow,
				Lines:  pgSale(cashID, revenueID, "12.50"),
				Status: journals.StatusPosted,
			})
			errs[i] = err
			numbers[i] = res.Entry.Number
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.True(t, balanceOf(t, pool, cashID).Equal(amount("200")))
	require.True(t, balanceOf(t, pool, revenueID).Equal(amount("200")))

	sort.Strings(numbers)
	for i, number := range numbers {
		require.Equal(t, fmt.Sprintf("JE2024%03d", i+1), number)
	}
}

func TestIntegrationConstraintMapping(t *testing.T) {
	pool, cashID, revenueID := startPostgres(t)
	svc := journals.NewService(journals.NewRepository(pool), nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, journals.CreateInput{
		Date: fixedNow, Lines: pgSale(cashID, revenueID, "5"), Reference: "ASSETEXP:7",
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, journals.CreateInput{
		Date: fixedNow, Lines: pgSale(cashID, revenueID, "5"), Reference: "ASSETEXP:7",
	})
	require.ErrorIs(t, err, shared.ErrDuplicateReference)

	_, err = svc.Create(ctx, journals.CreateInput{
		Date: fixedNow, Lines: pgSale(cashID, revenueID, "5"), Number: first.Entry.Number,
	})
	var lerr *shared.Error
	require.True(t, errors.As(err, &lerr))
	require.Equal(t, shared.KindDuplicateReference, lerr.Kind)
	require.Equal(t, "number", lerr.Key)

	_, err = svc.Create(ctx, journals.CreateInput{
		Date: fixedNow, Lines: pgSale(cashID, 9999, "5"),
	})
	require.ErrorIs(t, err, shared.ErrInvalidAccount)

	_, err = svc.Cancel(ctx, first.Entry.ID, 1)
	require.NoError(t, err)
	again, err := svc.Create(ctx, journals.CreateInput{
		Date: fixedNow, Lines: pgSale(cashID, revenueID, "5"), Reference: "ASSETEXP:7", Status: journals.StatusPosted,
	})
	require.NoError(t, err)
	require.True(t, again.Created)
	require.True(t, balanceOf(t, pool, cashID).Equal(amount("5")))
}
