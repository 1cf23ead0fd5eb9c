package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/compound"
	"github.com/odyssey-erp/ledger/internal/accounting/compound/trigger"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/app"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	"github.com/odyssey-erp/ledger/migrations"
)

type seedAccount struct {
	code     string
	name     string
	nature   string
	postable bool
}

var chart = []seedAccount{
	{"1000", "Assets", "DEBIT", false},
	{"1110", "Cash", "DEBIT", true},
	{"1120", "Bank", "DEBIT", true},
	{"1210", "Trade Receivables", "DEBIT", true},
	{"1410", "Office Equipment", "DEBIT", true},
	{"1590", "Accumulated Depreciation", "CREDIT", true},
	{"2000", "Liabilities", "CREDIT", false},
	{"2110", "Trade Payables", "CREDIT", true},
	{"2130", "Accrued Salaries", "CREDIT", true},
	{"3100", "Paid-in Capital", "CREDIT", true},
	{"4100", "Sales Revenue", "CREDIT", true},
	{"4200", "Other Income", "CREDIT", true},
	{"5210", "Salary Expense", "DEBIT", true},
	{"5220", "Rent Expense", "DEBIT", true},
	{"5400", "Depreciation Expense", "DEBIT", true},
}

var mappingRows = []struct{ module, key, code string }{
	{"VOUCHER", "voucher.payment.expense", "5220"},
	{"VOUCHER", "voucher.payment.cash", "1110"},
	{"VOUCHER", "voucher.receipt.cash", "1110"},
	{"VOUCHER", "voucher.receipt.revenue", "4200"},
	{"ASSET", "asset.expense.expense", "5400"},
	{"ASSET", "asset.expense.accumulated", "1590"},
}

const rentTemplate = `
description: Monthly office rent
default_context:
  rent: "15000000"
lines:
  - account_id: %d
    description: office rent
    debit: {type: context, key: rent}
  - account_id: %d
    credit: {type: context, key: rent}
`

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	ctx := context.Background()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	steps := []struct {
		name string
		run  func(context.Context, *pgxpool.Pool) error
	}{
		{"schema", migrations.Apply},
		{"chart of accounts", seedChart},
		{"account mappings", seedMappings},
		{"compound definitions", func(ctx context.Context, pool *pgxpool.Pool) error {
			return seedDefinitions(ctx, pool, logger)
		}},
	}
	for _, step := range steps {
		logger.Info("seeding", slog.String("step", step.name))
		if err := step.run(ctx, pool); err != nil {
			logger.Error("seed failed", slog.String("step", step.name), slog.Any("error", err))
			os.Exit(1)
		}
	}
	logger.Info("seed complete", slog.Time("at", time.Now()))
}

func seedChart(ctx context.Context, pool *pgxpool.Pool) error {
	return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		for _, a := range chart {
			_, err := tx.Exec(ctx, `INSERT INTO accounts (code, name, nature, currency, can_post_transactions, is_active)
VALUES ($1, $2, $3, 'IDR', $4, TRUE)
ON CONFLICT (code) DO NOTHING`, a.code, a.name, a.nature, a.postable)
			if err != nil {
				return fmt.Errorf("account %s: %w", a.code, err)
			}
		}
		return nil
	})
}

func seedMappings(ctx context.Context, pool *pgxpool.Pool) error {
	return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		for _, m := range mappingRows {
			_, err := tx.Exec(ctx, `INSERT INTO account_mappings (module, key, account_id)
SELECT $1, $2, id FROM accounts WHERE code = $3
ON CONFLICT (module, key) DO NOTHING`, m.module, m.key, m.code)
			if err != nil {
				return fmt.Errorf("mapping %s/%s: %w", m.module, m.key, err)
			}
		}
		return nil
	})
}

func accountID(ctx context.Context, pool *pgxpool.Pool, code string) (int64, error) {
	var id int64
	err := pool.QueryRow(ctx, `SELECT id FROM accounts WHERE code = $1`, code).Scan(&id)
	return id, err
}

// seedDefinitions stores a monthly rent accrual once.
func seedDefinitions(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	repo := compound.NewRepository(pool)
	existing, err := repo.List(ctx)
	if err != nil {
		return err
	}
	for _, d := range existing {
		if d.Name == "Monthly office rent" {
			return nil
		}
	}
	rent, err := accountID(ctx, pool, "5220")
	if err != nil {
		return err
	}
	payable, err := accountID(ctx, pool, "2110")
	if err != nil {
		return err
	}
	svc := compound.NewService(repo, journals.NewService(journals.NewRepository(pool), nil), logger)
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	_, err = svc.CreateDefinition(ctx, compound.DefinitionInput{
		Name:               "Monthly office rent",
		Template:           fmt.Sprintf(rentTemplate, rent, payable),
		TriggerType:        trigger.Recurring,
		RecurrenceUnit:     trigger.Month,
		RecurrenceInterval: 1,
		StartDate:          &start,
		IsActive:           true,
	})
	return err
}
