package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Repository reads the account ledger.
type Repository interface {
	List(ctx context.Context) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a pgx backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Columns lists the account projection shared with the journals repository.
const Columns = `id, code, name, nature, currency, can_post_transactions, balance, is_active, created_at, updated_at`

// ScanAccount reads one row selected with Columns.
func ScanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Nature, &a.Currency, &a.CanPostTransactions, &a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+Columns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := ScanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	a, err := ScanAccount(r.db.QueryRow(ctx, `SELECT `+Columns+` FROM accounts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.Errorf(shared.KindNotFound, "account %d not found", id)
		}
		return Account{}, err
	}
	return a, nil
}
