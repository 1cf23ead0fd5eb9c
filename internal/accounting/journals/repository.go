package journals

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/db"
)

// ErrNumberConflict indicates the generated number was taken concurrently.
var ErrNumberConflict = errors.New("accounting: journal number conflict")

const (
	constraintNumber    = "uq_journal_entries_number"
	constraintReference = "uq_journal_entries_live_reference"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	Get(ctx context.Context, id int64) (JournalEntry, error)
	List(ctx context.Context, filter ListFilter) ([]JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	// LockAccounts loads and row-locks accounts in ascending id order.
	LockAccounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
	ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal) error
	// FindLiveByReference returns a non-cancelled entry carrying reference,
	// or a NOT_FOUND error.
	FindLiveByReference(ctx context.Context, reference string) (JournalEntry, error)
	// NextSequence serializes numbering for year and returns max+1.
	NextSequence(ctx context.Context, year int) (int, error)
	InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []JournalLine) ([]JournalLine, error)
	DeleteJournalLines(ctx context.Context, entryID int64) error
	GetJournalForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	UpdateJournalHeader(ctx context.Context, entry JournalEntry) error
	UpdateJournalStatus(ctx context.Context, id int64, status Status, postedAt *time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx backed journal store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const entryColumns = `id, number, date, description, COALESCE(reference, ''), branch_id, currency, status, COALESCE(created_by, 0), posted_at, created_at, updated_at`

const lineColumns = `id, je_id, line_no, account_id, debit, credit, cost_center_id, description`

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Number, &e.Date, &e.Description, &e.Reference, &e.BranchID, &e.Currency, &e.Status, &e.CreatedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func loadLines(ctx context.Context, q queryer, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM journal_lines WHERE je_id=$1 ORDER BY line_no ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.LineNo, &line.AccountID, &line.Debit, &line.Credit, &line.CostCenterID, &line.Description); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func getEntry(ctx context.Context, q queryer, sql string, id int64) (JournalEntry, error) {
	entry, err := scanEntry(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.Errorf(shared.KindNotFound, "journal entry %d not found", id)
		}
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, q, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return getEntry(ctx, r.db, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id)
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE ($1 = '' OR status = $1) ORDER BY date DESC, id DESC LIMIT $2 OFFSET $3`, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.db == nil {
		return errors.New("journals repository not initialised")
	}
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockAccounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accounts.Columns+` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]accounts.Account, len(ids))
	for rows.Next() {
		a, err := accounts.ScanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *txRepository) ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.KindInvalidAccount, "account %d not found", accountID)
	}
	return nil
}

func (r *txRepository) FindLiveByReference(ctx context.Context, reference string) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE reference=$1 AND status <> 'CANCELLED' ORDER BY id LIMIT 1`, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.Errorf(shared.KindNotFound, "reference %s not found", reference)
		}
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.tx, entry.ID)
	return entry, err
}

func (r *txRepository) NextSequence(ctx context.Context, year int) (int, error) {
	if _, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('journal_number:' || $1))`, strconv.Itoa(year)); err != nil {
		return 0, err
	}
	rows, err := r.tx.Query(ctx, `SELECT number FROM journal_entries WHERE number LIKE $1`, numberPrefix+strconv.Itoa(year)+"%")
	if err != nil {
		return 0, err
	}
	numbers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, err
	}
	return NextSequence(numbers, year), nil
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (number, date, description, reference, branch_id, currency, status, created_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at, updated_at`,
		entry.Number, entry.Date, entry.Description, nullString(entry.Reference), entry.BranchID, entry.Currency, entry.Status, nullInt(entry.CreatedBy), entry.PostedAt)
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		switch {
		case db.IsUniqueViolation(err, constraintNumber):
			return JournalEntry{}, ErrNumberConflict
		case db.IsUniqueViolation(err, constraintReference):
			return JournalEntry{}, shared.KeyErrorf(shared.KindDuplicateReference, shared.NoLine, "reference", "reference %s already posted", entry.Reference)
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []JournalLine) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		line.JournalID = entryID
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (je_id, line_no, account_id, debit, credit, cost_center_id, description)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, entryID, line.LineNo, line.AccountID, line.Debit, line.Credit, line.CostCenterID, line.Description).Scan(&line.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

func (r *txRepository) DeleteJournalLines(ctx context.Context, entryID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE je_id=$1`, entryID)
	return err
}

func (r *txRepository) GetJournalForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	return getEntry(ctx, r.tx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepository) UpdateJournalHeader(ctx context.Context, entry JournalEntry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET date=$2, description=$3, branch_id=$4, currency=$5, updated_at=NOW() WHERE id=$1`,
		entry.ID, entry.Date, entry.Description, entry.BranchID, entry.Currency)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.KindNotFound, "journal entry %d not found", entry.ID)
	}
	return nil
}

func (r *txRepository) UpdateJournalStatus(ctx context.Context, id int64, status Status, postedAt *time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, posted_at=COALESCE($3, posted_at), updated_at=NOW() WHERE id=$1`, id, status, postedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.KindNotFound, "journal entry %d not found", id)
	}
	return nil
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
