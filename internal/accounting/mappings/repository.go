package mappings

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Repository resolves account mappings.
type Repository interface {
	Get(ctx context.Context, module, key string) (AccountMapping, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx backed mapping store.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func normalize(module, key string) (string, string, error) {
	module = strings.ToUpper(strings.TrimSpace(module))
	key = strings.TrimSpace(key)
	if module == "" || key == "" {
		return "", "", errors.New("accounting: module and key required")
	}
	return module, key, nil
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, module, key string) (AccountMapping, error) {
	module, key, err := normalize(module, key)
	if err != nil {
		return AccountMapping{}, err
	}
	var mapping AccountMapping
	err = r.db.QueryRow(ctx, `SELECT module, key, account_id, created_at, updated_at FROM account_mappings WHERE module=$1 AND key=$2`, module, key).
		Scan(&mapping.Module, &mapping.Key, &mapping.AccountID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.KeyErrorf(shared.KindNotFound, shared.NoLine, key, "no account mapped for %s/%s", module, key)
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

// Static is an in-memory Repository seeded up front.
type Static struct {
	mu   sync.RWMutex
	byID map[string]AccountMapping
}

// NewStatic returns an empty in-memory mapping table.
func NewStatic() *Static {
	return &Static{byID: map[string]AccountMapping{}}
}

// Set maps module/key to accountID.
func (s *Static) Set(module, key string, accountID int64) {
	module, key, err := normalize(module, key)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[module+"\x00"+key] = AccountMapping{Module: module, Key: key, AccountID: accountID}
}

func (s *Static) Get(_ context.Context, module, key string) (AccountMapping, error) {
	module, key, err := normalize(module, key)
	if err != nil {
		return AccountMapping{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[module+"\x00"+key]
	if !ok {
		return AccountMapping{}, shared.KeyErrorf(shared.KindNotFound, shared.NoLine, key, "no account mapped for %s/%s", module, key)
	}
	return m, nil
}
