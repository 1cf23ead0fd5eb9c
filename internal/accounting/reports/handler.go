package reports

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
)

// AccountLister supplies the accounts a report is built from.
type AccountLister interface {
	List(ctx context.Context) ([]accounts.Account, error)
}

// Handler serves ledger reports.
type Handler struct {
	logger   *slog.Logger
	accounts AccountLister
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, lister AccountLister) *Handler {
	return &Handler{logger: logger, accounts: lister}
}

// MountRoutes registers report endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.TrialBalance)
}

// TrialBalance renders every currency, or only ?currency= when given.
func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	accts, err := h.accounts.List(r.Context())
	if err != nil {
		h.logger.Error("trial balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	reports := BuildTrialBalances(accts)
	if currency := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency"))); currency != "" {
		filtered := reports[:0]
		for _, tb := range reports {
			if tb.Currency == currency {
				filtered = append(filtered, tb)
			}
		}
		reports = filtered
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"trial_balances": reports})
}
