package integration

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

// Handler receives business events from operational modules.
type Handler struct {
	logger    *slog.Logger
	hooks     *Hooks
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, hooks *Hooks) *Handler {
	return &Handler{logger: logger, hooks: hooks, validator: validator.New()}
}

// MountRoutes registers integration endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/vouchers/approved", h.VoucherApproved)
	r.Post("/asset-expenses", h.AssetExpense)
}

type voucherRequest struct {
	ID       int64           `json:"id" validate:"required,gt=0"`
	Number   string          `json:"number" validate:"required,max=64"`
	Type     VoucherType     `json:"type" validate:"required,oneof=PAYMENT RECEIPT"`
	Date     string          `json:"date" validate:"required,datetime=2006-01-02"`
	Amount   decimal.Decimal `json:"amount"`
	BranchID int64           `json:"branch_id" validate:"gte=0"`
}

type assetExpenseRequest struct {
	ID        int64           `json:"id" validate:"required,gt=0"`
	AssetCode string          `json:"asset_code" validate:"required,max=64"`
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	Amount    decimal.Decimal `json:"amount"`
	BranchID  int64           `json:"branch_id" validate:"gte=0"`
}

func (h *Handler) VoucherApproved(w http.ResponseWriter, r *http.Request) {
	var req voucherRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	res, err := h.hooks.HandleVoucherApproved(r.Context(), VoucherApprovedEvent{
		ID:         req.ID,
		Number:     req.Number,
		Type:       req.Type,
		Date:       date,
		Amount:     req.Amount,
		BranchID:   req.BranchID,
		ApprovedBy: internalShared.ActorFromRequest(r),
	})
	h.respond(w, "voucher approved", res, err)
}

func (h *Handler) AssetExpense(w http.ResponseWriter, r *http.Request) {
	var req assetExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	res, err := h.hooks.HandleAssetExpense(r.Context(), AssetExpenseEvent{
		ID:        req.ID,
		AssetCode: req.AssetCode,
		Date:      date,
		Amount:    req.Amount,
		BranchID:  req.BranchID,
		PostedBy:  internalShared.ActorFromRequest(r),
	})
	h.respond(w, "asset expense", res, err)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return false
	}
	return true
}

// respond reports 201 for a new entry and 200 when the event was already
// posted or carried nothing to post.
func (h *Handler) respond(w http.ResponseWriter, event string, res journals.CreateResult, err error) {
	if err != nil {
		h.logger.Warn("integration event rejected", slog.String("event", event), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	body := map[string]any{"created": res.Created}
	if res.Entry.ID != 0 {
		body["entry"] = res.Entry
	}
	httpx.JSON(w, status, body)
}
