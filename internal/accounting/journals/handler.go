package journals

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler exposes the posting engine over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers journal endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Show)
	r.Put("/{id}", h.Edit)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/post", h.Post)
	r.Post("/{id}/cancel", h.Cancel)
	r.Post("/{id}/reverse", h.Reverse)
}

type lineRequest struct {
	AccountID    int64           `json:"account_id" validate:"required,gt=0"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	CostCenterID *int64          `json:"cost_center_id"`
	Description  string          `json:"description" validate:"max=255"`
}

type createRequest struct {
	Date            string          `json:"date" validate:"required,datetime=2006-01-02"`
	Description     string          `json:"description" validate:"max=255"`
	BranchID        int64           `json:"branch_id" validate:"gte=0"`
	Reference       string          `json:"reference" validate:"max=128"`
	Number          string          `json:"number" validate:"max=32"`
	Status          Status          `json:"status" validate:"omitempty,oneof=DRAFT APPROVED POSTED"`
	ReferencePolicy ReferencePolicy `json:"reference_policy" validate:"omitempty,oneof=REJECT SKIP"`
	Lines           []lineRequest   `json:"lines" validate:"dive"`
}

type editRequest struct {
	Date        *string       `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description *string       `json:"description" validate:"omitempty,max=255"`
	BranchID    *int64        `json:"branch_id" validate:"omitempty,gte=0"`
	Lines       []lineRequest `json:"lines" validate:"dive"`
}

type reverseRequest struct {
	Date        *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description string  `json:"description" validate:"max=255"`
}

func toLineInputs(in []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(in))
	for _, l := range in {
		out = append(out, LineInput{
			AccountID:    l.AccountID,
			Debit:        l.Debit,
			Credit:       l.Credit,
			CostCenterID: l.CostCenterID,
			Description:  l.Description,
		})
	}
	return out
}

func (h *Handler) validate(w http.ResponseWriter, v any) bool {
	if err := h.validator.Struct(v); err != nil {
		msgs := []string{}
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			msgs = append(msgs, err.Error())
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(msgs, "; "))
		return false
	}
	return true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.validate(w, req) {
		return
	}
	date, _ := time.Parse(dateLayout, req.Date)
	result, err := h.service.Create(r.Context(), CreateInput{
		Date:            date,
		Description:     req.Description,
		BranchID:        req.BranchID,
		CreatedBy:       internalShared.ActorFromRequest(r),
		Lines:           toLineInputs(req.Lines),
		Status:          req.Status,
		Reference:       req.Reference,
		Number:          req.Number,
		ReferencePolicy: req.ReferencePolicy,
	})
	if err != nil {
		h.logger.Warn("create journal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if !result.Created {
		status = http.StatusOK
	}
	httpx.JSON(w, status, map[string]any{"entry": result.Entry, "created": result.Created})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(strings.ToUpper(q.Get("status")))}
	if filter.Status != "" && !filter.Status.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown status")
		return
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	var req editRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.validate(w, req) {
		return
	}
	input := EditInput{
		EntryID:     id,
		ActorID:     internalShared.ActorFromRequest(r),
		Description: req.Description,
		BranchID:    req.BranchID,
		Lines:       toLineInputs(req.Lines),
	}
	if req.Date != nil {
		date, _ := time.Parse(dateLayout, *req.Date)
		input.Date = &date
	}
	entry, err := h.service.Edit(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Approve(r.Context(), id, internalShared.ActorFromRequest(r))
	h.respondEntry(w, entry, err)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Post(r.Context(), PostInput{EntryID: id, ActorID: internalShared.ActorFromRequest(r)})
	h.respondEntry(w, entry, err)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Cancel(r.Context(), id, internalShared.ActorFromRequest(r))
	h.respondEntry(w, entry, err)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if !h.validate(w, req) {
			return
		}
	}
	input := ReverseInput{EntryID: id, ActorID: internalShared.ActorFromRequest(r), Description: req.Description}
	if req.Date != nil {
		date, _ := time.Parse(dateLayout, *req.Date)
		input.Date = &date
	}
	entry, err := h.service.Reverse(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) respondEntry(w http.ResponseWriter, entry JournalEntry, err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func entryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid journal id")
		return 0, false
	}
	return id, true
}
