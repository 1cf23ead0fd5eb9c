package compound

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/ledger/internal/accounting/compound/trigger"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler exposes compound definitions over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers compound journal endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/preview", h.Preview)
	r.Get("/{id}", h.Show)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/execute", h.Execute)
	r.Get("/{id}/logs", h.Logs)
}

type definitionRequest struct {
	Name               string  `json:"name" validate:"required,max=128"`
	Template           string  `json:"template" validate:"required"`
	TriggerType        string  `json:"trigger_type" validate:"required,oneof=MANUAL ONE_TIME RECURRING"`
	RecurrenceUnit     string  `json:"recurrence_unit" validate:"omitempty,oneof=DAY WEEK MONTH YEAR"`
	RecurrenceInterval int     `json:"recurrence_interval" validate:"gte=0"`
	StartDate          *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate            *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	IsActive           *bool   `json:"is_active"`
}

type executeRequest struct {
	ExecutionDate *string           `json:"execution_date" validate:"omitempty,datetime=2006-01-02"`
	JournalDate   *string           `json:"journal_date" validate:"omitempty,datetime=2006-01-02"`
	BranchID      *int64            `json:"branch_id" validate:"omitempty,gte=0"`
	Description   string            `json:"description" validate:"max=255"`
	Reference     string            `json:"reference" validate:"max=128"`
	Status        string            `json:"status" validate:"omitempty,oneof=DRAFT APPROVED POSTED"`
	Context       map[string]string `json:"context"`
}

type previewRequest struct {
	Template string            `json:"template" validate:"required"`
	Context  map[string]string `json:"context"`
}

func parseDate(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	t, err := time.Parse(dateLayout, *raw)
	if err != nil {
		return nil
	}
	return &t
}

func (h *Handler) validate(w http.ResponseWriter, v any) bool {
	err := h.validator.Struct(v)
	if err == nil {
		return true
	}
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

func (h *Handler) decodeDefinition(w http.ResponseWriter, r *http.Request) (DefinitionInput, bool) {
	var req definitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return DefinitionInput{}, false
	}
	if !h.validate(w, req) {
		return DefinitionInput{}, false
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return DefinitionInput{
		Name:               req.Name,
		Template:           req.Template,
		TriggerType:        trigger.Type(req.TriggerType),
		RecurrenceUnit:     trigger.Unit(req.RecurrenceUnit),
		RecurrenceInterval: req.RecurrenceInterval,
		StartDate:          parseDate(req.StartDate),
		EndDate:            parseDate(req.EndDate),
		IsActive:           active,
		ActorID:            internalShared.ActorFromRequest(r),
	}, true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeDefinition(w, r)
	if !ok {
		return
	}
	def, err := h.service.CreateDefinition(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, def)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := definitionID(w, r)
	if !ok {
		return
	}
	in, ok := h.decodeDefinition(w, r)
	if !ok {
		return
	}
	def, err := h.service.UpdateDefinition(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, def)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	defs, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list compound definitions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"definitions": defs})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := definitionID(w, r)
	if !ok {
		return
	}
	def, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, def)
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := definitionID(w, r)
	if !ok {
		return
	}
	var req executeRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if !h.validate(w, req) {
			return
		}
	}
	execReq := Request{
		ExecutorID:       internalShared.ActorFromRequest(r),
		JournalDate:      parseDate(req.JournalDate),
		BranchID:         req.BranchID,
		Description:      req.Description,
		Reference:        req.Reference,
		Status:           journals.Status(req.Status),
		ContextOverrides: req.Context,
	}
	if d := parseDate(req.ExecutionDate); d != nil {
		execReq.ExecutionDate = *d
	}
	res, err := h.service.Execute(r.Context(), id, execReq)
	if err != nil {
		h.logger.Info("compound execution rejected", slog.Int64("definition_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	id, ok := definitionID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.service.ListLogs(r.Context(), id, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.validate(w, req) {
		return
	}
	preview, err := h.service.Preview(r.Context(), PreviewRequest{Template: req.Template, Context: req.Context})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func definitionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid definition id")
		return 0, false
	}
	return id, true
}
