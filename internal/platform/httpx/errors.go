// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Sentinel errors for transport-level failures.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// LedgerProblem extends ProblemDetail with categorized ledger error detail.
type LedgerProblem struct {
	ProblemDetail
	Kind shared.Kind `json:"kind"`
	Line *int        `json:"line,omitempty"`
	Key  string      `json:"key,omitempty"`
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var ledgerErr *shared.Error
	if errors.As(err, &ledgerErr) {
		status := StatusForKind(ledgerErr.Kind)
		problem := LedgerProblem{
			ProblemDetail: ProblemDetail{
				Type:   "urn:odyssey:ledger:" + string(ledgerErr.Kind),
				Title:  http.StatusText(status),
				Status: status,
				Detail: ledgerErr.Error(),
			},
			Kind: ledgerErr.Kind,
			Key:  ledgerErr.Key,
		}
		if ledgerErr.Line >= 0 {
			line := ledgerErr.Line
			problem.Line = &line
		}
		JSON(w, status, problem)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// StatusForKind picks the HTTP status for a ledger error category.
func StatusForKind(kind shared.Kind) int {
	switch kind {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindDuplicateReference, shared.KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}
