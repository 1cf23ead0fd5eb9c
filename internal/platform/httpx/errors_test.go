package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

func TestRespondErrorMapsLedgerKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.Errorf(shared.KindNotFound, "entry 1"), http.StatusNotFound},
		{shared.Errorf(shared.KindDuplicateReference, "dup"), http.StatusConflict},
		{shared.Errorf(shared.KindInvalidState, "posted"), http.StatusConflict},
		{shared.LineErrorf(shared.KindMalformedLine, 1, "both"), http.StatusUnprocessableEntity},
		{ErrValidation, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
	}
}

func TestRespondErrorIncludesLineAndKey(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.KeyErrorf(shared.KindMissingContextValue, 0, "amount", "missing"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "MISSING_CONTEXT_VALUE", body["kind"])
	require.Equal(t, "amount", body["key"])
	require.EqualValues(t, 0, body["line"])
}
