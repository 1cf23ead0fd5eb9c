package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/compound"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/ledgermem"
	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	"github.com/odyssey-erp/ledger/internal/observability"
	"github.com/odyssey-erp/ledger/internal/shared"
)

func newTestRouter(t *testing.T, cfg *Config) (http.Handler, *ledgermem.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ledgermem.New()
	store.AddAccount(1, "1000", accounts.NatureDebit, "IDR")
	store.AddAccount(2, "4000", accounts.NatureCredit, "IDR")

	journalSvc := journals.NewService(store.Journals(), &shared.MemoryAudit{})
	compoundSvc := compound.NewService(ledgermem.NewDefinitions(), journalSvc, logger)
	compoundSvc.WithNow(func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) })

	router := NewRouter(RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(logger, accounts.NewService(store)),
		JournalsHandler: journals.NewHandler(logger, journalSvc),
		CompoundHandler: compound.NewHandler(logger, compoundSvc),
		ReportsHandler:  reports.NewHandler(logger, store),
		Metrics:         observability.NewMetrics(),
	})
	return router, store
}

func TestRouterHealthz(t *testing.T) {
	router, _ := newTestRouter(t, &Config{RateLimitPerMinute: 100})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestRouterMountsLedgerRoutes(t *testing.T) {
	router, store := newTestRouter(t, &Config{RateLimitPerMinute: 100})

	req := httptest.NewRequest(http.MethodPost, "/journals", strings.NewReader(`{"date":"2024-03-01","status":"POSTED","lines":[
		{"account_id":1,"debit":"250.00"},{"account_id":2,"credit":"250.00"}]}`))
	req.Header.Set(shared.ActorHeader, "4")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.True(t, store.Balance(1).Equal(decimal.NewFromInt(250)))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/accounts/1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/compound-journals", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/trial-balance", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "ledger_http_requests_total")
}

func TestRouterUnknownRouteIsProblem(t *testing.T) {
	router, _ := newTestRouter(t, &Config{RateLimitPerMinute: 100})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.EqualValues(t, http.StatusNotFound, body["status"])
}

func TestRouterRateLimit(t *testing.T) {
	router, _ := newTestRouter(t, &Config{RateLimitPerMinute: 2})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestActorMiddlewareStoresActor(t *testing.T) {
	var got int64
	h := actorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(shared.ActorHeader, "42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, int64(42), got)
}
