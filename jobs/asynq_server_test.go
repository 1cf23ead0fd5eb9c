package jobs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil))).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0}`, rr.Body.String())
}

func TestHealthReportsUnreachableQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = inspector.Close() })
	mr.Close()

	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, slog.New(slog.NewTextHandler(io.Discard, nil))).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":503`)
}

func TestLogTasksPassesThroughResult(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	boom := errors.New("boom")

	failing := LogTasks(logger)(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return boom }))
	require.ErrorIs(t, failing.ProcessTask(context.Background(), asynq.NewTask(TaskCompoundTick, nil)), boom)
	require.Contains(t, buf.String(), `"msg":"task failed"`)
	require.Contains(t, buf.String(), `"task":"compound:tick"`)

	buf.Reset()
	ok := LogTasks(logger)(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return nil }))
	require.NoError(t, ok.ProcessTask(context.Background(), asynq.NewTask(TaskCompoundExecute, nil)))
	require.Contains(t, buf.String(), `"msg":"task done"`)
}

func TestNewWorkerSkipsIncompleteRegistrations(t *testing.T) {
	tick, err := NewCompoundTickTask()
	require.NoError(t, err)

	w, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers: []TaskHandler{
			{Type: TaskCompoundTick, Handler: func(ctx context.Context, task *asynq.Task) error { return nil }},
			{Type: "", Handler: nil},
		},
		Cron: []CronRegistration{{Spec: "@every 1m", Task: tick}, {Spec: "", Task: tick}},
	})
	require.NoError(t, err)
	require.NotNil(t, w.scheduler)

	plain, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "@every 1m"}},
	})
	require.NoError(t, err)
	require.Nil(t, plain.scheduler)
}

func TestNewWorkerRejectsBadCronSpec(t *testing.T) {
	tick, err := NewCompoundTickTask()
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "not a spec", Task: tick}},
	})
	require.Error(t, err)
}

func TestRunRequiresWorker(t *testing.T) {
	var w *Worker
	require.Error(t, w.Run(context.Background()))
}
