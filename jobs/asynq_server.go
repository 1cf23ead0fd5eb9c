package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/platform/httpx"
)

// DefaultConcurrency is the worker pool size when none is configured.
const DefaultConcurrency = 5

// Worker runs the ledger task handlers and, when cron entries are
// registered, the scheduler that enqueues them.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Handlers    []TaskHandler
	Cron        []CronRegistration
	Concurrency int
}

// NewWorker registers handlers and cron entries. Entries missing a type,
// handler, spec or task are ignored; an unparsable spec is an error.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	w := &Worker{
		server: asynq.NewServer(cfg.RedisOpts, asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{QueueDefault: 1},
		}),
		mux:    asynq.NewServeMux(),
		logger: logger,
	}
	w.mux.Use(LogTasks(logger))
	for _, h := range cfg.Handlers {
		if h.Type != "" && h.Handler != nil {
			w.mux.HandleFunc(h.Type, h.Handler)
		}
	}

	var entries []CronRegistration
	for _, entry := range cfg.Cron {
		if entry.Spec != "" && entry.Task != nil {
			entries = append(entries, entry)
		}
	}
	if len(entries) == 0 {
		return w, nil
	}
	w.scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
	for _, entry := range entries {
		if _, err := w.scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// LogTasks logs the outcome and duration of every processed task.
func LogTasks(logger *slog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			started := time.Now()
			err := next.ProcessTask(ctx, task)
			attrs := []any{
				slog.String("task", task.Type()),
				slog.Duration("duration", time.Since(started)),
			}
			if err != nil {
				logger.Warn("task failed", append(attrs, slog.Any("error", err))...)
				return err
			}
			logger.Debug("task done", attrs...)
			return nil
		})
	}
}

// Run processes tasks until ctx is cancelled or the server stops.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
		defer w.scheduler.Shutdown()
	}
	w.logger.Info("worker started", slog.Bool("scheduler", w.scheduler != nil))

	errCh := make(chan error, 1)
	go func() { errCh <- w.server.Run(w.mux) }()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// QueueHealth is the jobs health payload.
type QueueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// Handler exposes queue state over HTTP.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs the jobs HTTP handler. A nil inspector reports an
// empty default queue.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	health := QueueHealth{Queue: QueueDefault}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, health)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "queue state could not be read")
		return
	}
	if info != nil {
		health.Pending = info.Pending
		health.Active = info.Active
		health.Scheduled = info.Scheduled
		health.Retry = info.Retry
		health.Archived = info.Archived
	}
	httpx.JSON(w, http.StatusOK, health)
}
