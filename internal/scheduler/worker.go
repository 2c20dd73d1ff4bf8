package scheduler

import (
	"context"
	"fmt"

	"shopfloor_backend/platform/config"
	"shopfloor_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// SnapshotFlusher writes the current job snapshot to storage.
type SnapshotFlusher interface {
	Flush(ctx context.Context) error
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	flusher SnapshotFlusher
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, flusher SnapshotFlusher, log *logger.Logger) (*Worker, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 1
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
		Logger: newAsynqLogger(log),
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		flusher: flusher,
		log:     log,
	}

	mux.HandleFunc(TaskSnapshotPersist, w.handleSnapshotPersist)

	return w, nil
}

func (w *Worker) handleSnapshotPersist(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSnapshotPersistPayload(task)
	if err != nil {
		// A payload that cannot be parsed will never succeed.
		return asynq.SkipRetry
	}

	if err := w.flusher.Flush(ctx); err != nil {
		retried, _ := asynq.GetRetryCount(ctx)
		w.log.PersistFailure("asynq", retried+1, err)
		return err
	}
	w.log.Debug("snapshot task done", "requestedVersion", payload.Version)
	return nil
}

// Run processes tasks until ctx is done. The server runs inside the API
// process, so shutdown follows ctx rather than asynq's own signal handling.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start scheduler worker: %w", err)
	}
	w.log.Info("scheduler worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}

// asynqLogger routes asynq's own logging through the application logger.
type asynqLogger struct {
	log *logger.Logger
}

func newAsynqLogger(log *logger.Logger) asynqLogger {
	if log == nil {
		log = logger.Discard()
	}
	return asynqLogger{log: log}
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmtArgs(args), "component", "asynq") }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(fmtArgs(args), "component", "asynq") }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmtArgs(args), "component", "asynq") }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(fmtArgs(args), "component", "asynq") }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Error(fmtArgs(args), "component", "asynq", "fatal", true) }

func fmtArgs(args []interface{}) string {
	return fmt.Sprint(args...)
}
