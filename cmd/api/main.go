package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopfloor_backend/internal/adapters/storage"
	"shopfloor_backend/internal/events"
	apphttp "shopfloor_backend/internal/http"
	"shopfloor_backend/internal/http/router"
	"shopfloor_backend/internal/jobs"
	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/internal/jobs/repository"
	"shopfloor_backend/internal/realtime"
	"shopfloor_backend/internal/reconciler"
	"shopfloor_backend/internal/scheduler"
	"shopfloor_backend/platform/config"
	"shopfloor_backend/platform/db"
	"shopfloor_backend/platform/logger"
	"shopfloor_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	finalFlushTimeout = 10 * time.Second
)

// ensureBucket wraps the retry logic for verifying a MinIO bucket exists.
func ensureBucket(ctx context.Context, log *logger.Logger, storageSvc storage.StorageService, bucket string) {
	if err := withRetry(ctx, log, "ensure snapshot bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "store", cfg.GetStoreDriver(), "persist", cfg.GetPersistMode())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	store, health := openStore(ctx, cfg, log)
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close snapshot store", "error", err)
		}
	}()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Server Cache and Persistence
	// ========================================================================

	rec := reconciler.New(log, reconciler.WithEventBus(eventBus))

	// A missing or corrupt snapshot starts an empty cache; an unreachable
	// store is fatal.
	var loaded []*domain.Job
	if err := withRetry(ctx, log, "load job snapshot", 5, 2*time.Second, func() error {
		jobsLoaded, err := repository.LoadOrEmpty(ctx, store, log)
		if err != nil {
			return err
		}
		loaded = jobsLoaded
		return nil
	}); err != nil {
		log.Error("failed to load job snapshot", "error", err)
		panic("failed to load job snapshot: " + err.Error())
	}
	rec.Restore(loaded)
	log.Info("job cache restored", "jobs", len(loaded), "store", store.Name())

	writer := reconciler.NewSnapshotWriter(rec, store, store.Name(), eventBus, log)
	persisterCfg := reconciler.PersisterConfig{
		RetryAttempts: cfg.GetPersistRetryAttempts(),
		RetryBackoff:  cfg.GetPersistRetryBackoff(),
		FlushInterval: cfg.GetPersistFlushInterval(),
		FinalTimeout:  finalFlushTimeout,
	}

	var (
		persister *reconciler.Persister
		worker    *scheduler.Worker
	)
	switch cfg.GetPersistMode() {
	case config.PersistModeAsynq:
		taskClient, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize scheduler client", "error", err)
			panic("failed to initialize scheduler client: " + err.Error())
		}
		defer func() { _ = taskClient.Close() }()

		worker, err = scheduler.NewWorker(cfg, writer, log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
		persister = reconciler.NewPersister("asynq", func(ctx context.Context) error {
			return taskClient.EnqueueSnapshotPersist(ctx, rec.Version())
		}, persisterCfg, log)
	default:
		persister = reconciler.NewPersister(store.Name(), writer.Flush, persisterCfg, log)
	}
	rec.SetTrigger(persister)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	registry := realtime.NewRegistry(log)
	hub := realtime.NewHub(registry, realtime.HubConfig{
		SendBuffer:      cfg.GetWSSendBuffer(),
		PingInterval:    cfg.GetWSPingInterval(),
		AllowedOrigins:  cfg.GetCORSOrigins(),
		AllowAllOrigins: cfg.GetCORSAllowAll(),
	}, log)

	workflow := domain.NewJobWorkflow(domain.NewLedger(nil, nil))
	jobsModule := jobs.NewModule(rec, workflow, hub, val, log)
	jobsModule.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   health,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			jobsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked websocket connections are not closed by Shutdown.
		registry.Close()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return persister.Run(gctx)
	})
	if worker != nil {
		g.Go(func() error {
			return worker.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
	}

	// The task queue is gone by now; write the last snapshot directly.
	if worker != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
		defer cancel()
		if err := writer.Flush(flushCtx); err != nil {
			log.Error("final snapshot flush failed", "error", err)
		}
	}
	eventBus.Wait()
	log.Info("server stopped", "version", rec.Version(), "persisted", writer.Persisted())
}

// openStore builds the snapshot store selected by STORE_DRIVER together with
// its readiness check. Connection failures are retried and then fatal.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Store, apphttp.HealthChecker) {
	switch cfg.GetStoreDriver() {
	case config.StoreDriverSQLite:
		var store *repository.SQLiteStore
		if err := withRetry(ctx, log, "sqlite store", 5, 2*time.Second, func() error {
			s, err := repository.OpenSQLiteStore(ctx, cfg.GetStorePath())
			if err != nil {
				return err
			}
			store = s
			return nil
		}); err != nil {
			log.Error("failed to open sqlite store", "error", err)
			panic("failed to open sqlite store: " + err.Error())
		}
		return store, nil

	case config.StoreDriverPostgres:
		pool := mustPostgres(ctx, cfg, log)
		return repository.NewPostgresStore(pool), db.NewPoolAdapter(pool)

	case config.StoreDriverRedis:
		client, err := db.NewRedisClient(ctx, cfg)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			panic("failed to connect to redis: " + err.Error())
		}
		log.Info("redis connection established")
		return repository.NewRedisStore(client, repository.DefaultRedisKey), db.NewRedisAdapter(client)

	case config.StoreDriverMinIO:
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		ensureBucket(ctx, log, storageSvc, cfg.GetMinioBucketSnapshots())
		log.Info("storage service initialized", "snapshotsBucket", cfg.GetMinioBucketSnapshots())
		return repository.NewObjectStore(storageSvc, cfg.GetMinioBucketSnapshots(), repository.DefaultObjectKey), nil

	default:
		store, err := repository.NewFileStore(cfg.GetStorePath())
		if err != nil {
			log.Error("failed to open file store", "error", err)
			panic("failed to open file store: " + err.Error())
		}
		return store, nil
	}
}

func mustPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) *pgxpool.Pool {
	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")
	return pool
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
