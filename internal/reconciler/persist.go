package reconciler

import (
	"context"
	"sync"
	"time"

	"shopfloor_backend/internal/events"
	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/platform/logger"
)

// Saver writes a complete job snapshot.
type Saver interface {
	Save(ctx context.Context, jobs []*domain.Job) error
}

// SnapshotWriter copies the cache to a Saver, skipping versions that are
// already stored.
type SnapshotWriter struct {
	source *Reconciler
	store  Saver
	driver string
	bus    events.Bus
	log    *logger.Logger

	mu        sync.Mutex
	persisted uint64
}

// NewSnapshotWriter creates a writer for source. driver names the store in logs.
func NewSnapshotWriter(source *Reconciler, store Saver, driver string, bus events.Bus, log *logger.Logger) *SnapshotWriter {
	if log == nil {
		log = logger.Discard()
	}
	return &SnapshotWriter{
		source:    source,
		store:     store,
		driver:    driver,
		bus:       bus,
		log:       log,
		persisted: source.Version(),
	}
}

// Flush saves the current snapshot unless its version is already stored.
func (w *SnapshotWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	jobs, version := w.source.Snapshot()
	if version == w.persisted {
		return nil
	}
	if err := w.store.Save(ctx, jobs); err != nil {
		return err
	}
	w.persisted = version
	w.log.Debug("snapshot persisted", "driver", w.driver, "version", version, "jobs", len(jobs))
	if w.bus != nil {
		w.bus.Publish(ctx, events.SnapshotPersisted{
			BaseEvent: events.NewBaseEvent(""),
			Version:   version,
			JobCount:  len(jobs),
		})
	}
	return nil
}

// Persisted returns the last stored version.
func (w *SnapshotWriter) Persisted() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.persisted
}

// PersisterConfig tunes retries and the periodic flush.
type PersisterConfig struct {
	RetryAttempts int
	RetryBackoff  time.Duration
	FlushInterval time.Duration
	FinalTimeout  time.Duration
}

// Persister runs flushes off the broadcast path. Triggers that arrive while
// a flush is pending collapse into one.
type Persister struct {
	name  string
	flush func(ctx context.Context) error
	cfg   PersisterConfig
	kick  chan struct{}
	log   *logger.Logger
}

// NewPersister creates a persister that calls flush when triggered. flush is
// either a SnapshotWriter's Flush or an enqueue onto the task queue.
func NewPersister(name string, flush func(ctx context.Context) error, cfg PersisterConfig, log *logger.Logger) *Persister {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.FinalTimeout <= 0 {
		cfg.FinalTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Persister{
		name:  name,
		flush: flush,
		cfg:   cfg,
		kick:  make(chan struct{}, 1),
		log:   log,
	}
}

// Trigger schedules a flush without blocking.
func (p *Persister) Trigger() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run flushes on every trigger and on the flush interval until ctx is done,
// then flushes once more.
func (p *Persister) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if p.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(p.cfg.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FinalTimeout)
			defer cancel()
			if err := p.flushWithRetry(finalCtx); err != nil {
				p.log.Error("final snapshot flush failed", "persister", p.name, "error", err)
				return err
			}
			p.log.Info("persister stopped", "persister", p.name)
			return nil
		case <-p.kick:
			_ = p.flushWithRetry(ctx)
		case <-tick:
			_ = p.flushWithRetry(ctx)
		}
	}
}

func (p *Persister) flushWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.RetryAttempts; attempt++ {
		if err := p.flush(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			p.log.PersistFailure(p.name, attempt, err)
		}

		if attempt < p.cfg.RetryAttempts {
			delay := time.Duration(attempt*attempt) * p.cfg.RetryBackoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return lastErr
}
