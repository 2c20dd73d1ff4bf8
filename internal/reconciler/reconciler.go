// Package reconciler owns the authoritative server-side job cache. Every
// accepted change is broadcast to the connected clients and then handed to
// persistence.
package reconciler

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"shopfloor_backend/internal/events"
	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/platform/logger"
)

// Notifier fans accepted changes out to clients. Calls for one job arrive in
// the order the changes were applied and must not block.
type Notifier interface {
	JobCreated(job *domain.Job, origin string)
	JobPatched(jobID string, patch json.RawMessage, origin string)
	JobReplaced(job *domain.Job, origin string)
	SyncAll(jobs []*domain.Job, origin string)
}

// Trigger is told that the cache changed and should be persisted.
type Trigger interface {
	Trigger()
}

type entry struct {
	mu  sync.Mutex
	job *domain.Job
}

// Reconciler serializes changes per job. Different jobs proceed in
// parallel; a full sync excludes everything else.
type Reconciler struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	version atomic.Uint64

	now      func() time.Time
	notifier Notifier
	trigger  Trigger
	bus      events.Bus
	log      *logger.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock replaces the clock used to stamp lastUpdated.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithNotifier sets the broadcast target.
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

// WithEventBus publishes stage changes on bus.
func WithEventBus(bus events.Bus) Option {
	return func(r *Reconciler) { r.bus = bus }
}

// New creates an empty reconciler.
func New(log *logger.Logger, opts ...Option) *Reconciler {
	if log == nil {
		log = logger.Discard()
	}
	r := &Reconciler{
		entries:  make(map[string]*entry),
		now:      func() time.Time { return time.Now().UTC() },
		notifier: nopNotifier{},
		trigger:  nopTrigger{},
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetNotifier replaces the broadcast target.
func (r *Reconciler) SetNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n == nil {
		n = nopNotifier{}
	}
	r.notifier = n
}

// SetTrigger replaces the persistence trigger.
func (r *Reconciler) SetTrigger(t Trigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t == nil {
		t = nopTrigger{}
	}
	r.trigger = t
}

// Now returns the reconciler's clock reading.
func (r *Reconciler) Now() time.Time {
	return r.now()
}

// Version counts accepted changes since start.
func (r *Reconciler) Version() uint64 {
	return r.version.Load()
}

// Restore replaces the cache with jobs loaded from storage. Nothing is
// broadcast or persisted.
func (r *Reconciler) Restore(jobs []*domain.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceLocked(jobs)
}

// CreateJob adds a job pushed by a client and broadcasts it as new. A job
// that is already cached is replaced only when the pushed copy is at least
// as recent; otherwise the cached job is returned and nothing is sent.
func (r *Reconciler) CreateJob(ctx context.Context, job *domain.Job, origin string) (*domain.Job, error) {
	job, err := admit(job)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var prev *domain.Job
	if e, ok := r.entries[job.ID]; ok {
		if job.LastUpdated.Before(e.job.LastUpdated) {
			r.log.SyncAnomaly("stale_create", job.ID, origin)
			return e.job.Clone(), nil
		}
		prev = e.job
		e.job = job
	} else {
		r.entries[job.ID] = &entry{job: job}
		r.order = append(r.order, job.ID)
	}
	r.version.Add(1)
	r.notifier.JobCreated(job.Clone(), origin)
	r.stageChanged(ctx, prev, job, origin)
	r.trigger.Trigger()
	return job.Clone(), nil
}

// Insert adds a job built on the server. Unlike CreateJob it refuses to
// replace an existing job.
func (r *Reconciler) Insert(ctx context.Context, job *domain.Job, origin string) (*domain.Job, error) {
	job, err := admit(job)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[job.ID]; ok {
		return nil, domain.ErrJobExists.Withf("job %s already exists", job.ID)
	}
	r.entries[job.ID] = &entry{job: job}
	r.order = append(r.order, job.ID)
	r.version.Add(1)
	r.notifier.JobCreated(job.Clone(), origin)
	r.stageChanged(ctx, nil, job, origin)
	r.trigger.Trigger()
	return job.Clone(), nil
}

// ApplyIncrementalUpdate merges patch into the cached job, stamps
// lastUpdated and relays the patch verbatim to the other clients. Unknown
// jobs are logged and reported as domain.ErrUnknownJob; the cache is
// untouched.
func (r *Reconciler) ApplyIncrementalUpdate(ctx context.Context, jobID string, patch json.RawMessage, origin string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[jobID]
	if !ok {
		r.log.SyncAnomaly("unknown_job", jobID, origin)
		return nil, domain.ErrUnknownJob.Withf("job %s not found", jobID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	merged, err := domain.MergePatch(e.job, patch, r.now())
	if err != nil {
		return nil, err
	}
	prev := e.job
	e.job = merged
	r.version.Add(1)
	r.notifier.JobPatched(jobID, patch, origin)
	r.stageChanged(ctx, prev, merged, origin)
	r.trigger.Trigger()
	return merged.Clone(), nil
}

// Mutate runs fn on a copy of the cached job. When fn succeeds the copy
// replaces the cached job and is broadcast whole; when it fails the cache
// is untouched.
func (r *Reconciler) Mutate(ctx context.Context, jobID, origin string, fn func(job *domain.Job) error) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[jobID]
	if !ok {
		return nil, domain.ErrUnknownJob.Withf("job %s not found", jobID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	work := e.job.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.LastUpdated = r.now()
	prev := e.job
	e.job = work
	r.version.Add(1)
	r.notifier.JobReplaced(work.Clone(), origin)
	r.stageChanged(ctx, prev, work, origin)
	r.trigger.Trigger()
	return work.Clone(), nil
}

// ApplyFullSync reconciles a complete job list pushed by a client. An empty
// cache takes the push verbatim. Otherwise the pushed jobs form the base,
// a cached job wins only when strictly newer, and cached jobs missing from
// the push are kept. The result replaces the cache and is broadcast to
// every client, the sender included.
func (r *Reconciler) ApplyFullSync(ctx context.Context, pushed []*domain.Job, origin string) ([]*domain.Job, error) {
	admitted := make([]*domain.Job, 0, len(pushed))
	for _, j := range pushed {
		a, err := admit(j)
		if err != nil {
			return nil, err
		}
		admitted = append(admitted, a)
	}
	pushed = dedupe(admitted)

	r.mu.Lock()
	defer r.mu.Unlock()

	var merged []*domain.Job
	if len(r.entries) == 0 {
		merged = pushed
	} else {
		merged = make([]*domain.Job, 0, len(pushed)+len(r.order))
		inPush := make(map[string]bool, len(pushed))
		for _, p := range pushed {
			inPush[p.ID] = true
			if e, ok := r.entries[p.ID]; ok && e.job.LastUpdated.After(p.LastUpdated) {
				merged = append(merged, e.job)
				continue
			}
			merged = append(merged, p)
		}
		for _, id := range r.order {
			if !inPush[id] {
				merged = append(merged, r.entries[id].job)
			}
		}
	}

	previous := make(map[string]*domain.Job, len(r.entries))
	for id, e := range r.entries {
		previous[id] = e.job
	}
	r.replaceLocked(merged)
	r.version.Add(1)

	snapshot := r.snapshotLocked()
	r.notifier.SyncAll(cloneAll(snapshot), origin)
	for _, j := range snapshot {
		r.stageChanged(ctx, previous[j.ID], j, origin)
	}
	r.trigger.Trigger()
	return cloneAll(snapshot), nil
}

// RequestSync returns the whole cache in insertion order.
func (r *Reconciler) RequestSync() []*domain.Job {
	jobs, _ := r.Snapshot()
	return jobs
}

// Snapshot returns deep copies of every cached job and the version they
// reflect. Changes made after the version was read carry a higher version.
func (r *Reconciler) Snapshot() ([]*domain.Job, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	version := r.version.Load()
	out := make([]*domain.Job, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		e.mu.Lock()
		out = append(out, e.job.Clone())
		e.mu.Unlock()
	}
	return out, version
}

// Get returns a copy of one cached job.
func (r *Reconciler) Get(jobID string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[jobID]
	if !ok {
		return nil, domain.ErrUnknownJob.Withf("job %s not found", jobID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// Len returns the number of cached jobs.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Reconciler) replaceLocked(jobs []*domain.Job) {
	r.entries = make(map[string]*entry, len(jobs))
	r.order = make([]string, 0, len(jobs))
	for _, j := range dedupe(jobs) {
		cp := j.Clone()
		cp.Normalize()
		r.entries[j.ID] = &entry{job: cp}
		r.order = append(r.order, j.ID)
	}
}

func (r *Reconciler) snapshotLocked() []*domain.Job {
	out := make([]*domain.Job, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].job)
	}
	return out
}

func (r *Reconciler) stageChanged(ctx context.Context, prev, next *domain.Job, origin string) {
	if r.bus == nil || next == nil {
		return
	}
	from := domain.Stage("")
	if prev != nil {
		from = prev.CurrentStage
		if from == next.CurrentStage {
			return
		}
	}
	var workers []string
	if st, ok := next.StageStatus[next.CurrentStage]; ok && st != nil {
		workers = append(workers, st.AssignedWorkers...)
	}
	r.bus.Publish(ctx, events.JobStageChanged{
		BaseEvent:       events.NewBaseEvent(origin),
		JobID:           next.ID,
		Code:            next.Code,
		From:            string(from),
		To:              string(next.CurrentStage),
		AssignedWorkers: workers,
	})
}

// dedupe keeps the first position of each id and the last copy pushed.
// admit returns a normalized copy of a job arriving from outside the cache.
func admit(job *domain.Job) (*domain.Job, error) {
	cp := job.Clone()
	cp.Normalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return cp, nil
}

func dedupe(jobs []*domain.Job) []*domain.Job {
	index := make(map[string]int, len(jobs))
	out := make([]*domain.Job, 0, len(jobs))
	for _, j := range jobs {
		if i, ok := index[j.ID]; ok {
			out[i] = j
			continue
		}
		index[j.ID] = len(out)
		out = append(out, j)
	}
	return out
}

func cloneAll(jobs []*domain.Job) []*domain.Job {
	out := make([]*domain.Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.Clone()
	}
	return out
}

type nopNotifier struct{}

func (nopNotifier) JobCreated(*domain.Job, string)             {}
func (nopNotifier) JobPatched(string, json.RawMessage, string) {}
func (nopNotifier) JobReplaced(*domain.Job, string)            {}
func (nopNotifier) SyncAll([]*domain.Job, string)              {}

type nopTrigger struct{}

func (nopTrigger) Trigger() {}
