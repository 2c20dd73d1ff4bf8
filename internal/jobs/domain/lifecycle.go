package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// BatchLifecycle owns the rules for creating, splitting and correcting
// batches. Every method validates before it mutates, so a returned error
// means the job is untouched.
type BatchLifecycle struct {
	ledger *Ledger
}

// NewBatchLifecycle creates a BatchLifecycle recording into ledger.
func NewBatchLifecycle(ledger *Ledger) *BatchLifecycle {
	return &BatchLifecycle{ledger: ledger}
}

// SplitResult is the outcome of Split. Residual is nil when the whole batch
// moved forward.
type SplitResult struct {
	Moved    *Batch `json:"moved"`
	Residual *Batch `json:"residual,omitempty"`
}

// CustomerReturn describes goods sent back by the customer.
type CustomerReturn struct {
	OriginBatchID string
	Quantity      int
	Reason        string
	OriginStage   Stage
}

// ResolutionKind selects what happens to a returned batch.
type ResolutionKind string

const (
	ResolveReprocess ResolutionKind = "Reprocess"
	ResolveScrap     ResolutionKind = "Scrap"
)

// ReturnResolution is the decision taken on a returned batch.
type ReturnResolution struct {
	Kind        ResolutionKind
	TargetStage Stage
	Reason      string
}

// ReprocessAt resolves a return by sending it back to stage.
func ReprocessAt(stage Stage) ReturnResolution {
	return ReturnResolution{Kind: ResolveReprocess, TargetStage: stage}
}

// ScrapFor resolves a return by scrapping it.
func ScrapFor(reason string) ReturnResolution {
	return ReturnResolution{Kind: ResolveScrap, Reason: reason}
}

// CreateInitialBatch creates the single batch covering the job's full
// quantity. It is a no-op returning (nil, nil) when the job already has
// batches.
func (l *BatchLifecycle) CreateInitialBatch(job *Job, actor string) (*Batch, error) {
	if len(job.Batches) > 0 {
		return nil, nil
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if job.TotalQty < 1 {
		return nil, ErrInvalidQuantity.Withf("job %s has totalQty %d", job.ID, job.TotalQty)
	}
	if !job.CurrentStage.IsProduction() {
		return nil, ErrInvalidStage.Withf("job %s is at %q", job.ID, job.CurrentStage)
	}

	now := l.ledger.Now()
	b := &Batch{
		ID:        l.ledger.NewID(),
		JobID:     job.ID,
		Stage:     job.CurrentStage,
		Quantity:  job.TotalQty,
		Status:    BatchPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.record(b, ActionCreate, actor, fmt.Sprintf("initial batch of %d", b.Quantity), now)
	job.Batches = append(job.Batches, b)
	job.LastUpdated = now
	return b, nil
}

// Split completes doneQty units of a batch. The completed portion moves to
// the next stage as Completed (it stays at Dispatch when there is no next
// stage). When units remain, the original batch id keeps the residual at
// the current stage as Pending and the moved portion gets a new id.
func (l *BatchLifecycle) Split(job *Job, batchID string, doneQty int, actor string) (SplitResult, error) {
	if err := requireActor(actor); err != nil {
		return SplitResult{}, err
	}
	b, err := mutableBatch(job, batchID)
	if err != nil {
		return SplitResult{}, err
	}
	switch b.Status {
	case BatchPending, BatchInProgress, BatchOkQuality:
	default:
		return SplitResult{}, ErrInvalidBatchTransition.Withf("batch %s is %s and cannot be split", b.ID, b.Status)
	}
	if doneQty < 1 || doneQty > b.Quantity {
		return SplitResult{}, ErrInvalidQuantity.Withf("split quantity %d must be between 1 and %d", doneQty, b.Quantity)
	}

	now := l.ledger.Now()
	target := b.Stage
	if next, ok := b.Stage.Next(); ok {
		target = next
	}
	detail := fmt.Sprintf("completed %d of %d at %s", doneQty, b.Quantity, b.Stage)

	if doneQty == b.Quantity {
		b.Stage = target
		b.Status = BatchCompleted
		b.UpdatedAt = now
		l.record(b, ActionComplete, actor, detail, now)
		job.touchStage(target, now)
		job.LastUpdated = now
		return SplitResult{Moved: b}, nil
	}

	moved := &Batch{
		ID:                l.ledger.NewID(),
		JobID:             job.ID,
		ParentID:          b.ID,
		Stage:             target,
		Quantity:          doneQty,
		Status:            BatchCompleted,
		CreatedAt:         now,
		UpdatedAt:         now,
		ReprocessCount:    b.ReprocessCount,
		ReturnOriginStage: b.ReturnOriginStage,
	}
	l.record(moved, ActionComplete, actor, detail, now)

	b.Quantity -= doneQty
	b.Status = BatchPending
	b.UpdatedAt = now

	job.insertBatchAfter(b.ID, moved)
	job.touchStage(target, now)
	job.LastUpdated = now
	return SplitResult{Moved: moved, Residual: b}, nil
}

// Start puts a waiting batch into work.
func (l *BatchLifecycle) Start(job *Job, batchID, actor string) (*Batch, error) {
	return l.transition(job, batchID, actor, BatchInProgress, ActionStart, "", BatchPending, BatchOkQuality)
}

// Pause returns a batch in work to waiting.
func (l *BatchLifecycle) Pause(job *Job, batchID, actor string) (*Batch, error) {
	return l.transition(job, batchID, actor, BatchPending, ActionPause, "", BatchInProgress)
}

// Reject marks a batch as rejected on the shop floor. Batches awaiting QC
// are rejected through RejectQC instead.
func (l *BatchLifecycle) Reject(job *Job, batchID, reason, actor string) (*Batch, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason.Withf("rejecting a batch requires a reason")
	}
	b, err := l.transition(job, batchID, actor, BatchRejected, ActionQcReject, reason, BatchPending, BatchInProgress, BatchOkQuality)
	if err != nil {
		return nil, err
	}
	b.RejectionReason = reason
	return b, nil
}

// Reprocess sends a rejected batch back to work at its current stage.
func (l *BatchLifecycle) Reprocess(job *Job, batchID, actor string) (*Batch, error) {
	b, err := l.transition(job, batchID, actor, BatchPending, ActionStart, "reprocess", BatchRejected)
	if err != nil {
		return nil, err
	}
	b.ReprocessCount++
	return b, nil
}

// ApproveQC passes a completed batch.
func (l *BatchLifecycle) ApproveQC(job *Job, batchID, reviewer string) (*Batch, error) {
	return l.transition(job, batchID, reviewer, BatchOkQuality, ActionQcApprove, "", BatchCompleted)
}

// RejectQC fails a completed batch.
func (l *BatchLifecycle) RejectQC(job *Job, batchID, reviewer, reason string) (*Batch, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason.Withf("rejecting a batch requires a reason")
	}
	b, err := l.transition(job, batchID, reviewer, BatchRejected, ActionQcReject, reason, BatchCompleted)
	if err != nil {
		return nil, err
	}
	b.RejectionReason = reason
	return b, nil
}

// SkipStage moves a single batch past its current stage. The job's own
// stage and skip list are left alone; other batches may still be working
// that stage.
func (l *BatchLifecycle) SkipStage(job *Job, batchID, reason, actor string) (*Batch, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason.Withf("skipping a stage requires a reason")
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	b, err := mutableBatch(job, batchID)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case BatchPending, BatchInProgress, BatchOkQuality:
	default:
		return nil, ErrInvalidBatchTransition.Withf("batch %s is %s and cannot skip a stage", b.ID, b.Status)
	}
	next, ok := b.Stage.Next()
	if !ok {
		return nil, ErrInvalidStageTransition.Withf("batch %s is at %s", b.ID, b.Stage)
	}

	now := l.ledger.Now()
	from := b.Stage
	b.Stage = next
	b.Status = BatchPending
	b.UpdatedAt = now
	l.recordAt(b, from, ActionSkip, actor, reason, now)
	job.touchStage(next, now)
	job.LastUpdated = now
	return b, nil
}

// RecordCustomerReturn opens a remedial batch for returned goods. The origin
// batch is not modified. A completed job is reopened until the return is
// resolved.
func (l *BatchLifecycle) RecordCustomerReturn(job *Job, ret CustomerReturn, actor string) (*Batch, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if ret.Quantity < 1 || ret.Quantity > job.TotalQty {
		return nil, ErrInvalidQuantity.Withf("return quantity %d must be between 1 and %d", ret.Quantity, job.TotalQty)
	}
	reason := strings.TrimSpace(ret.Reason)
	if reason == "" {
		return nil, ErrMissingReason.Withf("a customer return requires a reason")
	}
	origin, ok := job.Batch(ret.OriginBatchID)
	if !ok {
		return nil, ErrUnknownBatch.Withf("batch %s not found in job %s", ret.OriginBatchID, job.ID)
	}
	if origin.Status != BatchOkQuality && (origin.Status != BatchCompleted || origin.Stage != StageDispatch) {
		return nil, ErrInvalidBatchTransition.Withf("batch %s is %s at %s and cannot be returned", origin.ID, origin.Status, origin.Stage)
	}
	originStage := ret.OriginStage
	if originStage == "" {
		originStage = origin.Stage
	}
	if !originStage.IsProduction() {
		return nil, ErrInvalidStage.Withf("return origin %q is not a production stage", originStage)
	}

	now := l.ledger.Now()
	b := &Batch{
		ID:                l.ledger.NewID(),
		JobID:             job.ID,
		ParentID:          origin.ID,
		Stage:             CheckpointReturns,
		Quantity:          ret.Quantity,
		Status:            BatchReturned,
		CreatedAt:         now,
		UpdatedAt:         now,
		RejectionReason:   reason,
		ReturnOriginStage: originStage,
	}
	l.record(b, ActionCreate, actor, fmt.Sprintf("customer return of %d from %s: %s", ret.Quantity, originStage, reason), now)
	job.Batches = append(job.Batches, b)
	if job.IsCompleted {
		job.IsCompleted = false
		job.CompletedAt = nil
	}
	job.LastUpdated = now
	return b, nil
}

// ResolveReturn reprocesses or scraps a returned batch.
func (l *BatchLifecycle) ResolveReturn(job *Job, batchID string, res ReturnResolution, actor string) (*Batch, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	b, err := mutableBatch(job, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status != BatchReturned {
		return nil, ErrInvalidBatchTransition.Withf("batch %s is %s, not Returned", b.ID, b.Status)
	}

	now := l.ledger.Now()
	switch res.Kind {
	case ResolveReprocess:
		if !res.TargetStage.IsProduction() {
			return nil, ErrInvalidStage.Withf("reprocess target %q is not a production stage", res.TargetStage)
		}
		b.Stage = res.TargetStage
		b.Status = BatchPending
		b.UpdatedAt = now
		l.record(b, ActionStart, actor, "return reprocessed at "+string(res.TargetStage), now)
		job.touchStage(res.TargetStage, now)
	case ResolveScrap:
		reason := strings.TrimSpace(res.Reason)
		if reason == "" {
			return nil, ErrMissingReason.Withf("scrapping a batch requires a reason")
		}
		b.Status = BatchScrapped
		b.RejectionReason = reason
		b.UpdatedAt = now
		l.record(b, ActionQcReject, actor, "scrapped: "+reason, now)
	default:
		return nil, ErrInvalidBatchTransition.Withf("unknown return resolution %q", res.Kind)
	}
	job.LastUpdated = now
	return b, nil
}

// transition moves a batch from one of the allowed statuses to next and
// records action.
func (l *BatchLifecycle) transition(job *Job, batchID, actor string, next BatchStatus, action HistoryAction, detail string, from ...BatchStatus) (*Batch, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	b, err := mutableBatch(job, batchID)
	if err != nil {
		return nil, err
	}
	if !oneOf(b.Status, from) {
		return nil, ErrInvalidBatchTransition.Withf("batch %s cannot go from %s to %s", b.ID, b.Status, next)
	}
	now := l.ledger.Now()
	b.Status = next
	b.UpdatedAt = now
	l.record(b, action, actor, detail, now)
	job.LastUpdated = now
	return b, nil
}

func (l *BatchLifecycle) record(b *Batch, action HistoryAction, actor, detail string, at time.Time) {
	l.recordAt(b, b.Stage, action, actor, detail, at)
}

func (l *BatchLifecycle) recordAt(b *Batch, stage Stage, action HistoryAction, actor, detail string, at time.Time) {
	// Actor and action are validated before any mutation.
	_, _ = l.ledger.Append(&b.History, HistoryEvent{
		JobID:     b.JobID,
		BatchID:   b.ID,
		Stage:     stage,
		Action:    action,
		Timestamp: at,
		Actor:     actor,
		Detail:    detail,
	})
}

// mutableBatch finds a batch that may still change. Moved batches have been
// superseded and are frozen.
func mutableBatch(job *Job, batchID string) (*Batch, error) {
	b, ok := job.Batch(batchID)
	if !ok {
		return nil, ErrUnknownBatch.Withf("batch %s not found in job %s", batchID, job.ID)
	}
	if b.Status == BatchMoved {
		return nil, ErrInvalidBatchTransition.Withf("batch %s was superseded and cannot change", b.ID)
	}
	return b, nil
}

func (j *Job) insertBatchAfter(id string, b *Batch) {
	for i, existing := range j.Batches {
		if existing.ID == id {
			j.Batches = slices.Insert(j.Batches, i+1, b)
			return
		}
	}
	j.Batches = append(j.Batches, b)
}

// stageStatus returns the record for stage, creating it on first use.
func (j *Job) stageStatus(stage Stage) *StageStatus {
	if j.StageStatus == nil {
		j.StageStatus = make(map[Stage]*StageStatus)
	}
	ss, ok := j.StageStatus[stage]
	if !ok || ss == nil {
		ss = &StageStatus{Status: StageStatePending}
		j.StageStatus[stage] = ss
	}
	return ss
}

// touchStage marks stage as active when work first arrives there.
func (j *Job) touchStage(stage Stage, now time.Time) {
	if !stage.IsProduction() {
		return
	}
	ss := j.stageStatus(stage)
	if ss.Status == StageStatePending {
		ss.Status = StageStateInProgress
	}
	if ss.StartTime == nil {
		ss.StartTime = timePtr(now)
	}
}

// enterStage makes stage the job's current stage.
func (j *Job) enterStage(stage Stage, now time.Time) {
	j.touchStage(stage, now)
	j.CurrentStage = stage
	j.CurrentStageStartTime = now
}
