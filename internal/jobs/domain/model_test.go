package domain

import (
	"encoding/json"
	"testing"
)

// liveSum adds up production batches in a status that still carries units
// through the pipeline.
func liveSum(job *Job) int {
	total := 0
	for _, b := range job.Batches {
		if b.IsRemedial() {
			continue
		}
		switch b.Status {
		case BatchPending, BatchInProgress, BatchCompleted, BatchOkQuality, BatchMoved:
			total += b.Quantity
		}
	}
	return total
}

func checkQuantity(t *testing.T, job *Job, want int) {
	t.Helper()
	mustInvariants(t, job)
	if got := job.ProductionQty(); got != liveSum(job) || got != want {
		t.Fatalf("production qty = %d, live sum = %d, want %d", got, liveSum(job), want)
	}
	if job.ProductionQty() > job.TotalQty {
		t.Fatalf("production qty %d exceeds total %d", job.ProductionQty(), job.TotalQty)
	}
}

func TestQuantityInvariantThroughRejectAndReturn(t *testing.T) {
	w := NewJobWorkflow(newTestLedger())
	job := newTestJob(t, w, 10)
	lc := w.Batches()
	checkQuantity(t, job, 10)

	res, err := lc.Split(job, job.Batches[0].ID, 4, "worker-1")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	checkQuantity(t, job, 10)

	if _, err := lc.Reject(job, res.Residual.ID, "burr", "worker-1"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	checkQuantity(t, job, 4)

	if _, err := lc.Reprocess(job, res.Residual.ID, "worker-1"); err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	checkQuantity(t, job, 10)

	w2, shippedJob, shipped := dispatchedJob(t)
	ret, err := w2.Batches().RecordCustomerReturn(shippedJob, CustomerReturn{OriginBatchID: shipped.ID, Quantity: 10, Reason: "warped"}, "admin")
	if err != nil {
		t.Fatalf("RecordCustomerReturn: %v", err)
	}
	checkQuantity(t, shippedJob, 10)

	if _, err := w2.Batches().ResolveReturn(shippedJob, ret.ID, ReprocessAt(StageDesign), "admin"); err != nil {
		t.Fatalf("ResolveReturn: %v", err)
	}
	// the remedial batch is live again but its units already shipped once
	checkQuantity(t, shippedJob, 10)
	if !ret.IsLive() || !ret.IsRemedial() {
		t.Fatalf("reprocessed return should be live remedial work: %+v", ret)
	}
}

func TestCheckInvariantsCountsOnlyLiveBatches(t *testing.T) {
	w := NewJobWorkflow(newTestLedger())
	job := newTestJob(t, w, 10)

	over := job.Clone()
	over.Batches[0].Quantity = 11
	if err := over.CheckInvariants(); err == nil {
		t.Fatalf("expected live quantity above total to fail")
	}

	rejected := over.Clone()
	rejected.Batches[0].Status = BatchRejected
	if err := rejected.CheckInvariants(); err != nil {
		t.Fatalf("rejected batches must not count: %v", err)
	}
}

func TestNormalizeFillsEmptyEnums(t *testing.T) {
	var job Job
	raw := `{"id":"A","customer":"Acme","code":"C","totalQty":5,"stageStatus":{"Design":{}},"batches":[{"id":"b1","quantity":5}]}`
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := job.Validate(); err == nil {
		t.Fatalf("expected empty enums to fail validation before Normalize")
	}

	job.Normalize()
	if err := job.Validate(); err != nil {
		t.Fatalf("Validate after Normalize: %v", err)
	}
	b := job.Batches[0]
	if job.CurrentStage != StageDesign || job.QCStatus != QCPending || job.DispatchStatus != DispatchPending {
		t.Fatalf("job enums not filled: %s %s %s", job.CurrentStage, job.QCStatus, job.DispatchStatus)
	}
	if b.Status != BatchPending || b.Stage != StageDesign || b.JobID != "A" {
		t.Fatalf("batch not filled: %+v", b)
	}
	if job.StageStatus[StageDesign].Status != StageStatePending {
		t.Fatalf("stage status not filled")
	}

	data, err := json.Marshal(&job)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var again Job
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatalf("normalized job must round-trip: %v", err)
	}
}

func TestValidateRejectsHistoryWithoutAction(t *testing.T) {
	var job Job
	raw := `{"id":"A","totalQty":1,"currentStage":"Design","qcStatus":"Pending","dispatchStatus":"Pending","history":[{"id":"e1","actor":"x"}]}`
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	expectErr(t, job.Validate(), ErrInvalidJob)
}
