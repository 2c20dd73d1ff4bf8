package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// newTestLedger returns a ledger whose clock advances one second per call
// and whose ids are sequential.
func newTestLedger() *Ledger {
	ticks := 0
	ids := 0
	return NewLedger(
		func() time.Time {
			ticks++
			return testEpoch.Add(time.Duration(ticks) * time.Second)
		},
		func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	)
}

func newTestJob(t *testing.T, w *JobWorkflow, qty int) *Job {
	t.Helper()
	job, err := w.NewJob(NewJobParams{ID: "J", Customer: "Acme", Code: "ACM-001", TotalQty: qty}, "admin")
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return job
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func mustInvariants(t *testing.T, job *Job) {
	t.Helper()
	if err := job.CheckInvariants(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}
