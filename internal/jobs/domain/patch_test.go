package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMergePatchOverlaysFieldsAndStamps(t *testing.T) {
	w := NewJobWorkflow(newTestLedger())
	job := newTestJob(t, w, 10)
	now := testEpoch.Add(24 * time.Hour)

	merged, err := MergePatch(job, json.RawMessage(`{"currentStage":"Bending","customer":"Beta","lastUpdated":"2001-01-01T00:00:00Z"}`), now)
	if err != nil {
		t.Fatalf("MergePatch: %v", err)
	}
	if merged.CurrentStage != StageBending || merged.Customer != "Beta" {
		t.Fatalf("patch fields not applied: %s %s", merged.CurrentStage, merged.Customer)
	}
	if !merged.LastUpdated.Equal(now) {
		t.Fatalf("expected lastUpdated to be stamped with now, got %s", merged.LastUpdated)
	}
	if merged.Code != job.Code || len(merged.Batches) != 1 {
		t.Fatalf("fields outside the patch were lost")
	}
	if job.CurrentStage != StageDesign {
		t.Fatalf("MergePatch mutated its input")
	}
}

func TestMergePatchRejectsMalformed(t *testing.T) {
	w := NewJobWorkflow(newTestLedger())
	job := newTestJob(t, w, 10)

	tests := []struct {
		name  string
		patch string
	}{
		{"not an object", `[1,2]`},
		{"null", `null`},
		{"invalid json", `{"currentStage":`},
		{"id change", `{"id":"other"}`},
		{"unknown enum", `{"dispatchStatus":"Teleported"}`},
		{"wrong type", `{"totalQty":"ten"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MergePatch(job, json.RawMessage(tc.patch), testEpoch)
			expectErr(t, err, ErrMalformedPatch)
		})
	}
}

func patchWith(t *testing.T, field string, value interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{field: value})
	if err != nil {
		t.Fatalf("marshal patch: %v", err)
	}
	return data
}

func TestMergePatchKeepsHistoryAppendOnly(t *testing.T) {
	w := NewJobWorkflow(newTestLedger())
	job := newTestJob(t, w, 10)
	if _, err := w.Batches().Split(job, job.Batches[0].ID, 4, "worker-1"); err != nil {
		t.Fatalf("Split: %v", err)
	}

	grown := append(job.History.Events(), HistoryEvent{ID: "e-new", JobID: job.ID, Action: ActionStart, Timestamp: testEpoch, Actor: "worker-2"})
	merged, err := MergePatch(job, patchWith(t, "history", grown), testEpoch)
	if err != nil {
		t.Fatalf("appending history: %v", err)
	}
	if merged.History.Len() != job.History.Len()+1 {
		t.Fatalf("expected one appended event, got %d", merged.History.Len())
	}

	edited := job.History.Events()
	edited[0].Actor = "someone-else"

	rewritten := job.Batches[0].Clone()
	rewritten.History = History{}
	batches := []*Batch{rewritten, job.Batches[1]}

	tests := []struct {
		name  string
		patch json.RawMessage
	}{
		{"history wiped", json.RawMessage(`{"history":[]}`)},
		{"history edited", patchWith(t, "history", edited)},
		{"batches dropped", json.RawMessage(`{"batches":[]}`)},
		{"batch history wiped", patchWith(t, "batches", batches)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MergePatch(job, tc.patch, testEpoch)
			expectErr(t, err, ErrMalformedPatch)
		})
	}
}

func TestMergePatchEnforcesQuantityInvariant(t *testing.T) {
	w := NewJobWorkflow(newTestLedger())
	job := newTestJob(t, w, 10)

	inflated := job.Batches[0].Clone()
	inflated.Quantity = 999
	_, err := MergePatch(job, patchWith(t, "batches", []*Batch{inflated}), testEpoch)
	expectErr(t, err, ErrMalformedPatch)

	_, err = MergePatch(job, json.RawMessage(`{"totalQty":3}`), testEpoch)
	expectErr(t, err, ErrMalformedPatch)

	if _, err := MergePatch(job, json.RawMessage(`{"totalQty":12}`), testEpoch); err != nil {
		t.Fatalf("raising the total should be accepted: %v", err)
	}
}
