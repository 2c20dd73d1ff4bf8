package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStageCatalogOrder(t *testing.T) {
	stages := Stages()
	if len(stages) != 8 || stages[0] != StageDesign || stages[7] != StageDispatch {
		t.Fatalf("unexpected pipeline %v", stages)
	}
	for i := 0; i < len(stages)-1; i++ {
		next, ok := stages[i].Next()
		if !ok || next != stages[i+1] {
			t.Fatalf("%s: expected next %s, got %s", stages[i], stages[i+1], next)
		}
	}
	if _, ok := StageDispatch.Next(); ok {
		t.Fatalf("Dispatch must be the last stage")
	}

	stages[0] = "mutated"
	if FirstStage() != StageDesign {
		t.Fatalf("Stages must return a copy")
	}
}

func TestCheckpointsAreNotPipelineStages(t *testing.T) {
	for _, c := range Checkpoints() {
		if c.IsProduction() || !c.IsValid() {
			t.Fatalf("%s: expected a valid checkpoint outside the pipeline", c)
		}
		if _, ok := c.Next(); ok {
			t.Fatalf("%s: checkpoints have no successor", c)
		}
	}
}

func TestJobDecodingRejectsUnknownEnums(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"stage", `{"id":"J","currentStage":"Welding"}`},
		{"qc status", `{"id":"J","qcStatus":"Maybe"}`},
		{"dispatch status", `{"id":"J","dispatchStatus":"Lost"}`},
		{"batch status", `{"id":"J","batches":[{"id":"B","status":"Gone"}]}`},
		{"stage status key", `{"id":"J","stageStatus":{"Welding":{"status":"Pending"}}}`},
		{"history action", `{"id":"J","history":[{"action":"Teleport","actor":"a"}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var job Job
			if err := json.Unmarshal([]byte(tc.body), &job); err == nil {
				t.Fatalf("expected decoding to fail")
			}
		})
	}
}

func TestJobJSONRoundTrip(t *testing.T) {
	w := NewJobWorkflow(newTestLedger())
	job := newTestJob(t, w, 10)
	if _, err := w.Batches().Split(job, job.Batches[0].ID, 3, "worker-1"); err != nil {
		t.Fatalf("Split: %v", err)
	}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"currentStage":"Design"`) {
		t.Fatalf("expected camelCase stage field, got %s", data)
	}

	var decoded Job
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded.Batches) != 2 || decoded.Batches[1].History.Len() != 1 {
		t.Fatalf("batches or history lost in round trip")
	}
	if !decoded.LastUpdated.Equal(job.LastUpdated) {
		t.Fatalf("lastUpdated changed in round trip")
	}
}

func TestCloneIsDeep(t *testing.T) {
	w := NewJobWorkflow(newTestLedger())
	job := newTestJob(t, w, 10)
	if err := w.AssignWorkers(job, StageDesign, []string{"w1"}); err != nil {
		t.Fatalf("AssignWorkers: %v", err)
	}

	cp := job.Clone()
	if _, err := w.Batches().Split(cp, cp.Batches[0].ID, 4, "worker-1"); err != nil {
		t.Fatalf("Split: %v", err)
	}
	cp.StageStatus[StageDesign].AssignedWorkers[0] = "changed"

	if len(job.Batches) != 1 || job.Batches[0].Quantity != 10 {
		t.Fatalf("mutating the clone changed the original batches")
	}
	if job.StageStatus[StageDesign].AssignedWorkers[0] != "w1" {
		t.Fatalf("mutating the clone changed the original stage status")
	}
}
