package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/internal/jobs/transport"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	User   string
	Body   string
}

type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newFakeServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body string)) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fs.mu.Lock()
		fs.requests = append(fs.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			User:   r.Header.Get("X-User-ID"),
			Body:   string(body),
		})
		fs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		handler(w, r, string(body))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) recorded() []recordedRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]recordedRequest(nil), fs.requests...)
}

func isolateConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sampleJob(id string) *domain.Job {
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	return &domain.Job{
		ID:             id,
		Customer:       "Acme",
		Code:           "ACM-" + id,
		TotalQty:       10,
		CurrentStage:   domain.StageCutting,
		QCStatus:       domain.QCPending,
		DispatchStatus: domain.DispatchPending,
		StartTime:      at,
		LastUpdated:    at,
		Batches:        []*domain.Batch{},
		SkippedStages:  []domain.Stage{},
		StageStatus:    map[domain.Stage]*domain.StageStatus{},
	}
}

func TestJobsListRendersTable(t *testing.T) {
	isolateConfig(t)
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		writeJSON(w, http.StatusOK, transport.JobListResponse{Items: []*domain.Job{sampleJob("J-1")}, Total: 1})
	})

	out, err := runCLI(t, "--server", srv.URL, "--user", "asha", "jobs", "list", "--stage", "Cutting", "--completed", "false")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	for _, want := range []string{"ACM-J-1", "Acme", "Cutting"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	reqs := srv.recorded()
	if len(reqs) != 1 || reqs[0].Path != "/api/v1/jobs" || reqs[0].User != "asha" {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
	if reqs[0].Query != "completed=false&stage=Cutting" {
		t.Fatalf("unexpected query %q", reqs[0].Query)
	}
}

func TestJobsListRejectsBadCompletedFlag(t *testing.T) {
	isolateConfig(t)
	if _, err := runCLI(t, "jobs", "list", "--completed", "maybe"); err == nil {
		t.Fatal("expected error for --completed maybe")
	}
}

func TestServerErrorsCarryCode(t *testing.T) {
	isolateConfig(t)
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job nope not found", "code": "UNKNOWN_JOB"})
	})

	_, err := runCLI(t, "--server", srv.URL, "jobs", "history", "nope")
	if err == nil || !strings.Contains(err.Error(), "UNKNOWN_JOB") || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected coded 404 error, got %v", err)
	}
}

func TestSeedPostsEveryJob(t *testing.T) {
	isolateConfig(t)
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, body string) {
		if strings.Contains(body, `"id":"J-2"`) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "exists", "code": "JOB_EXISTS"})
			return
		}
		writeJSON(w, http.StatusCreated, sampleJob("x"))
	})

	path := filepath.Join(t.TempDir(), "seed.yaml")
	seed := `jobs:
  - id: J-1
    customer: Acme
    code: ACM-1
    totalQty: 5
  - id: J-2
    customer: Beta
    code: BET-1
    totalQty: 3
    stage: Cutting
`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	if _, err := runCLI(t, "--server", srv.URL, "seed", path); err == nil {
		t.Fatal("expected conflict to fail without --skip-existing")
	}

	out, err := runCLI(t, "--server", srv.URL, "seed", path, "--skip-existing")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !strings.Contains(out, "Created 1 jobs, skipped 1 existing") {
		t.Fatalf("unexpected output %q", out)
	}

	var posted transport.CreateJobRequest
	reqs := srv.recorded()
	if err := json.Unmarshal([]byte(reqs[len(reqs)-1].Body), &posted); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if posted.ID != "J-2" || posted.Stage != "Cutting" || posted.TotalQty != 3 {
		t.Fatalf("unexpected request %+v", posted)
	}
}

func TestLoadSeedFileValidates(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", "jobs: []\n"},
		{"missing code", "jobs:\n  - customer: Acme\n    totalQty: 1\n"},
		{"zero quantity", "jobs:\n  - customer: Acme\n    code: A\n    totalQty: 0\n"},
		{"not yaml", "jobs: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seed.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := loadSeedFile(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSyncPullAndPush(t *testing.T) {
	isolateConfig(t)
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		writeJSON(w, http.StatusOK, []*domain.Job{sampleJob("J-1"), sampleJob("J-2")})
	})

	dir := t.TempDir()
	file := filepath.Join(dir, "jobs.json")
	if _, err := runCLI(t, "--server", srv.URL, "sync", "pull", "-o", file); err != nil {
		t.Fatalf("pull: %v", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read pulled file: %v", err)
	}
	var pulled []*domain.Job
	if err := json.Unmarshal(data, &pulled); err != nil || len(pulled) != 2 {
		t.Fatalf("unexpected pulled file (%v): %s", err, data)
	}

	out, err := runCLI(t, "--server", srv.URL, "sync", "push", file)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if !strings.Contains(out, "Pushed 2 jobs; server now holds 2") {
		t.Fatalf("unexpected output %q", out)
	}
	reqs := srv.recorded()
	last := reqs[len(reqs)-1]
	if last.Method != http.MethodPost || last.Path != "/api/v1/sync" {
		t.Fatalf("unexpected push request %+v", last)
	}
}

func TestStagesCommand(t *testing.T) {
	isolateConfig(t)
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		writeJSON(w, http.StatusOK, transport.StagesResponse{Stages: domain.Stages(), Checkpoints: domain.Checkpoints()})
	})

	out, err := runCLI(t, "--server", srv.URL, "stages")
	if err != nil {
		t.Fatalf("stages: %v", err)
	}
	if !strings.Contains(out, "Powder-Coating") || !strings.Contains(out, "checkpoint") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
