package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shopfloor_backend/internal/events"
	apphttp "shopfloor_backend/internal/http"
	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/internal/jobs/transport"
	"shopfloor_backend/internal/realtime"
	"shopfloor_backend/internal/reconciler"
	"shopfloor_backend/platform/httpkit"
	"shopfloor_backend/platform/logger"
	"shopfloor_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type fixture struct {
	module *Module
	rec    *reconciler.Reconciler
	bus    *events.InMemoryBus
	engine *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Discard()
	bus := events.NewInMemoryBus(log)
	rec := reconciler.New(log, reconciler.WithEventBus(bus))
	wf := domain.NewJobWorkflow(domain.NewLedger(nil, nil))
	hub := realtime.NewHub(realtime.NewRegistry(log), realtime.HubConfig{SendBuffer: 32, PingInterval: time.Second}, log)

	m := NewModule(rec, wf, hub, validator.New(), log)
	m.RegisterHandlers(bus)

	engine := gin.New()
	m.RegisterRoutes(&apphttp.RouterContext{Engine: engine, V1: engine.Group("/api/v1")})
	return &fixture{module: m, rec: rec, bus: bus, engine: engine}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "asha")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createJob(t *testing.T, id string, qty int) *domain.Job {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/jobs", transport.CreateJobRequest{ID: id, Customer: "Acme", Code: "ACM-" + id, TotalQty: qty})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: %d %s", id, rec.Code, rec.Body.String())
	}
	var job domain.Job
	decodeBody(t, rec, &job)
	return &job
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if code == "" {
		return
	}
	var body httpkit.ErrorResponse
	decodeBody(t, rec, &body)
	if body.Code != code {
		t.Fatalf("expected code %s, got %q", code, body.Code)
	}
}

func TestCreateSplitAndHistory(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t, "J-1", 10)
	if job.CurrentStage != domain.StageDesign || len(job.Batches) != 1 {
		t.Fatalf("unexpected new job: stage %s, %d batches", job.CurrentStage, len(job.Batches))
	}
	batchID := job.Batches[0].ID

	rec := f.do(t, http.MethodPost, "/api/v1/jobs/J-1/batches/"+batchID+"/split", transport.SplitBatchRequest{Quantity: 4})
	expectCode(t, rec, http.StatusOK, "")
	var split transport.SplitBatchResponse
	decodeBody(t, rec, &split)
	if split.Moved == nil || split.Moved.Quantity != 4 || split.Moved.Stage != domain.StageCutting {
		t.Fatalf("unexpected moved batch: %+v", split.Moved)
	}
	if split.Residual == nil || split.Residual.ID != batchID || split.Residual.Quantity != 6 {
		t.Fatalf("unexpected residual: %+v", split.Residual)
	}
	if err := split.Job.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/jobs/J-1/history", nil)
	expectCode(t, rec, http.StatusOK, "")
	var history transport.HistoryResponse
	decodeBody(t, rec, &history)
	if len(history.Events) < 3 {
		t.Fatalf("expected create, batch and split events, got %d", len(history.Events))
	}
	for _, ev := range history.Events {
		if ev.Actor != "asha" {
			t.Fatalf("expected actor from identity, got %q", ev.Actor)
		}
	}

	expectCode(t, f.do(t, http.MethodPost, "/api/v1/jobs", transport.CreateJobRequest{ID: "J-1", Customer: "Acme", Code: "X", TotalQty: 1}), http.StatusConflict, "JOB_EXISTS")
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t, "J-2", 5)
	batchID := job.Batches[0].ID

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"malformed body", http.MethodPost, "/api/v1/jobs", "{", http.StatusBadRequest, ""},
		{"missing quantity", http.MethodPost, "/api/v1/jobs", transport.CreateJobRequest{Customer: "Acme", Code: "X"}, http.StatusBadRequest, ""},
		{"unknown job", http.MethodGet, "/api/v1/jobs/nope", nil, http.StatusNotFound, "UNKNOWN_JOB"},
		{"unknown batch", http.MethodPost, "/api/v1/jobs/J-2/batches/nope/start", nil, http.StatusNotFound, "UNKNOWN_BATCH"},
		{"split too much", http.MethodPost, "/api/v1/jobs/J-2/batches/" + batchID + "/split", transport.SplitBatchRequest{Quantity: 6}, http.StatusUnprocessableEntity, "INVALID_QUANTITY"},
		{"reject without reason", http.MethodPost, "/api/v1/jobs/J-2/batches/" + batchID + "/reject", transport.ReasonRequest{}, http.StatusUnprocessableEntity, "MISSING_REASON"},
		{"dispatch without metadata", http.MethodPost, "/api/v1/jobs/J-2/dispatch", nil, http.StatusUnprocessableEntity, "INCOMPLETE_DISPATCH_INFO"},
		{"payment out of order", http.MethodPost, "/api/v1/jobs/J-2/dispatch/payment", nil, http.StatusConflict, "INVALID_DISPATCH_TRANSITION"},
		{"unknown stage filter", http.MethodGet, "/api/v1/jobs?stage=Welding", nil, http.StatusUnprocessableEntity, "INVALID_STAGE"},
		{"bad completed filter", http.MethodGet, "/api/v1/jobs?completed=maybe", nil, http.StatusBadRequest, ""},
		{"bad resolve action", http.MethodPost, "/api/v1/jobs/J-2/returns/" + batchID + "/resolve", transport.ResolveReturnRequest{Action: "burn"}, http.StatusBadRequest, ""},
		{"malformed patch", http.MethodPatch, "/api/v1/jobs/J-2", "[1,2]", http.StatusBadRequest, "MALFORMED_PATCH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectCode(t, f.do(t, tt.method, tt.path, tt.body), tt.status, tt.code)
		})
	}

	// Failed operations leave the job untouched.
	got, err := f.rec.Get("J-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.LastUpdated.Equal(job.LastUpdated) || got.Batches[0].Status != domain.BatchPending {
		t.Fatalf("job changed by failed operations")
	}
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	f.createJob(t, "A", 3)
	f.createJob(t, "B", 3)
	expectCode(t, f.do(t, http.MethodPost, "/api/v1/jobs/B/skip", transport.ReasonRequest{Reason: "drawing supplied"}), http.StatusOK, "")

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"A", "B"}},
		{"?stage=Cutting", []string{"B"}},
		{"?stage=Design", []string{"A", "B"}}, // B's batch is still at Design
		{"?customer=acme", []string{"A", "B"}},
		{"?customer=Other", nil},
		{"?completed=true", nil},
	}
	for _, tt := range tests {
		rec := f.do(t, http.MethodGet, "/api/v1/jobs"+tt.query, nil)
		expectCode(t, rec, http.StatusOK, "")
		var list transport.JobListResponse
		decodeBody(t, rec, &list)
		var ids []string
		for _, j := range list.Items {
			ids = append(ids, j.ID)
		}
		if strings.Join(ids, ",") != strings.Join(tt.want, ",") || list.Total != len(tt.want) {
			t.Fatalf("query %q: got %v (total %d), want %v", tt.query, ids, list.Total, tt.want)
		}
	}
}

func TestPatchAndSyncEndpoints(t *testing.T) {
	f := newFixture(t)
	f.createJob(t, "J-3", 2)

	rec := f.do(t, http.MethodPatch, "/api/v1/jobs/J-3", `{"customer":"Beta"}`)
	expectCode(t, rec, http.StatusOK, "")
	var patched domain.Job
	decodeBody(t, rec, &patched)
	if patched.Customer != "Beta" {
		t.Fatalf("patch not applied: %s", patched.Customer)
	}

	expectCode(t, f.do(t, http.MethodPatch, "/api/v1/jobs/ghost", `{"customer":"Beta"}`), http.StatusNotFound, "UNKNOWN_JOB")

	rec = f.do(t, http.MethodGet, "/api/v1/sync", nil)
	expectCode(t, rec, http.StatusOK, "")
	var pulled []*domain.Job
	decodeBody(t, rec, &pulled)
	if len(pulled) != 1 {
		t.Fatalf("expected 1 job, got %d", len(pulled))
	}

	// An older copy pushed back does not win over the cache.
	stale := pulled[0].Clone()
	stale.Customer = "Stale"
	stale.LastUpdated = stale.LastUpdated.Add(-time.Hour)
	rec = f.do(t, http.MethodPost, "/api/v1/sync", []*domain.Job{stale})
	expectCode(t, rec, http.StatusOK, "")
	var reconciled []*domain.Job
	decodeBody(t, rec, &reconciled)
	if len(reconciled) != 1 || reconciled[0].Customer != "Beta" {
		t.Fatalf("expected cached copy to win, got %+v", reconciled)
	}

	expectCode(t, f.do(t, http.MethodPost, "/api/v1/sync", `{"not":"a list"}`), http.StatusBadRequest, "")

	rec = f.do(t, http.MethodGet, "/api/v1/sync/status", nil)
	expectCode(t, rec, http.StatusOK, "")
	var status transport.SyncStatusResponse
	decodeBody(t, rec, &status)
	if status.JobCount != 1 || status.Version == 0 || status.PersistedAt != nil {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestSnapshotPersistedUpdatesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.module.Handle(ctx, events.SnapshotPersisted{BaseEvent: events.NewBaseEvent(""), Version: 4, JobCount: 2})
	_ = f.module.Handle(ctx, events.SnapshotPersisted{BaseEvent: events.NewBaseEvent(""), Version: 2, JobCount: 1})

	status := f.module.SyncStatus()
	if status.PersistedVersion != 4 || status.PersistedAt == nil {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestJobWorkflowThroughDispatch(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t, "J-4", 1)
	base := "/api/v1/jobs/J-4"

	// Walk the single batch and the job to the last stage.
	for range domain.Stages()[:len(domain.Stages())-1] {
		current, _ := f.rec.Get("J-4")
		batch := current.Batches[0]
		if batch.Status == domain.BatchCompleted {
			expectCode(t, f.do(t, http.MethodPost, base+"/batches/"+batch.ID+"/qc/approve", nil), http.StatusOK, "")
		}
		expectCode(t, f.do(t, http.MethodPost, base+"/batches/"+batch.ID+"/split", transport.SplitBatchRequest{Quantity: 1}), http.StatusOK, "")
		expectCode(t, f.do(t, http.MethodPost, base+"/qc/ready", nil), http.StatusOK, "")
		expectCode(t, f.do(t, http.MethodPost, base+"/qc/approve", transport.ApproveQCRequest{Notes: "ok"}), http.StatusOK, "")
	}

	current, _ := f.rec.Get("J-4")
	if current.CurrentStage != domain.StageDispatch {
		t.Fatalf("expected Dispatch, got %s", current.CurrentStage)
	}
	expectCode(t, f.do(t, http.MethodPost, base+"/batches/"+current.Batches[0].ID+"/qc/approve", nil), http.StatusOK, "")

	steps := []struct {
		path string
		body interface{}
	}{
		{"/dispatch/ready", transport.DispatchReadyRequest{Vehicle: "KA-01-1234", DispatcherName: "Ravi"}},
		{"/dispatch", nil},
		{"/dispatch/invoice", transport.InvoiceRequest{InvoiceNumber: "INV-9", Amount: 1200}},
		{"/dispatch/payment", nil},
		{"/dispatch/close", nil},
	}
	for _, step := range steps {
		expectCode(t, f.do(t, http.MethodPost, base+step.path, step.body), http.StatusOK, "")
	}

	final, _ := f.rec.Get("J-4")
	if final.DispatchStatus != domain.DispatchClosed {
		t.Fatalf("expected Closed, got %s", final.DispatchStatus)
	}
	if !final.LastUpdated.After(job.LastUpdated) {
		t.Fatalf("lastUpdated not advanced")
	}
}

func dialWS(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?userId=" + user
	sock, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = sock.Close() })
	return sock
}

// readUntil reads frames until one named event arrives.
func readUntil(t *testing.T, sock *websocket.Conn, event string) realtime.Message {
	t.Helper()
	_ = sock.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg realtime.Message
		if err := sock.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if msg.Event == event {
			return msg
		}
	}
}

func TestRealtimeClientsSeeChanges(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)

	observer := dialWS(t, srv, "meena")
	readUntil(t, observer, realtime.EventJobSyncAll)
	sender := dialWS(t, srv, "ravi")
	readUntil(t, sender, realtime.EventJobSyncAll)

	job := f.createJob(t, "J-5", 4)
	created := readUntil(t, observer, realtime.EventJobNew)
	var got domain.Job
	if err := json.Unmarshal(created.Data, &got); err != nil || got.ID != "J-5" {
		t.Fatalf("unexpected job:new payload %s", created.Data)
	}
	readUntil(t, sender, realtime.EventJobNew)

	// An incremental update is relayed verbatim to everyone but the sender.
	patch := realtime.UpdatePayload{JobID: "J-5", Updates: json.RawMessage(`{"customer":"Beta"}`)}
	data, _ := json.Marshal(patch)
	if err := sender.WriteJSON(realtime.Message{Event: realtime.EventJobUpdateStatus, Data: data}); err != nil {
		t.Fatalf("write: %v", err)
	}
	update := readUntil(t, observer, realtime.EventJobUpdate)
	var relayed realtime.UpdatePayload
	if err := json.Unmarshal(update.Data, &relayed); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if relayed.JobID != "J-5" || string(relayed.Updates) != `{"customer":"Beta"}` {
		t.Fatalf("unexpected relay: %s", update.Data)
	}

	// Updates for unknown jobs are dropped without an error frame; the
	// following request_sync reply proves nothing else was queued first.
	data, _ = json.Marshal(realtime.UpdatePayload{JobID: "ghost", Updates: json.RawMessage(`{}`)})
	_ = sender.WriteJSON(realtime.Message{Event: realtime.EventJobUpdateStatus, Data: data})
	_ = sender.WriteJSON(realtime.Message{Event: realtime.EventJobRequestSync})
	_ = sender.SetReadDeadline(time.Now().Add(3 * time.Second))
	var next realtime.Message
	if err := sender.ReadJSON(&next); err != nil || next.Event != realtime.EventJobSyncAll {
		t.Fatalf("expected job:sync_all, got %+v (%v)", next, err)
	}

	_ = sender.WriteJSON(realtime.Message{Event: "job:teleport"})
	errFrame := readUntil(t, sender, realtime.EventError)
	var payload realtime.ErrorPayload
	_ = json.Unmarshal(errFrame.Data, &payload)
	if payload.Code != "UNKNOWN_EVENT" {
		t.Fatalf("expected UNKNOWN_EVENT, got %+v", payload)
	}

	// Assigned workers hear about the job when it enters their stage.
	expectCode(t, f.do(t, http.MethodPut, "/api/v1/jobs/J-5/workers", transport.AssignWorkersRequest{Stage: "Cutting", Workers: []string{"meena"}}), http.StatusOK, "")
	expectCode(t, f.do(t, http.MethodPost, "/api/v1/jobs/J-5/skip", transport.ReasonRequest{Reason: "design reused"}), http.StatusOK, "")
	assigned := readUntil(t, observer, realtime.EventJobAssigned)
	var ap AssignedPayload
	_ = json.Unmarshal(assigned.Data, &ap)
	if ap.JobID != job.ID || ap.Stage != string(domain.StageCutting) {
		t.Fatalf("unexpected assignment: %+v", ap)
	}
}

func TestOperatorTextIsCleaned(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/jobs", transport.CreateJobRequest{
		ID: "J-6", Customer: "  Shah &amp; <b>Sons</b> ", Code: "SS-\t1", TotalQty: 2,
	})
	expectCode(t, rec, http.StatusCreated, "")
	var job domain.Job
	decodeBody(t, rec, &job)
	if job.Customer != "Shah & Sons" || job.Code != "SS- 1" {
		t.Fatalf("unexpected customer %q code %q", job.Customer, job.Code)
	}

	batchID := job.Batches[0].ID
	expectCode(t, f.do(t, http.MethodPost, "/api/v1/jobs/J-6/batches/"+batchID+"/reject",
		transport.ReasonRequest{Reason: "<i></i>   "}), http.StatusUnprocessableEntity, "MISSING_REASON")

	rec = f.do(t, http.MethodPost, "/api/v1/jobs/J-6/batches/"+batchID+"/reject",
		transport.ReasonRequest{Reason: "<script>x</script>warped  sheet"})
	expectCode(t, rec, http.StatusOK, "")
	decodeBody(t, rec, &job)
	if got := job.Batches[0].RejectionReason; got != "xwarped sheet" {
		t.Fatalf("rejection reason = %q", got)
	}
}
