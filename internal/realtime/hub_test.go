package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shopfloor_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type echoDispatcher struct {
	reg *Registry
}

func (d *echoDispatcher) Connected(_ context.Context, conn Conn) {
	msg, _ := NewMessage(EventJobSyncAll, []string{})
	_ = d.reg.SendToConn(conn.ID(), msg)
}

func (d *echoDispatcher) Dispatch(_ context.Context, conn Conn, msg Message) error {
	if msg.Event == "boom" {
		return apperr.Coded(apperr.KindNotFound, "UNKNOWN_JOB", "job not found")
	}
	return d.reg.SendToConn(conn.ID(), msg)
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := NewRegistry(nil)
	hub := NewHub(reg, HubConfig{SendBuffer: 8, PingInterval: time.Second}, nil)
	hub.SetDispatcher(&echoDispatcher{reg: reg})

	r := gin.New()
	r.GET("/ws", hub.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	sock, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = sock.Close() })
	return sock
}

func readMessage(t *testing.T, sock *websocket.Conn) Message {
	t.Helper()
	_ = sock.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := sock.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestServeWSRoundTrip(t *testing.T) {
	hub, srv := newTestHub(t)
	sock := dial(t, srv, "?userId=ravi")

	if got := readMessage(t, sock); got.Event != EventJobSyncAll {
		t.Fatalf("expected initial snapshot, got %q", got.Event)
	}
	if users := hub.Registry().Users(); len(users) != 1 || users[0] != "ravi" {
		t.Fatalf("expected ravi to be bound, got %v", users)
	}

	if err := sock.WriteJSON(Message{Event: "ping:test", Data: json.RawMessage(`{"n":1}`)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := readMessage(t, sock)
	if got.Event != "ping:test" || string(got.Data) != `{"n":1}` {
		t.Fatalf("unexpected echo %+v", got)
	}
}

func TestServeWSReportsErrorsWithoutClosing(t *testing.T) {
	_, srv := newTestHub(t)
	sock := dial(t, srv, "")
	readMessage(t, sock)

	if err := sock.WriteJSON(Message{Event: "boom"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := readMessage(t, sock)
	if got.Event != EventError {
		t.Fatalf("expected error frame, got %q", got.Event)
	}
	var payload ErrorPayload
	if err := json.Unmarshal(got.Data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Code != "UNKNOWN_JOB" || payload.Event != "boom" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if err := sock.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readMessage(t, sock); got.Event != EventError {
		t.Fatalf("expected error frame for malformed message, got %q", got.Event)
	}

	if err := sock.WriteJSON(Message{Event: "still:alive"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readMessage(t, sock); got.Event != "still:alive" {
		t.Fatalf("connection should survive errors, got %q", got.Event)
	}
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(NewRegistry(nil), HubConfig{AllowedOrigins: []string{"http://floor.local"}}, nil)
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://floor.local", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := hub.checkOrigin(req); got != tt.want {
			t.Fatalf("origin %q: expected %v, got %v", tt.origin, tt.want, got)
		}
	}
}
