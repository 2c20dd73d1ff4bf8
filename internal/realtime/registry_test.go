package realtime

import (
	"sync"
	"testing"
)

type fakeConn struct {
	id     string
	cap    int
	mu     sync.Mutex
	got    []Message
	closed bool
}

func newFakeConn(id string, capacity int) *fakeConn {
	return &fakeConn{id: id, cap: capacity}
}

func (f *fakeConn) ID() string   { return f.id }
func (f *fakeConn) Kind() string { return "fake" }

func (f *fakeConn) Send(msg Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.got) >= f.cap {
		return false
	}
	f.got = append(f.got, msg)
	return true
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.got))
	for _, m := range f.got {
		out = append(out, m.Event)
	}
	return out
}

func TestBroadcastSkipsSender(t *testing.T) {
	reg := NewRegistry(nil)
	a, b, c := newFakeConn("a", 8), newFakeConn("b", 8), newFakeConn("c", 8)
	reg.Register(a)
	reg.Register(b)
	reg.Register(c)

	n := reg.Broadcast(Message{Event: EventJobUpdate}, "a")
	if n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if len(a.events()) != 0 {
		t.Fatalf("sender should not receive its own broadcast")
	}
	if len(b.events()) != 1 || len(c.events()) != 1 {
		t.Fatalf("expected both peers to receive, got %v %v", b.events(), c.events())
	}

	if n := reg.Broadcast(Message{Event: EventJobSyncAll}, ""); n != 3 {
		t.Fatalf("expected 3 deliveries without exclusion, got %d", n)
	}
}

func TestSendToUserReachesEveryConnection(t *testing.T) {
	reg := NewRegistry(nil)
	phone, tablet, other := newFakeConn("p", 4), newFakeConn("t", 4), newFakeConn("o", 4)
	for _, c := range []*fakeConn{phone, tablet, other} {
		reg.Register(c)
	}
	if err := reg.Bind("p", "ravi"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := reg.Bind("t", "ravi"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := reg.Bind("o", "meena"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	if n := reg.SendToUser("ravi", Message{Event: EventJobAssigned}); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if len(other.events()) != 0 {
		t.Fatalf("other user should not receive")
	}
	if n := reg.SendToUser("nobody", Message{Event: EventJobAssigned}); n != 0 {
		t.Fatalf("expected no deliveries for unknown user, got %d", n)
	}

	users := reg.Users()
	if len(users) != 2 || users[0] != "meena" || users[1] != "ravi" {
		t.Fatalf("unexpected users %v", users)
	}
}

func TestRebindMovesConnection(t *testing.T) {
	reg := NewRegistry(nil)
	c := newFakeConn("c", 4)
	reg.Register(c)
	_ = reg.Bind("c", "first")
	_ = reg.Bind("c", "second")

	if got := reg.UserOf("c"); got != "second" {
		t.Fatalf("expected second, got %q", got)
	}
	if n := reg.SendToUser("first", Message{Event: EventJobAssigned}); n != 0 {
		t.Fatalf("stale binding still receives")
	}
}

func TestBindRequiresRegisteredConnection(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Bind("ghost", "u"); err == nil {
		t.Fatalf("expected error for unregistered connection")
	}
	reg.Register(newFakeConn("c", 1))
	if err := reg.Bind("c", ""); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}

func TestSlowConsumerIsDropped(t *testing.T) {
	reg := NewRegistry(nil)
	slow, fast := newFakeConn("slow", 1), newFakeConn("fast", 8)
	reg.Register(slow)
	reg.Register(fast)
	_ = reg.Bind("slow", "u")

	reg.Broadcast(Message{Event: EventJobUpdate}, "")
	reg.Broadcast(Message{Event: EventJobUpdate}, "")

	if reg.Count() != 1 {
		t.Fatalf("expected slow consumer to be unregistered, count=%d", reg.Count())
	}
	if !slow.closed {
		t.Fatalf("expected slow consumer to be closed")
	}
	if len(reg.Users()) != 0 {
		t.Fatalf("expected binding to be removed with the connection")
	}
	if len(fast.events()) != 2 {
		t.Fatalf("fast consumer missed messages: %v", fast.events())
	}
}

func TestUnregisterAndClose(t *testing.T) {
	reg := NewRegistry(nil)
	a, b := newFakeConn("a", 1), newFakeConn("b", 1)
	reg.Register(a)
	reg.Register(b)
	_ = reg.Bind("a", "u")

	reg.Unregister("a")
	if err := reg.SendToConn("a", Message{Event: EventJobUpdate}); err == nil {
		t.Fatalf("expected error sending to unregistered connection")
	}
	if reg.UserOf("a") != "" {
		t.Fatalf("binding survived unregister")
	}

	reg.Close()
	if reg.Count() != 0 || !b.closed {
		t.Fatalf("close should drop every connection")
	}
}
