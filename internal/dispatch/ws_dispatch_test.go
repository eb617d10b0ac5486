package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []any
	err    error
	closed bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestNotifyWithoutSession(t *testing.T) {
	r := NewWSRegistry(nil)
	if err := r.Notify("p1", VerifiedMessage{StripeVerified: true}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestNotifyAllTabs(t *testing.T) {
	r := NewWSRegistry(nil)
	a, b := &fakeConn{}, &fakeConn{}
	r.Add("p1", a)
	r.Add("p1", b)
	r.Add("p2", &fakeConn{})

	if err := r.Notify("p1", VerifiedMessage{StripeVerified: true}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Fatalf("expected one message per tab, got %d and %d", len(a.sent), len(b.sent))
	}
	if msg, ok := a.sent[0].(VerifiedMessage); !ok || !msg.StripeVerified {
		t.Fatalf("unexpected message %#v", a.sent[0])
	}
}

func TestNotifyDropsBrokenSessions(t *testing.T) {
	r := NewWSRegistry(nil)
	good, bad := &fakeConn{}, &fakeConn{err: errors.New("broken pipe")}
	r.Add("p1", good)
	r.Add("p1", bad)

	if err := r.Notify("p1", "hello"); err != nil {
		t.Fatalf("one healthy session should be enough, got %v", err)
	}
	if !bad.closed {
		t.Fatalf("broken session should be closed")
	}
	if got := r.Count("p1"); got != 1 {
		t.Fatalf("expected 1 session left, got %d", got)
	}
}

func TestRemove(t *testing.T) {
	r := NewWSRegistry(nil)
	s := r.Add("p1", &fakeConn{})
	r.Remove("p1", s)
	r.Remove("p1", s)
	if r.Count("p1") != 0 {
		t.Fatalf("expected no sessions")
	}
}
