package server

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/NicolasHaas/relaychat/pkg/model"
	"github.com/NicolasHaas/relaychat/pkg/protocol"
)

func newTestBroadcaster(t *testing.T) (*Broadcaster, *Registry, *Metrics) {
	t.Helper()
	r := NewRegistry()
	m := NewMetrics()
	b := NewBroadcaster(r, m)
	b.now = func() time.Time { return time.Date(2024, 5, 1, 14, 3, 9, 0, time.UTC) }
	return b, r, m
}

func TestBroadcastSkipsSender(t *testing.T) {
	b, r, _ := newTestBroadcaster(t)
	aliceID, bobID, carolID := NewConnID(), NewConnID(), NewConnID()
	alice, bob, carol := &fakeSender{}, &fakeSender{}, &fakeSender{}
	mustRegister(t, r, aliceID, "alice", alice)
	mustRegister(t, r, bobID, "bob", bob)
	mustRegister(t, r, carolID, "carol", carol)

	if got := b.Broadcast("alice", "hi all", aliceID); got != 2 {
		t.Fatalf("Broadcast delivered %d, want 2", got)
	}

	want := []*protocol.Message{protocol.ChatEvent("alice", "hi all", "14:03:09")}
	for name, s := range map[string]*fakeSender{"bob": bob, "carol": carol} {
		if diff := cmp.Diff(want, s.received()); diff != "" {
			t.Errorf("%s received mismatch (-want +got):\n%s", name, diff)
		}
	}
	if n := len(alice.received()); n != 0 {
		t.Errorf("sender received %d frames of its own message", n)
	}
}

func TestBroadcastSharedTimestamp(t *testing.T) {
	b, r, _ := newTestBroadcaster(t)
	calls := 0
	b.now = func() time.Time {
		calls++
		return time.Date(2024, 5, 1, 9, 0, calls, 0, time.UTC)
	}
	bob, carol := &fakeSender{}, &fakeSender{}
	mustRegister(t, r, NewConnID(), "bob", bob)
	mustRegister(t, r, NewConnID(), "carol", carol)

	b.Broadcast("alice", "tick", uuid.Nil)

	if calls != 1 {
		t.Fatalf("clock read %d times, want 1", calls)
	}
	if bob.received()[0].Timestamp != carol.received()[0].Timestamp {
		t.Fatal("recipients saw different timestamps")
	}
}

func TestBroadcastEvictsFailedRecipient(t *testing.T) {
	b, r, m := newTestBroadcaster(t)
	bobID, carolID := NewConnID(), NewConnID()
	bob, carol := &fakeSender{}, &fakeSender{fail: true}
	mustRegister(t, r, bobID, "bob", bob)
	mustRegister(t, r, carolID, "carol", carol)

	if got := b.Broadcast("alice", "hello", uuid.Nil); got != 1 {
		t.Fatalf("Broadcast delivered %d, want 1", got)
	}
	if _, ok := r.Username(carolID); ok {
		t.Fatal("carol still registered after failed delivery")
	}
	if !carol.isClosed() {
		t.Fatal("carol's connection not closed")
	}
	if got := m.Evictions.Load(); got != 1 {
		t.Fatalf("Evictions: got %d, want 1", got)
	}

	// Eviction itself announces nothing; the evicted handler does that.
	if n := len(bob.received()); n != 1 {
		t.Fatalf("bob received %d frames, want only the chat", n)
	}
}

func TestBroadcastEmptyRegistry(t *testing.T) {
	b, _, _ := newTestBroadcaster(t)
	if got := b.Broadcast("alice", "anyone?", uuid.Nil); got != 0 {
		t.Fatalf("Broadcast delivered %d, want 0", got)
	}
}

func TestNoticeUsesSystemSender(t *testing.T) {
	b, r, _ := newTestBroadcaster(t)
	bob := &fakeSender{}
	mustRegister(t, r, NewConnID(), "bob", bob)

	b.Notice("alice connected", uuid.Nil)

	got := bob.received()
	if len(got) != 1 {
		t.Fatalf("bob received %d frames, want 1", len(got))
	}
	if got[0].From != model.SystemSender || got[0].Text != "alice connected" {
		t.Fatalf("notice: got from=%q text=%q", got[0].From, got[0].Text)
	}
}

func mustRegister(t *testing.T, r *Registry, id ConnID, name string, out Sender) {
	t.Helper()
	if err := r.Register(id, name, out); err != nil {
		t.Fatalf("Register %s: %v", name, err)
	}
}
