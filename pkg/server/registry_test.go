package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/relaychat/pkg/protocol"
)

// fakeSender records frames and can be told to fail every send.
type fakeSender struct {
	mu     sync.Mutex
	msgs   []*protocol.Message
	fail   bool
	closed bool
}

func (f *fakeSender) Send(msg *protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return errors.New("send failed")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) received() []*protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Message(nil), f.msgs...)
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestRegistryRegisterAndUnregister(t *testing.T) {
	r := NewRegistry()
	alice, bob := NewConnID(), NewConnID()

	if err := r.Register(alice, "alice", &fakeSender{}); err != nil {
		t.Fatalf("Register alice: %v", err)
	}
	if err := r.Register(bob, "bob", &fakeSender{}); err != nil {
		t.Fatalf("Register bob: %v", err)
	}
	if diff := cmp.Diff([]string{"alice", "bob"}, r.Usernames()); diff != "" {
		t.Fatalf("Usernames mismatch (-want +got):\n%s", diff)
	}

	name, ok := r.Unregister(alice)
	if !ok || name != "alice" {
		t.Fatalf("Unregister: got (%q, %v), want (alice, true)", name, ok)
	}
	if _, ok := r.Unregister(alice); ok {
		t.Fatal("second Unregister reported a removal")
	}
	if _, ok := r.Lookup("alice"); ok {
		t.Fatal("alice still online after Unregister")
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("Count: got %d, want 1", got)
	}
}

func TestRegistryRejectsDuplicateUsername(t *testing.T) {
	r := NewRegistry()
	first, second := NewConnID(), NewConnID()

	if err := r.Register(first, "alice", &fakeSender{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(second, "alice", &fakeSender{}); !errors.Is(err, ErrAlreadyOnline) {
		t.Fatalf("duplicate Register: got %v, want ErrAlreadyOnline", err)
	}
	if _, ok := r.Username(second); ok {
		t.Fatal("rejected connection was recorded")
	}

	// A stale unregister from the rejected connection must not remove the
	// live session.
	r.Unregister(second)
	if _, ok := r.Lookup("alice"); !ok {
		t.Fatal("alice removed by unrelated connection")
	}
}

func TestRegistryUsernameFreedAfterUnregister(t *testing.T) {
	r := NewRegistry()
	first, second := NewConnID(), NewConnID()

	if err := r.Register(first, "alice", &fakeSender{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Unregister(first)
	if err := r.Register(second, "alice", &fakeSender{}); err != nil {
		t.Fatalf("Register after Unregister: %v", err)
	}
}

func TestRegistryConcurrentSameUsername(t *testing.T) {
	r := NewRegistry()
	const attempts = 32

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if r.Register(NewConnID(), "alice", &fakeSender{}) == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("successful registrations: got %d, want 1", got)
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("Count: got %d, want 1", got)
	}
}

func TestRegistryEvictClosesSender(t *testing.T) {
	r := NewRegistry()
	id := NewConnID()
	out := &fakeSender{}
	if err := r.Register(id, "alice", out); err != nil {
		t.Fatalf("Register: %v", err)
	}

	name, ok := r.Evict(id)
	if !ok || name != "alice" {
		t.Fatalf("Evict: got (%q, %v), want (alice, true)", name, ok)
	}
	if !out.isClosed() {
		t.Fatal("evicted sender not closed")
	}
	if _, ok := r.Evict(id); ok {
		t.Fatal("second Evict reported a removal")
	}
}

func TestRegistryRecipientsExcludes(t *testing.T) {
	r := NewRegistry()
	alice, bob, carol := NewConnID(), NewConnID(), NewConnID()
	for id, name := range map[ConnID]string{alice: "alice", bob: "bob", carol: "carol"} {
		if err := r.Register(id, name, &fakeSender{}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}

	got := map[string]bool{}
	for _, rc := range r.Recipients(bob) {
		got[rc.Username] = true
	}
	if diff := cmp.Diff(map[string]bool{"alice": true, "carol": true}, got); diff != "" {
		t.Fatalf("Recipients mismatch (-want +got):\n%s", diff)
	}
}
