package server

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/NicolasHaas/relaychat/pkg/protocol"
)

// ErrAlreadyOnline is returned by Registry.Register when the username already
// has a live session.
var ErrAlreadyOnline = errors.New("already online")

// ConnID identifies one accepted connection for its whole lifetime.
type ConnID = uuid.UUID

// NewConnID returns a fresh random connection identity.
func NewConnID() ConnID {
	return uuid.New()
}

// Sender is the outbound side of a session. *Outbound is the production
// implementation; tests substitute their own.
type Sender interface {
	Send(msg *protocol.Message) error
	Close() error
}

// Recipient is one entry of a broadcast snapshot.
type Recipient struct {
	ID       ConnID
	Username string
	Out      Sender
}

type entry struct {
	id  ConnID
	out Sender
}

// Registry is the set of authenticated sessions shared by all connection
// handlers. Both mappings are updated under one lock, so readers never see a
// username in one map but not the other.
type Registry struct {
	mu     sync.RWMutex
	byConn map[ConnID]string // connection -> username
	byName map[string]entry  // username -> connection and outbound handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[ConnID]string),
		byName: make(map[string]entry),
	}
}

// Register binds username to the connection. The check for an existing
// session and the insert happen under the same lock, so of two racing logins
// for one username exactly one succeeds.
func (r *Registry) Register(id ConnID, username string, out Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[username]; ok {
		return ErrAlreadyOnline
	}
	if _, ok := r.byConn[id]; ok {
		return ErrAlreadyOnline
	}
	r.byConn[id] = username
	r.byName[username] = entry{id: id, out: out}
	return nil
}

// Unregister removes the session bound to id. It is a no-op for unknown
// connections and reports whether anything was removed.
func (r *Registry) Unregister(id ConnID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregisterLocked(id)
}

func (r *Registry) unregisterLocked(id ConnID) (string, bool) {
	username, ok := r.byConn[id]
	if !ok {
		return "", false
	}
	delete(r.byConn, id)
	if e, ok := r.byName[username]; ok && e.id == id {
		delete(r.byName, username)
	}
	return username, true
}

// Evict unregisters id and closes its outbound handle. Closing the handle
// unblocks the owning handler's read, which then runs its normal cleanup.
func (r *Registry) Evict(id ConnID) (string, bool) {
	r.mu.Lock()
	var out Sender
	if username, ok := r.byConn[id]; ok {
		out = r.byName[username].out
	}
	username, ok := r.unregisterLocked(id)
	r.mu.Unlock()

	if out != nil {
		_ = out.Close()
	}
	return username, ok
}

// Usernames returns a sorted snapshot of online usernames.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Lookup returns the outbound handle of an online user.
func (r *Registry) Lookup(username string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[username]
	if !ok {
		return nil, false
	}
	return e.out, true
}

// Username returns the user bound to id, if any.
func (r *Registry) Username(id ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byConn[id]
	return name, ok
}

// Recipients returns a consistent snapshot of every session except exclude.
func (r *Registry) Recipients(exclude ConnID) []Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Recipient, 0, len(r.byName))
	for name, e := range r.byName {
		if e.id == exclude {
			continue
		}
		result = append(result, Recipient{ID: e.id, Username: name, Out: e.out})
	}
	return result
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
