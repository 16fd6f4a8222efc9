// Package server implements the relaychat server: the TCP listener, the
// per-connection protocol handler, the shared session registry and the
// broadcaster.
package server

import (
	"context"
	"net"
	"sync"

	"github.com/NicolasHaas/relaychat/pkg/datastore"
)

// Dependencies holds external dependencies for the server.
type Dependencies struct {
	Store datastore.CredentialStore
}

// Server is the main relaychat server.
type Server struct {
	cfg         Config
	registry    *Registry
	broadcaster *Broadcaster
	metrics     *Metrics
	store       datastore.CredentialStore
	listener    net.Listener

	connsMu sync.Mutex
	conns   map[ConnID]net.Conn // every open connection, authenticated or not
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	metrics := NewMetrics()
	registry := NewRegistry()
	return &Server{
		cfg:         cfg,
		registry:    registry,
		broadcaster: NewBroadcaster(registry, metrics),
		metrics:     metrics,
		store:       deps.Store,
		conns:       make(map[ConnID]net.Conn),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Broadcaster returns the broadcaster.
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) trackConn(id ConnID, conn net.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[id] = conn
	return true
}

func (s *Server) untrackConn(id ConnID) {
	s.connsMu.Lock()
	delete(s.conns, id)
	s.connsMu.Unlock()
}

// closeAllConns closes every open connection, unblocking their reads.
func (s *Server) closeAllConns() {
	s.connsMu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
