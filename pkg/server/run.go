package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/NicolasHaas/relaychat/pkg/version"
)

// Start binds the TCP listener and starts accepting connections in the
// background. A bind failure is returned and is fatal for the caller.
func (s *Server) Start() error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	slog.Info("chat server listening", "addr", ln.Addr().String(), "version", version.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accept error", "err", err)
			continue
		}

		id := NewConnID()
		if !s.trackConn(id, conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(id, conn)
		}()
	}
}

// Run starts the server and blocks until a shutdown signal.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	s.StartMetricsHTTP()
	s.metrics.StartPeriodicLog(s.cfg.MetricsLogInterval, s.registry.Count, s.ctx.Done())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-s.ctx.Done():
	}

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown stops accepting, closes every connection and waits for all
// connection handlers to finish their cleanup.
func (s *Server) Shutdown() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.closeAllConns()
	s.wg.Wait()
}
