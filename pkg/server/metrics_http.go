package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newMetricsRegistry exposes the atomic counters and the live session count
// as Prometheus collectors on a private registry.
func (s *Server) newMetricsRegistry() *prometheus.Registry {
	m := s.metrics
	reg := prometheus.NewRegistry()

	counter := func(name, help string, v func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(v()) })
	}
	gauge := func(name, help string, v func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, v)
	}

	reg.MustRegister(
		gauge("relaychat_uptime_seconds", "Server uptime in seconds.",
			func() float64 { return time.Since(m.startTime).Seconds() }),
		gauge("relaychat_connections_active", "Current open TCP connections.",
			func() float64 { return float64(m.ActiveConnections.Load()) }),
		gauge("relaychat_sessions_online", "Current authenticated sessions.",
			func() float64 { return float64(s.registry.Count()) }),
		counter("relaychat_connections_total", "Lifetime TCP connections accepted.", m.TotalConnections.Load),
		counter("relaychat_disconnects_total", "Total connections closed.", m.TotalDisconnects.Load),
		counter("relaychat_registrations_total", "Successful registrations.", m.Registrations.Load),
		counter("relaychat_registrations_failed_total", "Rejected registrations.", m.FailedRegisters.Load),
		counter("relaychat_logins_total", "Successful logins.", m.SuccessfulLogins.Load),
		counter("relaychat_logins_failed_total", "Rejected logins.", m.FailedLogins.Load),
		counter("relaychat_protocol_errors_total", "Unknown message types and malformed frames.", m.ProtocolErrors.Load),
		counter("relaychat_chat_messages_total", "Chat messages accepted for relay.", m.ChatMessagesSent.Load),
		counter("relaychat_deliveries_total", "Frames delivered by the broadcaster.", m.Deliveries.Load),
		counter("relaychat_evictions_total", "Sessions evicted after a failed delivery.", m.Evictions.Load),
	)
	return reg
}

// metricsHandler serves /metrics and /healthz.
func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.newMetricsRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// StartMetricsHTTP starts the metrics HTTP server in the background. It
// shuts down when the server context is cancelled. An empty
// Config.MetricsAddr disables it.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.metricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}
