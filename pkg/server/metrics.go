package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime TCP connections accepted
	ActiveConnections atomic.Int64 // current open connections, authenticated or not
	TotalDisconnects  atomic.Int64 // connections closed for any reason

	// Auth counters
	Registrations    atomic.Int64
	FailedRegisters  atomic.Int64 // validation failures and duplicates
	SuccessfulLogins atomic.Int64
	FailedLogins     atomic.Int64 // bad credentials, validation, already online

	// Protocol errors: unknown types and malformed frames
	ProtocolErrors atomic.Int64

	// Chat counters
	ChatMessagesSent atomic.Int64 // chat messages accepted for relay
	Deliveries       atomic.Int64 // frames delivered by the broadcaster
	Evictions        atomic.Int64 // sessions evicted after a failed delivery
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	Registrations    int64 `json:"registrations"`
	FailedRegisters  int64 `json:"failed_registrations"`
	SuccessfulLogins int64 `json:"successful_logins"`
	FailedLogins     int64 `json:"failed_logins"`
	ProtocolErrors   int64 `json:"protocol_errors"`

	ChatMessagesSent int64 `json:"chat_messages_sent"`
	Deliveries       int64 `json:"deliveries"`
	Evictions        int64 `json:"evictions"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		Registrations:     m.Registrations.Load(),
		FailedRegisters:   m.FailedRegisters.Load(),
		SuccessfulLogins:  m.SuccessfulLogins.Load(),
		FailedLogins:      m.FailedLogins.Load(),
		ProtocolErrors:    m.ProtocolErrors.Load(),
		ChatMessagesSent:  m.ChatMessagesSent.Load(),
		Deliveries:        m.Deliveries.Load(),
		Evictions:         m.Evictions.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary(online int) {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"online", online,
		"total_connections", s.TotalConnections,
		"logins", s.SuccessfulLogins,
		"chat_msgs", s.ChatMessagesSent,
		"evictions", s.Evictions,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, online func() int, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary(online())
			}
		}
	}()
}
