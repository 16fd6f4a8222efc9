package server

import (
	"log/slog"
	"time"

	"github.com/NicolasHaas/relaychat/pkg/model"
	"github.com/NicolasHaas/relaychat/pkg/protocol"
)

// Broadcaster fans chat frames out to registered sessions and evicts the
// ones that cannot be reached.
type Broadcaster struct {
	registry *Registry
	metrics  *Metrics
	now      func() time.Time
}

// NewBroadcaster creates a broadcaster over registry. metrics may be nil.
func NewBroadcaster(registry *Registry, metrics *Metrics) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Broadcast delivers a chat frame from sender to every session except
// exclude (use uuid.Nil to exclude nobody). The timestamp is taken once per
// call. Recipients whose send fails are evicted after the fan-out, without a
// departure notice of their own; their handlers announce it on the way out.
// It returns the number of successful deliveries.
func (b *Broadcaster) Broadcast(sender, text string, exclude ConnID) int {
	msg := model.ChatMessage{From: sender, Text: text, Timestamp: b.now()}
	frame := protocol.ChatEvent(msg.From, msg.Text, msg.Stamp())

	recipients := b.registry.Recipients(exclude)

	var failed []Recipient
	delivered := 0
	for _, rc := range recipients {
		if err := rc.Out.Send(frame); err != nil {
			slog.Warn("broadcast delivery failed", "user", rc.Username, "conn", rc.ID, "err", err)
			failed = append(failed, rc)
			continue
		}
		delivered++
	}

	for _, rc := range failed {
		if _, ok := b.registry.Evict(rc.ID); ok {
			slog.Info("evicted unreachable session", "user", rc.Username, "conn", rc.ID)
			if b.metrics != nil {
				b.metrics.Evictions.Add(1)
			}
		}
	}

	if b.metrics != nil {
		b.metrics.Deliveries.Add(int64(delivered))
	}
	return delivered
}

// Notice broadcasts a system message.
func (b *Broadcaster) Notice(text string, exclude ConnID) int {
	return b.Broadcast(model.SystemSender, text, exclude)
}
