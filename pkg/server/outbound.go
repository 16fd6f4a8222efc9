package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/NicolasHaas/relaychat/pkg/protocol"
)

// Outbound is the write side of one connection. Writes from the owning
// handler and from broadcasters are serialised so frames never interleave.
type Outbound struct {
	mu        sync.Mutex
	conn      net.Conn
	enc       *protocol.Encoder
	timeout   time.Duration
	closeOnce sync.Once
	closeErr  error
}

// NewOutbound wraps conn. A zero timeout disables write deadlines.
func NewOutbound(conn net.Conn, timeout time.Duration) *Outbound {
	return &Outbound{
		conn:    conn,
		enc:     protocol.NewEncoder(conn),
		timeout: timeout,
	}
}

// Send writes one frame.
func (o *Outbound) Send(msg *protocol.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sendLocked(msg)
}

// Exclusive runs fn while holding the write lock. Frames written through the
// send callback are not interleaved with any other Send on this connection.
func (o *Outbound) Exclusive(fn func(send func(*protocol.Message) error) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fn(o.sendLocked)
}

func (o *Outbound) sendLocked(msg *protocol.Message) error {
	if o.timeout > 0 {
		if err := o.conn.SetWriteDeadline(time.Now().Add(o.timeout)); err != nil {
			return fmt.Errorf("server: set write deadline: %w", err)
		}
	}
	return o.enc.Encode(msg)
}

// Close closes the underlying connection. Safe to call more than once.
func (o *Outbound) Close() error {
	o.closeOnce.Do(func() {
		o.closeErr = o.conn.Close()
	})
	return o.closeErr
}
