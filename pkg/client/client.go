// Package client implements the relaychat client connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/NicolasHaas/relaychat/pkg/protocol"
)

const (
	dialTimeout        = 5 * time.Second
	dialInitialBackoff = 200 * time.Millisecond
	dialMaxBackoff     = 5 * time.Second
)

// ErrUnexpectedReply is returned when the server answers a request with a
// frame of the wrong type.
var ErrUnexpectedReply = errors.New("client: unexpected reply")

// EventHandler is a callback for frames pushed by the server.
type EventHandler func(msg *protocol.Message)

// Client is one connection to a relaychat server. Sends are safe for
// concurrent use; receiving is done either synchronously with Receive or
// in the background with StartReceiving, never both.
type Client struct {
	conn net.Conn
	dec  *protocol.Decoder

	mu  sync.Mutex
	enc *protocol.Encoder

	done      chan struct{}
	closeOnce sync.Once
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{
		conn: conn,
		dec:  protocol.NewDecoder(conn),
		enc:  protocol.NewEncoder(conn),
		done: make(chan struct{}),
	}
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	return New(conn), nil
}

// DialWithRetry dials addr with exponential backoff, giving up after
// maxRetries failed attempts or when ctx is done.
func DialWithRetry(ctx context.Context, addr string, maxRetries uint64) (*Client, error) {
	var c *Client
	operation := func() error {
		var err error
		c, err = Dial(ctx, addr)
		return err
	}

	backoffStrategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(dialInitialBackoff),
				backoff.WithMaxInterval(dialMaxBackoff),
			),
			maxRetries,
		),
		ctx,
	)

	err := backoff.RetryNotify(operation, backoffStrategy, func(err error, d time.Duration) {
		slog.Warn("server unreachable, retrying", "addr", addr, "err", err, "next", d)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Send writes one frame to the server.
func (c *Client) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(msg); err != nil {
		return fmt.Errorf("client: send %s: %w", msg.Type, err)
	}
	return nil
}

// Receive blocks until the next frame arrives.
func (c *Client) Receive() (*protocol.Message, error) {
	return c.dec.Decode()
}

// ReceiveTimeout is Receive with a read deadline. On timeout the error
// satisfies errors.Is(err, os.ErrDeadlineExceeded).
func (c *Client) ReceiveTimeout(d time.Duration) (*protocol.Message, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return nil, fmt.Errorf("client: set read deadline: %w", err)
	}
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	return c.dec.Decode()
}

// Register asks the server to create an account and returns its
// register_result. A rejected registration is not an error; check
// Succeeded on the reply.
func (c *Client) Register(username, password string) (*protocol.Message, error) {
	return c.request(protocol.Register(username, password), protocol.TypeRegisterResult)
}

// Login authenticates and returns the login_result. On success the server
// follows it with an online_users frame, which the caller reads next.
func (c *Client) Login(username, password string) (*protocol.Message, error) {
	return c.request(protocol.Login(username, password), protocol.TypeLoginResult)
}

func (c *Client) request(msg *protocol.Message, want protocol.Type) (*protocol.Message, error) {
	if err := c.Send(msg); err != nil {
		return nil, err
	}
	reply, err := c.Receive()
	if err != nil {
		return nil, fmt.Errorf("client: read %s: %w", want, err)
	}
	switch reply.Type {
	case want:
		return reply, nil
	case protocol.TypeError:
		return nil, fmt.Errorf("client: server error: %s", reply.Reason())
	default:
		return nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedReply, reply.Type, want)
	}
}

// Chat sends a chat line to everyone else online.
func (c *Client) Chat(text string) error {
	return c.Send(protocol.Chat(text))
}

// RequestOnline asks for the online user list. The answer arrives as an
// online_users frame.
func (c *Client) RequestOnline() error {
	return c.Send(protocol.GetOnline())
}

// Exit announces departure and closes the connection.
func (c *Client) Exit() error {
	err := c.Send(protocol.Exit())
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// StartReceiving starts a goroutine that reads incoming frames and passes
// them to handler until the connection ends. Done is closed afterwards.
func (c *Client) StartReceiving(handler EventHandler) {
	go func() {
		defer close(c.done)
		for {
			msg, err := c.dec.Decode()
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					slog.Debug("connection closed")
					return
				}
				slog.Error("read error", "err", err)
				return
			}
			handler(msg)
		}
	}()
}

// Done returns a channel that's closed when the receive loop ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}
