package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"unicode"

	"github.com/NicolasHaas/relaychat/pkg/model"
	"github.com/NicolasHaas/relaychat/pkg/protocol"
)

type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateUnauthenticated:
		return "unauthenticated"
	case stateAuthenticated:
		return "authenticated"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Response texts sent to clients.
const (
	msgRegistered      = "registration successful, please log in"
	msgUsernameTaken   = "username taken"
	msgInvalidLogin    = "invalid username or password"
	msgAlreadyOnline   = "already online"
	msgInternalError   = "internal error"
	msgMalformedFrame  = "malformed frame"
	msgFrameTooLarge   = "frame too large"
	msgAlreadyLoggedIn = "already logged in"
	msgNotLoggedIn     = "log in first"
	msgUnknownType     = "unknown message type"
	noticeConnected    = "connected"
	noticeDisconnected = "disconnected"
)

// connHandler runs the protocol state machine of one connection. Only the
// goroutine running serveConn touches its fields.
type connHandler struct {
	srv      *Server
	id       ConnID
	remote   string
	out      *Outbound
	dec      *protocol.Decoder
	state    connState
	username string

	// announced is set once "<name> connected" went out; only then does the
	// finalizer announce the departure.
	announced bool
}

// serveConn handles a single connection lifecycle. All cleanup happens in the
// deferred finalizer, whichever way the loop ends.
func (s *Server) serveConn(id ConnID, conn net.Conn) {
	h := &connHandler{
		srv:    s,
		id:     id,
		remote: conn.RemoteAddr().String(),
		out:    NewOutbound(conn, s.cfg.WriteTimeout),
		dec:    protocol.NewDecoderSize(conn, s.cfg.MaxFrameSize),
		state:  stateUnauthenticated,
	}

	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	slog.Debug("new connection", "remote", h.remote, "conn", id)

	defer h.close()

	for h.state != stateClosed {
		msg, err := h.dec.Decode()
		if err != nil {
			h.readFailed(err)
			return
		}
		h.dispatch(msg)
	}
}

// close is the single exit path: announce departure if logged in, drop the
// session, release the socket. It also contains panics from the loop.
func (h *connHandler) close() {
	if r := recover(); r != nil {
		slog.Error("connection handler panic", "conn", h.id, "user", h.username, "panic", r, "stack", string(debug.Stack()))
	}

	if h.announced {
		h.srv.broadcaster.Notice(h.username+" "+noticeDisconnected, h.id)
	}
	h.srv.registry.Unregister(h.id)
	_ = h.out.Close()
	h.srv.untrackConn(h.id)
	h.state = stateClosed

	h.srv.metrics.ActiveConnections.Add(-1)
	h.srv.metrics.TotalDisconnects.Add(1)
	if h.username != "" {
		slog.Info("client disconnected", "user", h.username, "conn", h.id)
	} else {
		slog.Debug("connection closed", "remote", h.remote, "conn", h.id)
	}
}

func (h *connHandler) readFailed(err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return
	case errors.Is(err, protocol.ErrMalformedFrame):
		h.srv.metrics.ProtocolErrors.Add(1)
		slog.Warn("malformed frame", "remote", h.remote, "user", h.username, "err", err)
		h.reply(protocol.Error(msgMalformedFrame))
	case errors.Is(err, protocol.ErrFrameTooLarge):
		h.srv.metrics.ProtocolErrors.Add(1)
		slog.Warn("frame too large", "remote", h.remote, "user", h.username, "limit", h.srv.cfg.MaxFrameSize)
		h.reply(protocol.Error(msgFrameTooLarge))
	default:
		slog.Debug("read error", "remote", h.remote, "user", h.username, "err", err)
	}
}

// reply sends a frame to this connection only. A write failure closes the
// socket so the next read ends the loop.
func (h *connHandler) reply(msg *protocol.Message) {
	if err := h.out.Send(msg); err != nil {
		slog.Debug("reply failed", "remote", h.remote, "user", h.username, "err", err)
		_ = h.out.Close()
	}
}

func (h *connHandler) dispatch(msg *protocol.Message) {
	if msg.Type == protocol.TypeExit {
		slog.Debug("client exit", "remote", h.remote, "user", h.username, "state", h.state)
		h.state = stateClosed
		return
	}

	switch h.state {
	case stateUnauthenticated:
		switch msg.Type {
		case protocol.TypeRegister:
			h.handleRegister(msg)
		case protocol.TypeLogin:
			h.handleLogin(msg)
		case protocol.TypeChat, protocol.TypeGetOnline:
			h.protocolError(msg.Type, msgNotLoggedIn)
		default:
			h.protocolError(msg.Type, msgUnknownType)
		}

	case stateAuthenticated:
		switch msg.Type {
		case protocol.TypeChat:
			h.handleChat(msg)
		case protocol.TypeGetOnline:
			h.reply(protocol.OnlineUsers(h.srv.registry.Usernames()))
		case protocol.TypeRegister, protocol.TypeLogin:
			h.protocolError(msg.Type, msgAlreadyLoggedIn)
		default:
			h.protocolError(msg.Type, msgUnknownType)
		}
	}
}

func (h *connHandler) protocolError(t protocol.Type, reason string) {
	h.srv.metrics.ProtocolErrors.Add(1)
	h.reply(protocol.Error(fmt.Sprintf("%s: %s", reason, t)))
}

func (h *connHandler) handleRegister(msg *protocol.Message) {
	username := strings.TrimSpace(msg.Username)
	password := strings.TrimSpace(msg.Password)

	fail := func(reason string) {
		h.srv.metrics.FailedRegisters.Add(1)
		h.reply(protocol.Failure(protocol.TypeRegisterResult, reason))
	}

	if username == "" || password == "" {
		fail(model.ErrCredentialsRequired.Error())
		return
	}
	if err := model.ValidateUsername(username); err != nil {
		fail(err.Error())
		return
	}
	if err := model.ValidatePassword(password); err != nil {
		fail(err.Error())
		return
	}

	ok, err := h.srv.store.Register(username, password)
	if err != nil {
		slog.Error("register failed", "user", username, "err", err)
		fail(msgInternalError)
		return
	}
	if !ok {
		fail(msgUsernameTaken)
		return
	}

	h.srv.metrics.Registrations.Add(1)
	slog.Info("user registered", "user", username, "remote", h.remote)
	h.reply(protocol.Success(protocol.TypeRegisterResult, msgRegistered))
}

func (h *connHandler) handleLogin(msg *protocol.Message) {
	username := strings.TrimSpace(msg.Username)
	password := strings.TrimSpace(msg.Password)

	fail := func(reason string) {
		h.srv.metrics.FailedLogins.Add(1)
		h.reply(protocol.Failure(protocol.TypeLoginResult, reason))
	}

	if username == "" || password == "" {
		fail(model.ErrCredentialsRequired.Error())
		return
	}

	ok, err := h.srv.store.Authenticate(username, password)
	if err != nil {
		slog.Error("authenticate failed", "user", username, "err", err)
		fail(msgInternalError)
		return
	}
	if !ok {
		slog.Debug("invalid credentials", "user", username, "remote", h.remote)
		fail(msgInvalidLogin)
		return
	}

	// Register and write the acknowledgement under the outbound lock, so a
	// broadcast racing with this login cannot reach the client before its
	// login_result.
	err = h.out.Exclusive(func(send func(*protocol.Message) error) error {
		if err := h.srv.registry.Register(h.id, username, h.out); err != nil {
			return err
		}
		h.username = username
		h.state = stateAuthenticated
		h.srv.metrics.SuccessfulLogins.Add(1)
		if err := send(protocol.Success(protocol.TypeLoginResult, "welcome, "+username+"!")); err != nil {
			return err
		}
		return send(protocol.OnlineUsers(h.srv.registry.Usernames()))
	})
	if errors.Is(err, ErrAlreadyOnline) {
		fail(msgAlreadyOnline)
		return
	}
	if err != nil {
		// Write failure after registering: the finalizer unregisters without
		// announcing, since nobody saw the login.
		slog.Debug("login acknowledgement failed", "user", username, "err", err)
		_ = h.out.Close()
		return
	}

	slog.Info("client logged in", "user", username, "remote", h.remote, "conn", h.id)
	h.announced = true
	h.srv.broadcaster.Notice(username+" "+noticeConnected, h.id)
}

func (h *connHandler) handleChat(msg *protocol.Message) {
	text := sanitizeText(strings.TrimSpace(msg.Text))
	if text == "" {
		return
	}
	h.srv.metrics.ChatMessagesSent.Add(1)
	slog.Debug("chat", "user", h.username, "len", len(text))
	h.srv.broadcaster.Broadcast(h.username, text, h.id)
}

// sanitizeText strips control characters from user-supplied text so relayed
// messages cannot carry terminal escape sequences.
func sanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
