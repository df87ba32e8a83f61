package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chatgate/internal/core/contracts"
	"chatgate/internal/core/domain"
)

// socket is the transport surface the session drives. *Conn implements it;
// tests substitute a scripted fake.
type socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Ping() error
	CloseWithCode(code int, reason string)
	Close()
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
}

// State is the per-connection handshake state.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateClosed
)

// TokenVerifier resolves a bearer token to a typed user identity. The core
// never parses transport-level encoding itself.
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

// Hub is the slice of the connection registry the session needs.
type Hub interface {
	Register(c contracts.Client) error
	Unregister(c contracts.Client)
}

// FrameHandler receives authenticated inbound frames.
type FrameHandler interface {
	HandleSend(ctx context.Context, senderID string, f domain.SendMessageFrame) (*domain.Message, error)
	HandleTyping(ctx context.Context, senderID string, f domain.TypingFrame) error
	HandleDelivered(ctx context.Context, userID string, f domain.DeliveredFrame) error
	HandleRead(ctx context.Context, userID string, f domain.ReadFrame) error
}

type Config struct {
	AuthTimeout  time.Duration
	PingInterval time.Duration
	SendBuffer   int
}

// Session runs one connection through the handshake state machine and then
// routes its frames until the socket dies.
type Session struct {
	log     *slog.Logger
	sock    socket
	tokens  TokenVerifier
	hub     Hub
	handler FrameHandler
	cfg     Config

	state  atomic.Int32
	alive  atomic.Bool
	client *Client
}

func NewSession(log *slog.Logger, sock socket, tokens TokenVerifier, hub Hub, handler FrameHandler, cfg Config) *Session {
	return &Session{
		log:     log,
		sock:    sock,
		tokens:  tokens,
		hub:     hub,
		handler: handler,
		cfg:     cfg,
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run blocks until the connection closes. The caller owns the read
// goroutine; writes go through the client's pump.
func (s *Session) Run(ctx context.Context) {
	userID, ok := s.authenticate(ctx)
	if !ok {
		return
	}

	client := NewClient(ctx, s.sock, userID, s.cfg.SendBuffer)
	if err := s.hub.Register(client); err != nil {
		s.setState(StateClosed)
		s.log.WarnContext(ctx, "session - register - connection limit reached", "user_id", userID)
		s.sock.CloseWithCode(CloseConnectionLimit, "connection limit reached")
		client.Close()
		return
	}
	s.client = client
	s.setState(StateAuthenticated)
	defer func() {
		s.hub.Unregister(client)
		client.Close()
		s.setState(StateClosed)
	}()

	ack, _ := json.Marshal(domain.AuthSuccessFrame{Type: domain.TypeAuthSuccess, UserID: userID})
	_ = client.Send(ctx, ack)
	s.log.InfoContext(ctx, "session - handshake - authenticated", "user_id", userID)

	// Liveness: a connection that failed to answer the previous probe is
	// forcibly terminated on the next tick.
	s.alive.Store(true)
	s.sock.SetPongHandler(func(string) error {
		s.alive.Store(true)
		return s.sock.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	})
	_ = s.sock.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go s.pingLoop(pingCtx, userID)

	s.readLoop(ctx, userID)
}

// authenticate enforces the handshake: the first frame must be auth, within
// the configured timeout, carrying a verifiable token.
func (s *Session) authenticate(ctx context.Context) (string, bool) {
	_ = s.sock.SetReadDeadline(time.Now().Add(s.cfg.AuthTimeout))
	data, err := s.sock.ReadMessage()
	if err != nil {
		s.setState(StateClosed)
		s.sock.CloseWithCode(CloseAuthTimeout, "authentication frame not received")
		return "", false
	}

	var frame domain.Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type != domain.TypeAuth {
		s.setState(StateClosed)
		s.log.WarnContext(ctx, "session - handshake - first frame was not auth")
		s.sock.CloseWithCode(websocket.ClosePolicyViolation, "first frame must be auth")
		return "", false
	}

	s.setState(StateAuthenticating)
	var auth domain.AuthFrame
	_ = json.Unmarshal(frame.Data, &auth)
	userID, err := s.tokens.Verify(auth.Token)
	if err != nil {
		s.setState(StateClosed)
		s.log.WarnContext(ctx, "session - handshake - token rejected", "err", err)
		reply, _ := json.Marshal(domain.AuthErrorFrame{Type: domain.TypeAuthError, Reason: "invalid token"})
		_ = s.sock.WriteMessage(reply)
		s.sock.CloseWithCode(CloseUnauthorized, "invalid token")
		return "", false
	}
	return userID, true
}

func (s *Session) readLoop(ctx context.Context, userID string) {
	for {
		data, err := s.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.InfoContext(ctx, "session - read loop - connection lost", "user_id", userID, "err", err)
			}
			return
		}
		if len(data) == 0 {
			continue
		}
		if !s.dispatch(ctx, userID, data) {
			return
		}
	}
}

// dispatch routes one frame. Returns false when the connection must close.
func (s *Session) dispatch(ctx context.Context, userID string, data []byte) bool {
	var frame domain.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.sock.CloseWithCode(websocket.ClosePolicyViolation, "malformed frame")
		return false
	}

	switch frame.Type {
	case domain.TypeSendMessage:
		var f domain.SendMessageFrame
		if err := json.Unmarshal(frame.Data, &f); err != nil {
			s.sock.CloseWithCode(websocket.ClosePolicyViolation, "malformed frame")
			return false
		}
		go s.handleSend(ctx, userID, f)
	case domain.TypeTyping:
		var f domain.TypingFrame
		if err := json.Unmarshal(frame.Data, &f); err != nil {
			return true
		}
		go func() { _ = s.handler.HandleTyping(ctx, userID, f) }()
	case domain.TypeMessageDelivered:
		var f domain.DeliveredFrame
		if err := json.Unmarshal(frame.Data, &f); err != nil {
			return true
		}
		go func() { _ = s.handler.HandleDelivered(ctx, userID, f) }()
	case domain.TypeMessageRead:
		var f domain.ReadFrame
		if err := json.Unmarshal(frame.Data, &f); err != nil {
			return true
		}
		go func() { _ = s.handler.HandleRead(ctx, userID, f) }()
	default:
		s.sendError(ctx, "unknown_frame", "unsupported frame type")
	}
	return true
}

func (s *Session) handleSend(ctx context.Context, userID string, f domain.SendMessageFrame) {
	msg, err := s.handler.HandleSend(ctx, userID, f)
	if err != nil {
		s.sendError(ctx, errorCode(err), err.Error())
		return
	}
	ack, _ := json.Marshal(domain.NewMessageView(domain.TypeMessageSent, msg))
	_ = s.client.Send(ctx, ack)
}

func (s *Session) sendError(ctx context.Context, code, message string) {
	reply, _ := json.Marshal(domain.ErrorFrame{Type: domain.TypeError, Code: code, Message: message})
	_ = s.client.Send(ctx, reply)
}

func (s *Session) pingLoop(ctx context.Context, userID string) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.alive.Swap(false) {
				s.log.WarnContext(ctx, "session - liveness - probe unanswered, terminating", "user_id", userID)
				s.client.Close()
				return
			}
			if err := s.sock.Ping(); err != nil {
				s.client.Close()
				return
			}
		}
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotParticipant):
		return "forbidden"
	case errors.Is(err, domain.ErrConversationNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrNoRecipients),
		errors.Is(err, domain.ErrSelfOnlyRecipients),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrContentTooLong),
		errors.Is(err, domain.ErrTooManyRecipients):
		return "invalid_request"
	default:
		return "internal"
	}
}
