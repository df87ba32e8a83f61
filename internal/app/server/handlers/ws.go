package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"chatgate/internal/app/server/ws"
	"chatgate/internal/config"
	"chatgate/pkg/middleware"
)

// WSHandler upgrades HTTP requests and hands the socket to a session. The
// request arrives unauthenticated; the session's first-frame handshake is
// the only authentication surface for WebSocket clients.
type WSHandler struct {
	tokens  ws.TokenVerifier
	hub     ws.Hub
	handler ws.FrameHandler
	cfg     config.GatewayConfig
}

func NewWSHandler(tokens ws.TokenVerifier, hub ws.Hub, handler ws.FrameHandler, cfg config.GatewayConfig) *WSHandler {
	return &WSHandler{
		tokens:  tokens,
		hub:     hub,
		handler: handler,
		cfg:     cfg,
	}
}

func (h *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log, _ := r.Context().Value(middleware.LoggerKey).(*slog.Logger)
	if log == nil {
		log = slog.Default()
	}
	span := trace.SpanFromContext(r.Context())

	var upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // tighten later
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade - failed", "err", err)
		return
	}

	// The session outlives the HTTP request but keeps its trace.
	sessionCtx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(sessionCtx)
	defer cancel()
	conn.SetCloseHandler(func(code int, text string) error {
		cancel()
		return nil
	})

	sock := ws.NewConn(ctx, conn, h.cfg.ReadLimit, h.cfg.WriteTimeout)
	defer sock.Close()

	log.InfoContext(r.Context(), "ws handler - connection accepted", "remote_addr", r.RemoteAddr,
		"trace_valid", span.SpanContext().IsValid())

	session := ws.NewSession(log, sock, h.tokens, h.hub, h.handler, ws.Config{
		AuthTimeout:  h.cfg.AuthTimeout,
		PingInterval: h.cfg.PingInterval,
		SendBuffer:   h.cfg.SendBuffer,
	})
	session.Run(ctx)
}
