package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatgate/internal/app/server/handlers"
	"chatgate/internal/config"
	"chatgate/internal/core/contracts"
	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
	"chatgate/pkg/middleware"
)

type Server struct {
	mux      *http.ServeMux
	log      *slog.Logger
	addr     string
	registry contracts.Registry
	httpSrv  *http.Server

	wsHandler      *handlers.WSHandler
	messageHandler *handlers.MessageHandler
	groupHandler   *handlers.GroupHandler
	tokenSvc       *services.TokenService
}

func NewServer(
	log *slog.Logger,
	cfg config.Config,
	tokenSvc *services.TokenService,
	registry contracts.Registry,
	router *handlers.FrameRouter,
	messageHandler *handlers.MessageHandler,
	groupHandler *handlers.GroupHandler,
) *Server {
	s := &Server{
		mux:            http.NewServeMux(),
		log:            log,
		addr:           cfg.Service.Addr,
		registry:       registry,
		wsHandler:      handlers.NewWSHandler(tokenSvc, registry, router, *cfg.Gateway),
		messageHandler: messageHandler,
		groupHandler:   groupHandler,
		tokenSvc:       tokenSvc,
	}
	s.routes(cfg.Service.Name)
	return s
}

func (s *Server) routes(app string) {
	logging := middleware.RequestLogger(s.log)
	tracing := middleware.TracerMiddleware(app)
	auth := middleware.AuthMiddleware(s.tokenSvc)

	chain := func(h http.Handler) http.Handler {
		return logging(tracing(h))
	}
	protected := func(h http.Handler) http.Handler {
		return chain(auth(h))
	}

	// The WebSocket endpoint authenticates in-band with the first frame, so
	// it skips the auth middleware.
	s.mux.Handle("/ws", chain(http.HandlerFunc(s.wsHandler.Handler)))

	s.mux.Handle("POST /messages", protected(http.HandlerFunc(s.messageHandler.Send)))
	s.mux.Handle("POST /conversations/{conv_id}/participants/{user_id}/promote",
		protected(http.HandlerFunc(s.groupHandler.Promote)))
	s.mux.Handle("POST /conversations/{conv_id}/participants/{user_id}/demote",
		protected(http.HandlerFunc(s.groupHandler.Demote)))
	s.mux.Handle("DELETE /conversations/{conv_id}/participants/{user_id}",
		protected(http.HandlerFunc(s.groupHandler.Remove)))

	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.log.Info("server - starting", "addr", s.addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown notifies every live WebSocket client, closes their sockets, then
// drains the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	notify, _ := json.Marshal(domain.ShutdownFrame{Type: domain.TypeServerShutdown})
	s.registry.CloseAll(notify)
	s.log.InfoContext(ctx, "server - shutdown - clients notified")
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
