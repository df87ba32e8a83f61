package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"chatgate/internal/app/dispatcher"
	"chatgate/internal/app/registry"
	"chatgate/internal/app/server"
	"chatgate/internal/app/server/handlers"
	"chatgate/internal/config"
	"chatgate/internal/core/services"
	"chatgate/internal/platform/breaker"
	"chatgate/internal/platform/logger"
	"chatgate/internal/platform/telemetry"
	natsPlugin "chatgate/internal/plugins/nats"
	"chatgate/internal/plugins/postgres"
	redisPlugin "chatgate/internal/plugins/redis"
)

// Breaker names, shared between registration and lookup.
const (
	breakerFanout = "fanout.publish"
	breakerEvents = "events.publish"
)

func main() {
	// Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg := config.Load()

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
	}
	defer func() {
		log.Info("flushing telemetry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	// Infra
	var pdb *sql.DB
	if pdb, err = postgres.New(ctx, *cfg.Postgres); err != nil {
		log.Error("postgres connection failed", "err", err)
		return
	}
	defer pdb.Close()
	log.Info("postgres connected")

	var rdb *goredis.Client
	if rdb, err = redisPlugin.NewRedisClient(ctx, *cfg.Redis); err != nil {
		log.Error("redis connection failed", "url", cfg.Redis.URL)
		return
	}
	defer rdb.Close()
	log.Info("redis connected")

	nc, err := natsPlugin.Connect(*cfg.Nats, log)
	if err != nil {
		log.Error("nats connection failed", "url", cfg.Nats.URL)
		return
	}
	defer nc.Close()
	if err := nc.EnsureStream(ctx, *cfg.Nats); err != nil {
		log.Error("jetstream stream setup failed", "stream", cfg.Nats.StreamName, "err", err)
		return
	}
	log.Info("nats connected", "stream", cfg.Nats.StreamName)

	// Adapters
	convRepo := postgres.NewConversationRepo(pdb)
	msgRepo := postgres.NewMessageRepo(pdb)
	txManager := postgres.NewTxManager(pdb)
	fanoutBus := redisPlugin.NewFanoutBus(log, rdb)
	convCache := redisPlugin.NewConversationCacheStore(log, rdb)
	idemStore := redisPlugin.NewIdempotencyStore(rdb)
	eventPub := natsPlugin.NewEventPublisher(nc, cfg.Nats.SubjectPrefix)

	// Breakers, one per protected call site, shared through the registry
	breakers := breaker.NewRegistry()
	breakers.Register(breaker.New(log, breaker.Settings{
		Name:             breakerFanout,
		Timeout:          cfg.Breaker.Fanout.Timeout,
		ResetTimeout:     cfg.Breaker.Fanout.ResetTimeout,
		Interval:         cfg.Breaker.Fanout.Interval,
		FailureThreshold: cfg.Breaker.Fanout.FailureThreshold,
		MinRequests:      cfg.Breaker.Fanout.MinRequests,
	}))
	breakers.Register(breaker.New(log, breaker.Settings{
		Name:             breakerEvents,
		Timeout:          cfg.Breaker.Events.Timeout,
		ResetTimeout:     cfg.Breaker.Events.ResetTimeout,
		Interval:         cfg.Breaker.Events.Interval,
		FailureThreshold: cfg.Breaker.Events.FailureThreshold,
		MinRequests:      cfg.Breaker.Events.MinRequests,
	}))

	// Core services
	hub := registry.NewRegistry(cfg.Gateway.MaxConnsPerUser)
	tokenSvc := services.NewTokenService(cfg.SecretToken)
	sendSvc := services.NewSendService(log, convRepo, msgRepo, convCache, fanoutBus, eventPub,
		breakers.Get(breakerFanout), breakers.Get(breakerEvents), txManager, services.Limits{
			MaxContentLength: cfg.Saga.MaxContentLength,
			MaxRecipients:    cfg.Saga.MaxRecipients,
		})
	receiptSvc := services.NewReceiptService(log, convRepo, msgRepo, fanoutBus, breakers.Get(breakerFanout), txManager)
	groupSvc := services.NewGroupService(log, convRepo, convCache, eventPub, breakers.Get(breakerEvents), txManager)
	idemSvc := services.NewIdempotencyService(log, idemStore, cfg.Saga.IdempotencyTTL)

	// Fan-out consumer
	disp := dispatcher.New(log, fanoutBus, hub, convCache, convRepo)
	go func() {
		if err := disp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("dispatcher stopped", "err", err)
			stop()
		}
	}()

	// Server
	router := handlers.NewFrameRouter(sendSvc, receiptSvc)
	msgHandler := handlers.NewMessageHandler(sendSvc, idemSvc)
	groupHandler := handlers.NewGroupHandler(groupSvc)
	srv := server.NewServer(log, *cfg, tokenSvc, hub, router, msgHandler, groupHandler)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "err", err)
	}
	log.Info("shutdown complete")
}
