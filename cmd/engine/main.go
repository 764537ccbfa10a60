package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"bayou/internal/auth"
	"bayou/internal/authority"
	"bayou/internal/config"
	"bayou/internal/engine"
	"bayou/internal/handlers"
	"bayou/internal/middleware"
	"bayou/internal/store"
	enginesync "bayou/internal/sync"
	"bayou/internal/trigger"
	"bayou/internal/websocket"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := initLogger(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	log := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Error("store init failed", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			log.Warn("store close", "error", err)
		}
	}()
	log.Info("store ready", "backend", cfg.Store.Backend)

	// Trigger platform: every store write flows through the registry.
	registry := trigger.NewRegistry(log)
	if sinkable, ok := st.(interface{ SetEventSink(store.EventSink) }); ok {
		sinkable.SetEventSink(registry.Sink())
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	cache := enginesync.NewProfileCache(rdb, st, cfg.Cache.TTL, log)
	controller := enginesync.NewController(st, cache, log)

	issuer := auth.NewLocalIssuer(cfg.Engine.JWTSecret)

	var rootUID uuid.UUID
	if cfg.Engine.RootAdminUID != "" {
		rootUID, err = uuid.Parse(cfg.Engine.RootAdminUID)
		if err != nil {
			log.Error("invalid ROOT_ADMIN_UID", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("ROOT_ADMIN_UID not set; admin bootstrap is disabled")
	}

	ledger := authority.NewLedger(st, issuer, rootUID, log)
	ledger.Register(registry)
	handlers.RegisterAdminCallables(registry, ledger, controller)

	// Background reconciliation sweep for lost counter writes.
	go controller.Run(ctx, cfg.Engine.SweepInterval)

	system := actor.NewActorSystem()
	eng := engine.NewEngine(system, st, controller, ledger, cfg.Engine.MaxCommentDepth, log)

	hub := websocket.NewHub(controller, log)
	go hub.Run()

	server := handlers.NewServer(system, eng, st, ledger, controller, registry, issuer, hub, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HandleHealth())
	mux.HandleFunc("/register", server.HandleRegister())
	mux.HandleFunc("/login", server.HandleLogin())
	mux.HandleFunc("/token/refresh", server.HandleRefreshToken())
	mux.HandleFunc("/profile", server.HandleProfile())
	mux.HandleFunc("/threads", server.HandleThreads())
	mux.HandleFunc("/threads/view", server.HandleThreadView())
	mux.HandleFunc("/comments", server.HandleComment())
	mux.HandleFunc("/reactions", server.HandleReaction())
	mux.HandleFunc("/moderation/censor", server.HandleCensor())
	mux.HandleFunc("/moderation/censor-message", server.HandleCensorMessage())
	mux.HandleFunc("/conversations", server.HandleConversations())
	mux.HandleFunc("/conversations/view", server.HandleConversationView())
	mux.HandleFunc("/messages", server.HandleMessage())
	mux.HandleFunc("/messages/read", server.HandleMarkRead())
	mux.HandleFunc("/callable/", server.HandleCallable())
	mux.HandleFunc("/ws", server.HandleWebSocket())
	if cfg.Server.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	cors := middleware.CORSMiddleware(middleware.DefaultCORSConfig(cfg.AllowedOrigins))
	handler := cors(middleware.AuthMiddleware(cfg.Engine.JWTSecret, mux))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	controller.Shutdown()
	system.Shutdown()
}

func openStore(ctx context.Context, cfg *config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "mongo":
		return store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.PostgresURI)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
