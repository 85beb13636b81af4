package main

import (
	"chat-core/auth"
	"chat-core/contract"
	"chat-core/domain"
	chatnats "chat-core/infrastructure/nats"
	chatredis "chat-core/infrastructure/redis"
	"chat-core/infrastructure/storage"
	"chat-core/infrastructure/websocket"
	"chat-core/internal"
	"chat-core/moderation"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and owns their lifecycle, so that deferred
// cleanups run before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLogger(storage.NewBadgerLogger(log)))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	var store contract.IConversationStore = storage.NewConversationStore(
		db, log, config.IdempotencyWindow, config.LimitMessages)

	// 3. Supervision & in-memory state
	sup := workers.NewSupervisor(log, config.RestartInterval)
	registry := runtime.NewRegistry()
	rooms := runtime.NewRooms()
	sup.Add(
		workers.NewHealthWorker(log, registry, config.HealthInterval),
		workers.NewQueueDepthWorker(log, registry, config.HealthInterval, 0.8),
	)

	// 4. Optional shared state
	var presenceChanges chan domain.PresenceChange
	if config.RedisAddr != "" {
		client, err := chatredis.NewClient(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		if config.CounterBackend == internal.CounterBackendRedis {
			store = chatredis.NewCounterStore(store, client, log, config.IdempotencyWindow)
			log.Info("Unread counters kept in Redis", "addr", config.RedisAddr)
		}

		presenceChanges = make(chan domain.PresenceChange, config.ConnectionBufferSize)
		mirror := chatredis.NewPresenceMirror(client, log, config.InstanceID, config.PresenceTTL)
		sup.Add(workers.NewPresenceMirrorWorker(log, mirror, presenceChanges, registry.OnlineUsers, config.PresenceTTL/2))
	}

	var publisher contract.INotificationPublisher
	if config.NatsURL != "" {
		conn, err := chatnats.Connect(config.NatsURL, log)
		if err != nil {
			return fmt.Errorf("nats connection failed: %w", err)
		}
		defer conn.Close()
		publisher = chatnats.NewNotificationPublisher(conn, log)
	}

	// 5. Moderation
	filter, err := loadContentFilter(config, log)
	if err != nil {
		return err
	}

	// 6. Real-time core
	hub := services.NewHub(log, registry, rooms,
		services.NewMembershipService(log, store, registry, rooms),
		services.NewPresenceService(log, registry, presenceChanges),
		services.NewTypingService(log, store, rooms),
		services.NewMessageService(log, store, registry, rooms, filter, publisher, config.MaxContentLength),
		services.NewReadReceiptService(log, store, rooms))

	gateway := websocket.NewGateway(log, hub, auth.NewTokenVerifier(config.JWTSecret),
		config.ConnectionBufferSize, config.WriteTimeout)

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})
	if config.DebugInspect {
		mux.Handle("/debug/inspect", internal.InspectHandler(db, nil, func() map[string]any {
			return map[string]any{
				"connections":  len(registry.Connections()),
				"online_users": len(registry.OnlineUsers()),
				"time":         time.Now().UTC().Format(time.RFC3339),
			}
		}))
	}

	server := &http.Server{
		Addr:              config.Address(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// Live connections end with the process context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// 7. Start
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting websocket server", "address", server.Addr, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		sup.Stop()
		<-supDone
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown incomplete", "error", err)
	}
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}

// loadContentFilter returns nil when no dictionary directory is configured.
func loadContentFilter(config internal.Config, log *slog.Logger) (contract.IContentFilter, error) {
	if config.CensoredDir == "" {
		return nil, nil
	}
	data, err := runtime.NewCensoredLoader(os.DirFS(config.CensoredDir)).LoadAll(".")
	if err != nil {
		return nil, fmt.Errorf("censored words loading failed: %w", err)
	}
	char, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	moderator, err := moderation.NewModerator(data.Words, char, log)
	if err != nil {
		return nil, err
	}
	log.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages, "per_language", data.Counts)
	return moderation.NewContentFilter(moderator, log), nil
}
