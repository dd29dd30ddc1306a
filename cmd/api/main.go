package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/roleplay-agent/internal/auth"
	"github.com/jwebster45206/roleplay-agent/internal/config"
	"github.com/jwebster45206/roleplay-agent/internal/handlers"
	"github.com/jwebster45206/roleplay-agent/internal/logger"
	"github.com/jwebster45206/roleplay-agent/internal/metrics"
	"github.com/jwebster45206/roleplay-agent/internal/middleware"
	"github.com/jwebster45206/roleplay-agent/internal/services"
	"github.com/jwebster45206/roleplay-agent/internal/services/events"
	sessionstore "github.com/jwebster45206/roleplay-agent/internal/storage"
	"github.com/jwebster45206/roleplay-agent/internal/turn"
	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
	"github.com/jwebster45206/roleplay-agent/pkg/storage"
)

// backend bundles the pieces that depend on the chosen session store.
type backend struct {
	store  storage.SessionStore
	locker storage.Locker
	bus    interface {
		events.Publisher
		events.Subscriber
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Roleplay Agent API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
		"model_name", cfg.ModelName,
		"store", cfg.StoreBackend)

	var llmService services.LLMService
	switch cfg.LLMProvider {
	case "anthropic":
		llmService = services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, cfg.BackendModelName, log)
	case "venice":
		llmService = services.NewVeniceService(cfg.VeniceAPIKey, cfg.ModelName, cfg.BackendModelName)
	case "openai":
		llmService = services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ModelName, cfg.BackendModelName, log)
	}
	log.Info("Using LLM provider", "provider", cfg.LLMProvider)

	be, err := openBackend(cfg, log)
	if err != nil {
		log.Error("Failed to open session store", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	catalog, err := scenario.LoadCatalog(cfg.DataDir, log)
	if err != nil {
		log.Error("Failed to load scenarios", "error", err, "dir", cfg.DataDir)
		os.Exit(1)
	}
	log.Info("Scenarios loaded", "count", catalog.Len())

	verifier, err := auth.NewVerifier(cfg.JWTSecret, log)
	if err != nil {
		log.Error("Failed to create token verifier", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	narrator := services.NewLLMNarrator(llmService, cfg.NarrationTimeout, cfg.HistoryLimit, m, log)
	processor := turn.NewProcessor(be.store, catalog, narrator, log,
		turn.WithLocker(be.locker),
		turn.WithPublisher(be.bus),
		turn.WithMetrics(m),
	)

	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(be.store, catalog.Len(), log))
	mux.Handle("/metrics", m.Handler())

	scenarioHandler := handlers.NewScenarioHandler(catalog, log)
	mux.Handle("/v1/scenarios", scenarioHandler)
	mux.Handle("/v1/scenarios/", scenarioHandler)

	eventsHandler := handlers.NewEventsHandler(be.bus, be.store, cfg.AllowedOrigins, log)
	sessionHandler := verifier.Middleware(
		handlers.NewSessionHandler(be.store, catalog, processor, be.locker, eventsHandler, log))
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: turns can run three narration calls and websockets stay open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	// Close storage after in-flight turns have saved
	if err := be.store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}

func openBackend(cfg *config.Config, log *slog.Logger) (*backend, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		store, err := sessionstore.OpenSQLite(cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:  store,
			locker: sessionstore.NewMemoryLocker(cfg.LockWait),
			bus:    events.NewLocalBroadcaster(log),
		}, nil
	default:
		store, err := sessionstore.NewRedisStorage(cfg.RedisURL, log)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := store.WaitForConnection(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return &backend{
			store:  store,
			locker: sessionstore.NewRedisLocker(store.Client(), cfg.LockWait, cfg.LockTTL(), log),
			bus:    events.NewBroadcaster(store.Client(), log),
		}, nil
	}
}
