package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"studybuddy-backend/internal/api"
	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/credentials"
	"studybuddy-backend/internal/crypto"
	"studybuddy-backend/internal/events"
	"studybuddy-backend/internal/handlers"
	"studybuddy-backend/internal/llm"
	"studybuddy-backend/internal/observability"
	"studybuddy-backend/internal/services"
	"studybuddy-backend/internal/store"
	"studybuddy-backend/internal/store/firestore"
	"studybuddy-backend/internal/store/memory"
	"studybuddy-backend/internal/store/postgres"
	"studybuddy-backend/internal/store/sqlite"
	"studybuddy-backend/internal/tutor"
)

func main() {
	dotEnvErr := config.LoadDotEnv()

	logger, err := observability.NewLogger(os.Getenv("APP_ENV"))
	if err != nil {
		log.Fatalf("FATAL: Failed to build logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Info("Starting Study Buddy Backend...")
	if dotEnvErr != nil {
		sugar.Debugf("No .env file loaded: %v", dotEnvErr)
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		sugar.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	sugar.Info("Configuration loaded successfully.")

	// 2. Model adapter
	gen, err := newGenerator(cfg)
	if err != nil {
		sugar.Fatalf("FATAL: Failed to initialize model adapter: %v", err)
	}
	tutorSvc := tutor.New(gen, "")
	sugar.Infof("Tutor initialized with %s/%s.", cfg.LLMProvider, cfg.LLMModel)

	// Background work (vault purge, store listeners) stops with this context.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// 3. Initialize Dependencies per session mode
	routerDeps := api.RouterDependencies{
		SessionHandler: handlers.NewSessionHandler(cfg.Mode, cfg.Greeting),
		Logger:         logger,
		Config:         cfg,
	}
	var closers []func()

	switch cfg.Mode {
	case config.ModeEphemeral:
		aead, err := crypto.NewAESGCM(cfg.EncryptionKey)
		if err != nil {
			sugar.Fatalf("FATAL: Failed to create AES-GCM cipher: %v", err)
		}
		if cfg.EncryptionKeyGenerated {
			sugar.Warn("WARN: ENCRYPTION_KEY not set; stored API keys will not survive a restart.")
		}
		vault := credentials.NewVault(aead, cfg.CredentialTTL)
		go vault.Run(appCtx, time.Minute)

		credService := services.NewCredentialsService(vault, tutorSvc)
		routerDeps.CredentialsHandler = handlers.NewCredentialsHandler(credService, cfg.CredentialTTL, cfg.IsProduction())
		sugar.Info("Ephemeral mode: CredentialsHandler initialized.")

	case config.ModeLocal:
		localStore, err := sqlite.Open(cfg.LocalDBPath)
		if err != nil {
			sugar.Fatalf("FATAL: Failed to open local database %s: %v", cfg.LocalDBPath, err)
		}
		closers = append(closers, func() { localStore.Close() })

		localService := services.NewLocalHistoryService(localStore, tutorSvc, cfg.Greeting)
		routerDeps.LocalHandler = handlers.NewLocalHandler(localService)
		sugar.Infof("Local mode: history stored in %s.", cfg.LocalDBPath)

	case config.ModeAccount:
		accountStore, closeStore, err := newAccountStore(appCtx, cfg)
		if err != nil {
			sugar.Fatalf("FATAL: Failed to initialize %s store: %v", cfg.StoreBackend, err)
		}
		closers = append(closers, closeStore)

		emitter := events.NewEmitter()
		unsubscribe := emitter.Subscribe(func(pe *events.PermissionError) {
			sugar.Errorf("ERROR [Store] %v (user %s)", pe, pe.UserID)
		})
		closers = append(closers, unsubscribe)

		authService := services.NewAuthService(accountStore, cfg)
		chatService := services.NewChatService(accountStore, tutorSvc, emitter, cfg.Greeting, cfg.RecentChatsLimit)
		routerDeps.AuthHandler = handlers.NewAuthHandler(authService)
		routerDeps.ChatHandler = handlers.NewChatHandlers(chatService)
		routerDeps.StreamHandler = handlers.NewStreamHandler(chatService, cfg.CORSAllowedOrigins)
		sugar.Infof("Account mode: %s store, AuthHandler and ChatHandlers initialized.", cfg.StoreBackend)
	}

	// 4. Setup Router & Inject Dependencies
	router := api.NewRouter(routerDeps)
	sugar.Info("HTTP router configured.")

	// 5. Configure and Start HTTP Server
	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
		// Model calls and the websocket stream outlive the usual write timeout; the
		// router applies its own per-route timeout instead.
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sugar.Infof("Server starting and listening on port %s (mode %s)", cfg.HTTPPort, cfg.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("FATAL: Could not listen on %s: %v", cfg.HTTPPort, err)
		}
		sugar.Info("Server listener routine stopped.")
	}()

	<-stopChan
	sugar.Info("Shutdown signal received, initiating graceful shutdown...")
	appCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("WARN: Server graceful shutdown failed: %v", err)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}

	sugar.Info("Server shutdown complete.")
}

func newGenerator(cfg *config.Config) (llm.Generator, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return llm.NewGeminiGenerator(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMBaseURL), nil
	case config.ProviderOpenAI:
		gen, err := llm.NewOpenAIGenerator(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMBaseURL)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case config.ProviderMock:
		zap.S().Warn("WARN: using the mock model provider; replies are canned.")
		return llm.NewMockGenerator(), nil
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
}

// newAccountStore connects the configured account backend and returns a function
// that releases it.
func newAccountStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
		defer dbCancel()

		dbpool, err := pgxpool.New(dbCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to create database connection pool: %w", err)
		}
		if err := dbpool.Ping(dbCtx); err != nil {
			dbpool.Close()
			return nil, nil, fmt.Errorf("unable to ping database: %w", err)
		}
		pgStore := postgres.NewPostgresStore(dbpool)
		if err := pgStore.EnsureSchema(dbCtx); err != nil {
			dbpool.Close()
			return nil, nil, fmt.Errorf("unable to apply schema: %w", err)
		}
		zap.S().Info("Database connection pool established and pinged successfully.")
		return pgStore, dbpool.Close, nil

	case config.StoreFirestore:
		fsStore, err := firestore.NewStore(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, nil, err
		}
		return fsStore, func() { fsStore.Close() }, nil
	}

	zap.S().Warn("WARN: using the in-memory store; accounts and chats are lost on restart.")
	return memory.NewStore(), func() {}, nil
}
