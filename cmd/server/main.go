package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/joho/godotenv"

	"whalefall/application"
	"whalefall/database"
	"whalefall/domain/contracts"
	"whalefall/infrastructure/config"
	"whalefall/infrastructure/repositories"
	"whalefall/interfaces/web/handlers"
	"whalefall/logging"
	"whalefall/platform/events"
)

func main() {
	loadEnvironment()
	cfg := config.LoadAppConfigFromEnv()

	logger := initializeLogging(cfg)

	db := initializeDatabase(cfg, logger)
	defer db.Close()

	deps := buildDependencies(db, cfg, logger)

	router := setupRoutes(deps, cfg)
	startServer(router, cfg.HTTPAddr, logger, deps)
}

// Dependencies holds all application dependencies organized by layer
type Dependencies struct {
	// Infrastructure
	DB     *database.Database
	Logger *logging.Logger

	// Repositories
	InstanceRepo       contracts.InstanceRepository
	AccountRepo        contracts.AccountRepository
	SessionRepo        contracts.SessionRepository
	ClassificationRepo contracts.ClassificationRepository

	// Application layer
	EventBus            *events.SyncEventBus
	CollectorRegistry   *application.CollectorRegistry
	SessionCoordinator  *application.SessionCoordinator
	ClassificationSvc   *application.ClassificationService
	SyncService         *application.SyncService

	// Presentation layer
	SyncHandlers *handlers.SyncHandlers
}

func loadEnvironment() {
	if err := godotenv.Load(); err != nil {
		println("No .env file found, using environment variables")
	} else {
		println("Loaded configuration from .env file")
	}
}

func initializeLogging(cfg *config.AppConfig) *logging.Logger {
	logger := logging.NewLogger(cfg.Logging)
	logging.SetDefault(logger)

	logger.Info("Application starting",
		"version", "1.0.0",
		"log_level", cfg.Logging.Level,
		"log_format", cfg.Logging.Format,
		"db_path", cfg.Database.Path,
	)
	return logger
}

func initializeDatabase(cfg *config.AppConfig, logger *logging.Logger) *database.Database {
	db, err := database.New(*cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	return db
}

func buildDependencies(db *database.Database, cfg *config.AppConfig, logger *logging.Logger) *Dependencies {
	instanceRepo := repositories.NewSqliteInstanceRepository(db)
	accountRepo := repositories.NewSqliteAccountRepository(db)
	sessionRepo := repositories.NewSqliteSessionRepository(db)
	classificationRepo := repositories.NewSqliteClassificationRepository(db)

	eventBus := events.NewSyncEventBus()
	events.NewNotificationEventHandlers().RegisterHandlers(eventBus)

	// Vendor collectors are deployment-specific; register them here as they
	// become available for this installation.
	registry := application.NewCollectorRegistry()

	coordinator := application.NewSessionCoordinator(sessionRepo)
	classificationSvc := application.NewClassificationService(classificationRepo)

	syncService := application.NewSyncService(
		instanceRepo, accountRepo, registry, classificationSvc, coordinator, eventBus,
		application.SyncOptions{
			WorkerCount:    cfg.Sync.WorkerCount,
			CollectTimeout: cfg.Sync.CollectTimeout,
			ClassifyOnSync: cfg.Sync.ClassifyOnSync,
		})

	return &Dependencies{
		DB:                 db,
		Logger:             logger,
		InstanceRepo:       instanceRepo,
		AccountRepo:        accountRepo,
		SessionRepo:        sessionRepo,
		ClassificationRepo: classificationRepo,
		EventBus:           eventBus,
		CollectorRegistry:  registry,
		SessionCoordinator: coordinator,
		ClassificationSvc:  classificationSvc,
		SyncService:        syncService,
		SyncHandlers:       handlers.NewSyncHandlers(syncService, coordinator),
	}
}

func setupRoutes(deps *Dependencies, cfg *config.AppConfig) *chi.Mux {
	r := chi.NewRouter()

	setupHTTPLogging(r, deps, cfg)
	r.Use(middleware.Recoverer)

	setupSystemRoutes(r, deps)
	deps.SyncHandlers.RegisterRoutes(r)

	return r
}

func setupHTTPLogging(r *chi.Mux, deps *Dependencies, cfg *config.AppConfig) {
	if cfg.HTTPLogPath == "" {
		return
	}

	logFile, err := os.OpenFile(cfg.HTTPLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		deps.Logger.Error("Failed to open HTTP log file", "error", err, "path", cfg.HTTPLogPath)
		return
	}
	// Note: logFile stays open for the server lifetime

	httpLogger := httplog.NewLogger("whalefall", httplog.Options{
		Writer: logFile,
		JSON:   true,
	})
	r.Use(httplog.RequestLogger(httpLogger))

	deps.Logger.Info("HTTP request logging enabled", "path", cfg.HTTPLogPath)
}

func setupSystemRoutes(r *chi.Mux, deps *Dependencies) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.DB.Health()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		response := map[string]interface{}{
			"status":     "ok",
			"database":   stats,
			"collectors": deps.CollectorRegistry.SupportedDbTypes(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})
}

func startServer(router *chi.Mux, addr string, logger *logging.Logger, deps *Dependencies) {
	server := &http.Server{Addr: addr, Handler: router}

	serverCtx, serverStopCtx := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sig
		logger.Info("Shutdown signal received")

		// Stop running batch sessions first; their supervisors mark the
		// interrupted sessions cancelled as they unwind.
		deps.SyncService.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(serverCtx, 30*time.Second)
		defer cancel()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				logger.Error("Graceful shutdown timed out, forcing exit")
				os.Exit(1)
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			os.Exit(1)
		}
		serverStopCtx()
	}()

	logger.Info("Server starting", "address", addr)
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}

	<-serverCtx.Done()
	logger.Info("Server stopped")
}
