package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/tetherhq/tether-engine/pkg/config"
	"github.com/tetherhq/tether-engine/pkg/database"
	"github.com/tetherhq/tether-engine/pkg/handlers"
	"github.com/tetherhq/tether-engine/pkg/logging"
	"github.com/tetherhq/tether-engine/pkg/mcp"
	"github.com/tetherhq/tether-engine/pkg/mcp/tools"
	"github.com/tetherhq/tether-engine/pkg/middleware"
	"github.com/tetherhq/tether-engine/pkg/repositories"
	"github.com/tetherhq/tether-engine/pkg/retry"
	"github.com/tetherhq/tether-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

// migrationStatementTimeout bounds each migration statement so a misconfigured
// database user fails fast instead of hanging on a schema permission error.
const migrationStatementTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Bool("cache_enabled", cfg.Redis.Host != ""))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL, retrying while the database comes up.
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := runMigrations(ctx, &cfg.Database, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis",
			zap.String("error", logging.SanitizeError(err)))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	} else {
		logger.Info("Redis not configured, serialized-commitment cache disabled")
	}

	// Repositories
	commitmentRepo := repositories.NewCommitmentRepository(db)
	emailLinkRepo := repositories.NewEmailLinkRepository(db)
	calendarLinkRepo := repositories.NewCalendarLinkRepository(db)

	// Services
	commitmentService := services.NewCommitmentService(
		commitmentRepo, emailLinkRepo, calendarLinkRepo,
		redisClient, cfg.Cache.SerializedTTL(), logger)
	ingestService := services.NewIngestService(
		commitmentService, ingestRetryConfig(&cfg.Ingest), logger)

	// HTTP handlers
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewCommitmentsHandler(commitmentService, logger).RegisterRoutes(mux)
	handlers.NewObservationsHandler(ingestService, logger).RegisterRoutes(mux)

	// MCP server exposing the commitment tools over streamable HTTP
	mcpServer := mcp.NewServer("tether-engine", cfg.Version, logger)
	tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version)
	tools.RegisterCommitmentTools(mcpServer.MCP(), &tools.CommitmentToolDeps{
		CommitmentService: commitmentService,
		IngestService:     ingestService,
		Logger:            logger,
	})
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting tether-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""))

		var serveErr error
		if cfg.TLSCertPath != "" {
			serveErr = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(serveErr))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// runMigrations applies pending migrations over a dedicated database/sql
// connection. The statement timeout goes into the DSN because migrations
// would otherwise hang when the migration user cannot create tables in the
// public schema.
func runMigrations(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) error {
	dsn := database.MigrationDSN(cfg.ConnectionString(), migrationStatementTimeout)

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	return retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		return database.RunMigrations(sqlDB, logger)
	})
}

// ingestRetryConfig builds the observation-ingest retry policy from config,
// keeping the default backoff cap and jitter.
func ingestRetryConfig(cfg *config.IngestConfig) *retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxRetries = cfg.MaxRetries
	rc.InitialDelay = time.Duration(cfg.InitialDelayMs) * time.Millisecond
	return rc
}
