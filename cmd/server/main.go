package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"scholaverse/backend/internal/api"
	"scholaverse/backend/internal/auth"
	"scholaverse/backend/internal/cache"
	"scholaverse/backend/internal/config"
	"scholaverse/backend/internal/logging"
	"scholaverse/backend/internal/mcp"
	"scholaverse/backend/internal/repository"
	"scholaverse/backend/internal/services"
	"scholaverse/backend/internal/tls"
)

func main() {
	ctx := context.Background()

	// Initialize logging
	logger := logging.NewLogger()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		log.Fatalf("Configuration loading failed: %v", err)
	}
	logger.Info("Configuration loaded: env=%s db=%s worker_mock=%v config_file=%s",
		cfg.Environment, cfg.DB.Driver, cfg.Worker.UseMock, viper.ConfigFileUsed())

	logger.Info("Starting Scholaverse Card Service")

	// Initialize repository layer
	repo, cleanupRepo, err := initRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize database: %v", err)
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer cleanupRepo()

	logger.Info("Database connected (%s)", cfg.DB.Driver)

	// Worker gateway: real ai-worker over HTTP, or the in-process simulator
	// for development without the GPU host.
	submitTimeout := time.Duration(cfg.Worker.SubmitTimeoutSecs) * time.Second
	pollTimeout := time.Duration(cfg.Worker.PollTimeoutSecs) * time.Second

	var gateway services.WorkerGateway
	var sim *services.SimulatedWorker
	if cfg.Worker.UseMock {
		sim = services.NewSimulatedWorker(logger,
			time.Duration(cfg.Worker.MockMinDelayMillis)*time.Millisecond,
			time.Duration(cfg.Worker.MockMaxDelayMillis)*time.Millisecond)
		gateway = sim
		logger.Info("Using simulated generation worker")
	} else {
		gateway = services.NewHTTPWorkerClient(cfg.Worker.BaseURL, submitTimeout, pollTimeout)
		logger.Info("Using ai-worker at %s", cfg.Worker.BaseURL)
	}

	// Status cache: Redis when enabled, otherwise a no-op.
	var statusCache cache.Cache = cache.Noop{}
	if cfg.Redis.Enable {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.Addr)
		if err != nil {
			logger.Error("Failed to connect to redis at %s: %v", cfg.Redis.Addr, err)
			log.Fatalf("Redis initialization failed: %v", err)
		}
		defer redisCache.Close()
		statusCache = redisCache
		logger.Info("Redis status cache enabled")
	}

	// Initialize service layer
	builder := services.NewStoreConfigBuilder(repo)
	fulfillment := services.NewFulfillmentService(repo, gateway, builder, logger,
		cfg.Worker.BaseURL, cfg.Worker.CallbackURL, submitTimeout)
	if sim != nil {
		sim.SetSink(fulfillment)
	}
	status := services.NewStatusService(repo, gateway, statusCache, logger,
		pollTimeout, time.Duration(cfg.Redis.StatusTTLSecs)*time.Second)

	logger.Info("Service layer initialized")

	// Create Echo server
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("scholaverse-backend"))

	// Initialize authentication
	authz, err := auth.New(ctx, cfg, repo, logger)
	if err != nil {
		logger.Error("failed to initialize auth: %v", err)
		log.Fatalf("auth initialization failed: %v", err)
	}

	// Register auth handlers
	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	// Mount REST API handlers under /api/v1 with the student resolver applied.
	apiHandler := api.NewHandler(fulfillment, status, repo, logger)
	apiGroup := e.Group("/api/v1")
	apiGroup.Use(authz.RequireStudent())
	api.RegisterHandlers(apiGroup, apiHandler)

	// The worker callback bypasses end-user auth; it arrives from the
	// trusted internal network.
	api.RegisterInternalHandlers(e, apiHandler)

	e.GET("/healthz", apiHandler.HandleHealth)

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(fulfillment, status, repo)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp", echo.WrapHandler(mcpHandlers))
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	// expose OpenAPI spec (with runtime substitution) and Swagger UI
	e.GET("/openapi.yaml", echo.WrapHandler(http.HandlerFunc(api.SpecHandler(cfg.Auth.Issuer))))
	e.GET("/docs", echo.WrapHandler(http.HandlerFunc(api.SwaggerHandler(cfg.Auth.Issuer, cfg.Auth.ClientID))))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(http.HandlerFunc(api.OAuthRedirectHandler)))

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting on %s (tls=%v)", cfg.Server.Addr, cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			// generate if missing and hostnames provided
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.TLS.Hostnames) > 0 {
					if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
						logger.Error("failed to generate self-signed cert: %v", err)
					}
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error: %v", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received: %v", sig)

		// Create shutdown context with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error: %v", err)
			}
		}

		if sim != nil {
			sim.Shutdown()
		}

		logger.Info("Server stopped gracefully")
	}
}

// initRepository opens the configured store. SQLite covers the single-box
// school deployment; Postgres is for anything bigger.
func initRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Repository, func(), error) {
	switch cfg.DB.Driver {
	case "sqlite", "":
		logger.Debug("Opening sqlite database at %s", cfg.DB.Path)
		db, err := repository.OpenSQLite(cfg.DB.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		store, err := repository.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
		}
		return store, func() { db.Close() }, nil

	case "postgres":
		logger.Debug("Initializing postgres connection pool")
		connStr := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
		)
		poolConfig, err := pgxpool.ParseConfig(connStr)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse database config: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store := repository.NewPostgresStore(pool)
		if err := store.InitSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to initialize postgres schema: %w", err)
		}
		return store, func() { pool.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported db driver %q", cfg.DB.Driver)
	}
}
