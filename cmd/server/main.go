package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maneesh/filesmanager/internal/app"
	"github.com/maneesh/filesmanager/internal/auth"
	"github.com/maneesh/filesmanager/internal/config"
	"github.com/maneesh/filesmanager/internal/files"
	"github.com/maneesh/filesmanager/internal/handlers"
	"github.com/maneesh/filesmanager/internal/logging"
	"github.com/maneesh/filesmanager/internal/metrics"
	"github.com/maneesh/filesmanager/internal/storage"
	"github.com/maneesh/filesmanager/internal/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logger = logger.With("service", cfg.ServiceName)
	logger.Info("starting files manager API", "port", cfg.Port)

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(context.Background(), tracing.Options{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.JaegerEndpoint,
		Enabled:     cfg.TracingEnabled,
		SampleRatio: cfg.TracingSampleRatio,
	})
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Error("error shutting down tracer", "error", err)
		}
	}()

	ctx := context.Background()

	// Initialize Redis client
	redisClient, err := storage.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to initialize Redis client", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("Redis client initialized")

	// Initialize metadata and blob stores
	store, err := app.OpenMetadataStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize metadata store", "backend", cfg.MetadataBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	blobs, err := app.OpenBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize blob store", "backend", cfg.BlobBackend, "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	queue := storage.NewRedisQueue(redisClient, cfg.QueueName, cfg.QueueMaxAttempts)

	// Initialize services and handlers
	authService := auth.NewService(store, redisClient, logger, m)
	manager := files.NewManager(authService, store, blobs, queue, logger, m)

	router := handlers.NewRouter(handlers.Handlers{
		App:   handlers.NewAppHandler(redisClient, store, store, logger),
		Auth:  handlers.NewAuthHandler(authService, logger),
		Users: handlers.NewUsersHandler(authService, logger),
		Files: handlers.NewFilesHandler(manager, cfg.MaxUploadBytes, logger),
	}, m, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
