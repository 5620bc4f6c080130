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
	"github.com/maneesh/filesmanager/internal/config"
	"github.com/maneesh/filesmanager/internal/logging"
	"github.com/maneesh/filesmanager/internal/metrics"
	"github.com/maneesh/filesmanager/internal/storage"
	"github.com/maneesh/filesmanager/internal/thumbnail"
	"github.com/maneesh/filesmanager/internal/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	serviceName := cfg.ServiceName + "-worker"
	logger = logger.With("service", serviceName)

	shutdownTracer, err := tracing.InitTracer(context.Background(), tracing.Options{
		ServiceName: serviceName,
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := storage.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to initialize Redis client", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

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
	if cfg.WorkerMetricsPort != "" {
		srv := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	queue := storage.NewRedisQueue(redisClient, cfg.QueueName, cfg.QueueMaxAttempts)
	worker := thumbnail.NewWorker(store, blobs, queue, cfg.WorkerPollTimeout, logger, m)

	logger.Info("worker started", "queue", cfg.QueueName, "max_attempts", cfg.QueueMaxAttempts)
	if err := worker.Run(ctx); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker exited")
}
