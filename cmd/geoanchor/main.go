package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/couchcryptid/geo-anchor-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/geo-anchor-service/internal/adapter/kafka"
	"github.com/couchcryptid/geo-anchor-service/internal/adapter/mapbox"
	"github.com/couchcryptid/geo-anchor-service/internal/adapter/probe"
	"github.com/couchcryptid/geo-anchor-service/internal/config"
	"github.com/couchcryptid/geo-anchor-service/internal/observability"
	"github.com/couchcryptid/geo-anchor-service/internal/outbox"
	"github.com/couchcryptid/geo-anchor-service/internal/registry"
	"github.com/couchcryptid/geo-anchor-service/internal/storage"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// Events queued beyond this many batches are dropped rather than blocking requests.
const outboxQueueBatches = 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	repo, err := storage.Open(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	logger.Info("storage configured", "backend", repo.Backend())

	var opts []registry.Option

	// Place enrichment is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		opts = append(opts, registry.WithGeocoder(mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)))
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var (
		writer *kafkaadapter.Writer
		relay  *outbox.Relay
	)
	if cfg.PublishEnabled {
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		relay = outbox.New(writer, cfg.BatchSize, cfg.BatchFlushInterval, cfg.BatchSize*outboxQueueBatches, logger, metrics)
		opts = append(opts, registry.WithNotifier(relay))
		logger.Info("record events enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	validator := probe.NewValidator(cfg.ProbeTimeout, metrics, logger)
	svc := registry.NewService(repo, validator, logger, metrics, opts...)
	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, repo, cfg.CORSAllowedOrigins, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect eagerly so readiness reflects the backend from the start. A
	// failure here is memoized and reported through /readyz and the API.
	if err := repo.Init(ctx); err != nil {
		logger.Error("storage init failed", "backend", repo.Backend(), "error", err)
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// The relay outlives the signal so requests still in flight during
	// shutdown can enqueue their events.
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	var wg sync.WaitGroup
	if relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(relayCtx); err != nil {
				logger.Error("outbox relay error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	stopRelay()
	wg.Wait()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	if err := repo.Close(shutdownCtx); err != nil {
		logger.Error("storage close error", "error", err)
	}

	logger.Info("shutdown complete")
}
