package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/radar-regrid/internal/adapter/catalog"
	httpadapter "github.com/couchcryptid/radar-regrid/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/radar-regrid/internal/adapter/kafka"
	"github.com/couchcryptid/radar-regrid/internal/adapter/mapbox"
	"github.com/couchcryptid/radar-regrid/internal/config"
	"github.com/couchcryptid/radar-regrid/internal/domain"
	"github.com/couchcryptid/radar-regrid/internal/observability"
	"github.com/couchcryptid/radar-regrid/internal/pipeline"
	"github.com/couchcryptid/radar-regrid/internal/regrid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := catalog.Open(ctx, cfg.CatalogDSN)
	if err != nil {
		logger.Error("failed to open catalog", "error", err)
		os.Exit(1)
	}

	opts, err := regrid.OptionsFromConfig(cfg)
	if err != nil {
		logger.Error("invalid regrid options", "error", err)
		os.Exit(1)
	}
	regridder, err := regrid.New(opts, metrics, logger)
	if err != nil {
		logger.Error("failed to create regridder", "error", err)
		os.Exit(1)
	}
	logger.Info("regridder ready",
		"crs", cfg.GridCRS,
		"resolution", cfg.GridResolution,
		"max_distance", cfg.RegridMaxDistance,
		"formats", cfg.RasterFormats,
		"output_dir", cfg.OutputDir,
	)

	// Site names are optional (MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(regridder, geocoder, logger)

	// Catalog first: a product is only published once it can be looked up.
	loader := pipeline.FanoutLoader{
		{Name: "catalog", Loader: store},
		{Name: "kafka", Loader: writer},
	}
	p := pipeline.New(reader, transformer, loader, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.AllReady{p, store}, store, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("catalog close error", "error", err)
	}

	logger.Info("shutdown complete")
}
