package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/adapter/gdal"
	httpadapter "github.com/couchcryptid/zonal-climate-analyzer/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/zonal-climate-analyzer/internal/adapter/kafka"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/adapter/mapbox"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/config"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/gateway"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/observability"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// Region naming is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.Lang, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var (
		events gateway.Publisher
		writer *kafkaadapter.Writer
	)
	if cfg.EventsEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		events = writer
		logger.Info("run events enabled", "topic", cfg.KafkaRunTopic, "brokers", cfg.KafkaBrokers)
	}

	proj, err := domain.LoadProjection(cfg.PrjFile)
	if err != nil {
		logger.Warn("grid projection unavailable, archived rasters left out of coverage", "error", err)
	}

	gis := gdal.New(logger)
	gw := gateway.New(gateway.OptionsFromConfig(cfg), gateway.Deps{
		Geo:      gis,
		Scanner:  gateway.NewClamScanner(cfg.RequireClamscan, logger),
		Runner:   gateway.NewProcessRunner(cfg.AnalyzerBin, cfg.BaseDir, cfg.AnalyzerTimeout, logger),
		Lock:     gateway.NewLock(cfg.LockPath, cfg.LockTTL, clock, logger),
		Runs:     gateway.NewRuns(cfg.RunsDir, cfg.RunRetention, clock, logger),
		Coverage: gateway.NewCoverage(cfg.CoveragePath, cfg.BoundaryPath, cfg.RasterDir, proj, gis, logger),
		Geocoder: geocoder,
		Events:   events,
		Clock:    clock,
		Metrics:  metrics,
		Logger:   logger,
	})
	gw.StartupCleanup()

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:              cfg.HTTPAddr,
		AllowedOrigins:    cfg.AllowedOrigins,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}, gw, gateway.NewRateLimiter(cfg.RateLimitPerMin, clock), metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
