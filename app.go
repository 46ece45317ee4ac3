package main

import (
	"context"
	"log/slog"

	"cropwatch/boundary"
	"cropwatch/phenology"
	"cropwatch/satellite"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type App struct {
	cfg       Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	redis     *redis.Client
	sat       *satellite.Service
	phenology *phenology.Detector
	boundary  *boundary.Detector
}

// newApp builds the service handle once at startup: provider chain, caches,
// detectors and metrics.
func newApp(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	return newAppWithProviders(ctx, cfg, logger, satellite.NewProvidersFromConfig(cfg.Providers, logger))
}

func newAppWithProviders(ctx context.Context, cfg Config, logger *slog.Logger, providers []satellite.Provider) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := &App{cfg: cfg, logger: logger, registry: reg}
	opts := []satellite.Option{
		satellite.WithLogger(logger),
		satellite.WithMetrics(satellite.NewMetrics(reg)),
	}
	switch cfg.CacheBackend {
	case "redis":
		client, err := satellite.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		app.redis = client
		opts = append(opts,
			satellite.WithScenesCache(satellite.NewRedisCache[satellite.SceneSearchResult](client, "cropwatch:scenes:", cfg.CacheTTL, logger)),
			satellite.WithIndicesCache(satellite.NewRedisCache[satellite.IndicesResult](client, "cropwatch:indices:", cfg.CacheTTL, logger)),
			satellite.WithRasterCache(satellite.NewRedisCache[satellite.RasterResult](client, "cropwatch:raster:", cfg.CacheTTL, logger)),
		)
	default:
		opts = append(opts,
			satellite.WithScenesCache(satellite.NewMemoryCache[satellite.SceneSearchResult](cfg.CacheTTL)),
			satellite.WithIndicesCache(satellite.NewMemoryCache[satellite.IndicesResult](cfg.CacheTTL)),
			satellite.WithRasterCache(satellite.NewMemoryCache[satellite.RasterResult](cfg.CacheTTL)),
		)
	}

	sat, err := satellite.NewService(providers, opts...)
	if err != nil {
		app.close()
		return nil, err
	}
	app.sat = sat

	profiles := phenology.DefaultProfiles()
	if cfg.ProfilesFile != "" {
		if profiles, err = phenology.LoadProfiles(cfg.ProfilesFile, profiles); err != nil {
			app.close()
			return nil, err
		}
		logger.Info("crop_profiles_loaded", "file", cfg.ProfilesFile, "crops", len(profiles))
	}
	app.phenology = phenology.NewDetector(profiles, logger)

	if app.boundary, err = boundary.NewDetector(sat, cfg.Boundary, logger); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (a *App) close() {
	if a.sat != nil {
		if err := a.sat.Close(); err != nil {
			a.logger.Warn("provider_close_failed", "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
