package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"cropwatch/boundary"
	"cropwatch/satellite"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string
	LogLevel       string
	AllowedOrigins []string
	RequestTimeout time.Duration

	// CacheBackend is "memory" or "redis".
	CacheBackend string
	CacheTTL     time.Duration
	RedisURL     string

	// ProfilesFile optionally adds crop profiles from YAML.
	ProfilesFile string

	Providers satellite.ProvidersConfig
	Boundary  boundary.Config
}

// loadConfig reads .env (when present), then an optional config file, then
// the environment. Environment variables win.
func loadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	bd := boundary.DefaultConfig()
	cfg := Config{
		Port:           v.GetString("port"),
		LogLevel:       v.GetString("log_level"),
		AllowedOrigins: splitList(v.GetString("cors_origins")),
		RequestTimeout: v.GetDuration("request_timeout"),
		CacheBackend:   strings.ToLower(v.GetString("cache_backend")),
		CacheTTL:       v.GetDuration("cache_ttl"),
		RedisURL:       v.GetString("redis_url"),
		ProfilesFile:   v.GetString("crop_profiles_file"),
		Providers: satellite.ProvidersConfig{
			SentinelHub: satellite.SentinelHubConfig{
				ClientID:          v.GetString("sentinelhub_client_id"),
				ClientSecret:      v.GetString("sentinelhub_client_secret"),
				BaseURL:           v.GetString("sentinelhub_url"),
				TokenURL:          v.GetString("sentinelhub_token_url"),
				Timeout:           v.GetDuration("provider_timeout"),
				RequestsPerMinute: v.GetInt("sentinelhub_rpm"),
			},
			STAC: satellite.STACConfig{
				Enabled: v.GetBool("stac_enabled"),
				BaseURL: v.GetString("stac_url"),
				Timeout: v.GetDuration("provider_timeout"),
			},
			USGS: satellite.USGSConfig{
				Username: v.GetString("usgs_username"),
				Token:    v.GetString("usgs_token"),
				BaseURL:  v.GetString("usgs_url"),
				Timeout:  v.GetDuration("provider_timeout"),
			},
		},
		Boundary: boundary.Config{
			CultivatedThreshold: floatOr(v, "boundary_cultivated_threshold", bd.CultivatedThreshold),
			EdgeThreshold:       floatOr(v, "boundary_edge_threshold", bd.EdgeThreshold),
			SimplifyToleranceM:  floatOr(v, "boundary_simplify_tolerance_m", bd.SimplifyToleranceM),
			MaxVertices:         intOr(v, "boundary_max_vertices", bd.MaxVertices),
			MinAreaHa:           floatOr(v, "boundary_min_area_ha", bd.MinAreaHa),
			MinQuality:          floatOr(v, "boundary_min_quality", bd.MinQuality),
			DefaultBufferM:      floatOr(v, "boundary_buffer_m", bd.DefaultBufferM),
			MaxRadiusM:          floatOr(v, "boundary_max_radius_m", bd.MaxRadiusM),
			StableBandPct:       floatOr(v, "boundary_stable_band_pct", bd.StableBandPct),
			ShiftThresholdM:     floatOr(v, "boundary_shift_threshold_m", bd.ShiftThresholdM),
		},
	}
	return cfg, cfg.validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", "http://localhost:5173,http://127.0.0.1:5173,http://localhost:3000")
	v.SetDefault("request_timeout", "60s")
	v.SetDefault("cache_backend", "memory")
	v.SetDefault("cache_ttl", satellite.DefaultCacheTTL.String())
	v.SetDefault("provider_timeout", "30s")
	v.SetDefault("stac_enabled", true)
}

func (c Config) validate() error {
	switch c.CacheBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (memory|redis)", c.CacheBackend)
	}
	if c.CacheTTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}
	return c.Boundary.Validate()
}

func floatOr(v *viper.Viper, key string, def float64) float64 {
	if !v.IsSet(key) {
		return def
	}
	return v.GetFloat64(key)
}

func intOr(v *viper.Viper, key string, def int) int {
	if !v.IsSet(key) {
		return def
	}
	return v.GetInt(key)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
