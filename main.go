package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cropwatch/models"
	"cropwatch/phenology"
	"cropwatch/satellite"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "cropwatch",
		Short:        "Satellite crop monitoring: acquisition, phenology and field boundaries",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file (environment variables win)")

	root.AddCommand(newServeCmd(&configPath), newProvidersCmd(&configPath), newTimelineCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

func serve(ctx context.Context, cfg Config) error {
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	app, err := newApp(startCtx, cfg, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer app.close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("cropwatch API listening", "addr", srv.Addr, "providers", app.sat.ProviderNames(), "cache", cfg.CacheBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newProvidersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Print the provider chain the current configuration selects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			providers := satellite.NewProvidersFromConfig(cfg.Providers, newLogger("warn"))
			for i, p := range providers {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s (%s)\n", i+1, p.Name(), p.Kind())
				_ = p.Close()
			}
			return nil
		},
	}
}

func newTimelineCmd(configPath *string) *cobra.Command {
	var planting string
	cmd := &cobra.Command{
		Use:   "timeline <crop>",
		Short: "Print the expected season calendar of a crop as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			profiles := phenology.DefaultProfiles()
			if cfg.ProfilesFile != "" {
				if profiles, err = phenology.LoadProfiles(cfg.ProfilesFile, profiles); err != nil {
					return err
				}
			}
			date, err := parseDate(planting)
			if err != nil {
				return err
			}
			tl, err := phenology.NewDetector(profiles, newLogger("warn")).GetPhenologyTimeline(models.CropKind(args[0]), date)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tl)
		},
	}
	cmd.Flags().StringVar(&planting, "planting", "", "planting date (YYYY-MM-DD), default today")
	return cmd
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
