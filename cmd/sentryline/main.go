package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sentryline/config"
	"sentryline/internal/logger"
)

const defaultConfigName = "sentryline.yml"

var configArg string

func main() {
	rootCmd := &cobra.Command{
		Use:   "sentryline",
		Short: "Security event backend for the perception service",
		Long: `Sentryline ingests detections from the perception service, derives alerts,
owns the zone registry mirrored back to the detector, and streams live
notifications and analytics to operators.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVar(&configArg, "config", "", "Path to configuration file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, broadcast hub and optional Redis intake",
		RunE:  runServe,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "resync",
		Short: "Push every active zone to the perception service once and exit",
		RunE:  runResync,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, defaultConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return defaultConfigName
}

// loadConfig reads the YAML file, .env and environment overrides, then
// fills defaults. A missing config file falls back to defaults.
func loadConfig() (*config.Config, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	configPath := findConfigFile(configArg)
	cfg, err := config.LoadConfig(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: %s not found, using defaults", configPath)
		cfg, err = &config.Config{}, nil
		configPath = ""
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config %s: %w", configPath, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	sl := cfg.Sentryline
	if err := logger.Init(logger.Options{
		Enabled: sl.Logging.Enabled,
		Level:   sl.Logging.Level,
		Format:  sl.Logging.Format,
		File:    sl.Logging.File,
		Console: sl.Logging.Console,
		Service: "sentryline",
	}); err != nil {
		return nil, "", fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, configPath, nil
}

func applyEnv(cfg *config.Config) {
	sl := &cfg.Sentryline
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		sl.Store.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			sl.Store.Driver = "postgres"
		}
	}
	if v := strings.TrimSpace(os.Getenv("PERCEPTION_URL")); v != "" {
		sl.Mirror.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		sl.Intake.Redis.Addr = v
		sl.SyncState.Redis.Addr = v
	}
}

func applyDefaults(cfg *config.Config) {
	sl := &cfg.Sentryline

	if sl.Server.Addr == "" {
		sl.Server.Addr = ":8080"
	}
	if sl.Server.ReadTimeout <= 0 {
		sl.Server.ReadTimeout = 15 * time.Second
	}
	if sl.Server.WriteTimeout <= 0 {
		sl.Server.WriteTimeout = 15 * time.Second
	}
	if sl.Server.ShutdownTimeout <= 0 {
		sl.Server.ShutdownTimeout = 10 * time.Second
	}
	if sl.Server.Mode == "" {
		sl.Server.Mode = "release"
	}

	if sl.Store.Driver == "" {
		sl.Store.Driver = "sqlite"
	}
	if sl.Store.DSN == "" {
		sl.Store.DSN = "sentryline.db"
	}

	if sl.Mirror.Timeout <= 0 {
		sl.Mirror.Timeout = 5 * time.Second
	}

	if sl.Intake.Workers <= 0 {
		sl.Intake.Workers = 4
	}
	if sl.Intake.Redis.Addr == "" {
		sl.Intake.Redis.Addr = "127.0.0.1:6379"
	}
	if sl.Intake.Redis.Key == "" {
		sl.Intake.Redis.Key = "sentryline:events"
	}
	if sl.Intake.Redis.BlockTimeout <= 0 {
		sl.Intake.Redis.BlockTimeout = 5 * time.Second
	}

	if sl.SyncState.Redis.Addr == "" {
		sl.SyncState.Redis.Addr = "127.0.0.1:6379"
	}
	if sl.SyncState.Redis.KeyPrefix == "" {
		sl.SyncState.Redis.KeyPrefix = "sentryline:sync_state"
	}

	if sl.Hub.HeartbeatInterval <= 0 {
		sl.Hub.HeartbeatInterval = 30 * time.Second
	}
	if sl.Hub.BufferSize <= 0 {
		sl.Hub.BufferSize = 256
	}
	if sl.Hub.Journal.File.Path == "" {
		sl.Hub.Journal.File.Path = "output/notifications.jsonl"
	}

	if sl.Analytics.StatsWindow <= 0 {
		sl.Analytics.StatsWindow = 24 * time.Hour
	}
	if sl.Analytics.HeatmapCellSize <= 0 {
		sl.Analytics.HeatmapCellSize = 50
	}

	if sl.Metrics.Path == "" {
		sl.Metrics.Path = "/metrics"
	}

	if sl.Logging.Level == "" {
		sl.Logging.Level = "info"
	}
}
