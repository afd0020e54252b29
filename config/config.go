package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Sentryline SentrylineConfig `yaml:"sentryline"`
}

// SentrylineConfig is the project configuration.
type SentrylineConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Intake    IntakeConfig    `yaml:"intake"`
	SyncState SyncStateConfig `yaml:"sync_state"`
	Hub       HubConfig       `yaml:"hub"`
	Rules     RulesConfig     `yaml:"rules"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Mode            string        `yaml:"mode"` // debug|release|test
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver       string `yaml:"driver"` // sqlite|postgres
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// MirrorConfig points at the perception service's zone endpoints.
type MirrorConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// IntakeConfig controls the optional Redis event intake.
type IntakeConfig struct {
	Enabled bool        `yaml:"enabled"`
	Workers int         `yaml:"workers"`
	Redis   RedisConfig `yaml:"redis"`
}

// SyncStateConfig controls the optional Redis sync-state ledger.
type SyncStateConfig struct {
	Enabled bool        `yaml:"enabled"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig controls Redis access.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	KeyPrefix    string        `yaml:"key_prefix"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// HubConfig controls the broadcast hub.
type HubConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	BufferSize        int           `yaml:"buffer_size"`
	Journal           JournalConfig `yaml:"journal"`
}

// JournalConfig controls the notification journal.
type JournalConfig struct {
	Enabled bool             `yaml:"enabled"`
	File    FileOutputConfig `yaml:"file"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// RulesConfig controls Sigma alert tagging rules.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AnalyticsConfig controls analytics defaults.
type AnalyticsConfig struct {
	StatsWindow     time.Duration `yaml:"stats_window"`
	HeatmapCellSize float64       `yaml:"heatmap_cell_size"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
