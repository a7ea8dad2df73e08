// Package config provides configuration management for the engram binary.
// It supports loading configuration from YAML files and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/engram-io/engram/pkg/cache"
)

// StoreKind selects a graph store implementation.
type StoreKind string

const (
	// StoreMemory is the in-process store.
	StoreMemory StoreKind = "memory"
	// StoreRedis is the Redis-backed store.
	StoreRedis StoreKind = "redis"
	// StorePostgres is the PostgreSQL-backed store.
	StorePostgres StoreKind = "postgres"
	// StoreBadger is the embedded Badger store.
	StoreBadger StoreKind = "badger"
)

// IsValid checks if the store kind is recognized.
func (k StoreKind) IsValid() bool {
	switch k {
	case StoreMemory, StoreRedis, StorePostgres, StoreBadger:
		return true
	default:
		return false
	}
}

// Default configuration values.
const (
	DefaultConfigDir      = ".engram"
	DefaultConfigFile     = "config.yaml"
	DefaultMetricsAddress = ":9102"
	DefaultBadgerPath     = "~/.engram/graph"
	DefaultRedisAddress   = "localhost:6379"
)

// StoreConfig holds the settings of one graph store.
type StoreConfig struct {
	// Kind selects the implementation (memory, redis, postgres, badger).
	Kind StoreKind `yaml:"kind"`

	// Path is the data directory for the badger store.
	Path string `yaml:"path,omitempty"`

	// Address is the host:port of the redis store.
	Address string `yaml:"address,omitempty"`

	// DSN is the connection string of the postgres store.
	DSN string `yaml:"dsn,omitempty"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	// Backend selects the recorder: "memory" or "postgres".
	Backend string `yaml:"backend"`

	// DSN is the connection string of the postgres recorder.
	DSN string `yaml:"dsn,omitempty"`
}

// CacheSettings are the protocol options. All *_ms fields are durations in
// milliseconds, matching the option names callers configure.
type CacheSettings struct {
	TTLMs                int64 `yaml:"ttl_ms"`
	HitWeight            int64 `yaml:"hit_weight"`
	ValidationWeight     int64 `yaml:"validation_weight"`
	PromoteThreshold     int64 `yaml:"promote_threshold"`
	InitialScore         int64 `yaml:"initial_score"`
	PromoteDocumentNodes bool  `yaml:"promote_document_nodes"`
	SweepIntervalMs      int64 `yaml:"sweep_interval_ms"`
	GraduationIntervalMs int64 `yaml:"graduation_interval_ms"`
	MaxFanout            int   `yaml:"max_fanout"`
}

// Config holds the engram configuration.
type Config struct {
	// Durable is the long-term plane store.
	Durable StoreConfig `yaml:"durable"`

	// Volatile is the short-term plane store.
	Volatile StoreConfig `yaml:"volatile"`

	// Cache holds the protocol settings.
	Cache CacheSettings `yaml:"cache"`

	// Audit holds the audit trail settings.
	Audit AuditConfig `yaml:"audit"`

	// MetricsAddress is the listen address of the Prometheus endpoint.
	MetricsAddress string `yaml:"metrics_address"`

	// LogLevel sets the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogJSON enables JSON log output.
	LogJSON bool `yaml:"log_json,omitempty"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	defaults := cache.DefaultConfig()
	return &Config{
		Durable:  StoreConfig{Kind: StoreBadger, Path: DefaultBadgerPath},
		Volatile: StoreConfig{Kind: StoreMemory},
		Cache: CacheSettings{
			TTLMs:                defaults.TTL.Milliseconds(),
			HitWeight:            defaults.HitWeight,
			ValidationWeight:     defaults.ValidationWeight,
			PromoteThreshold:     defaults.PromoteThreshold,
			InitialScore:         defaults.InitialScore,
			PromoteDocumentNodes: defaults.PromoteDocumentNodes,
			SweepIntervalMs:      defaults.SweepInterval.Milliseconds(),
			GraduationIntervalMs: defaults.GraduationInterval.Milliseconds(),
			MaxFanout:            defaults.MaxFanout,
		},
		Audit:          AuditConfig{Backend: "memory"},
		MetricsAddress: DefaultMetricsAddress,
		LogLevel:       "info",
	}
}

// CacheConfig converts the YAML settings into the protocol config.
func (c *Config) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.TTL = time.Duration(c.Cache.TTLMs) * time.Millisecond
	cfg.HitWeight = c.Cache.HitWeight
	cfg.ValidationWeight = c.Cache.ValidationWeight
	cfg.PromoteThreshold = c.Cache.PromoteThreshold
	cfg.InitialScore = c.Cache.InitialScore
	cfg.PromoteDocumentNodes = c.Cache.PromoteDocumentNodes
	cfg.SweepInterval = time.Duration(c.Cache.SweepIntervalMs) * time.Millisecond
	cfg.GraduationInterval = time.Duration(c.Cache.GraduationIntervalMs) * time.Millisecond
	cfg.MaxFanout = c.Cache.MaxFanout
	return cfg
}

// ConfigDir returns the configuration directory path.
// Uses $ENGRAM_CONFIG_DIR if set, otherwise ~/.engram
func ConfigDir() (string, error) {
	if dir := os.Getenv("ENGRAM_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.engram/config.yaml or $ENGRAM_CONFIG_DIR/config.yaml)
// 3. Environment variables (ENGRAM_*)
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	cfg.Durable.Path = expandPath(cfg.Durable.Path)
	cfg.Volatile.Path = expandPath(cfg.Volatile.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("ENGRAM_DURABLE_KIND"); v != "" {
		cfg.Durable.Kind = StoreKind(v)
	}
	if v := os.Getenv("ENGRAM_DURABLE_PATH"); v != "" {
		cfg.Durable.Path = v
	}
	if v := os.Getenv("ENGRAM_DURABLE_ADDRESS"); v != "" {
		cfg.Durable.Address = v
	}
	if v := os.Getenv("ENGRAM_DURABLE_DSN"); v != "" {
		cfg.Durable.DSN = v
	}
	if v := os.Getenv("ENGRAM_VOLATILE_KIND"); v != "" {
		cfg.Volatile.Kind = StoreKind(v)
	}
	if v := os.Getenv("ENGRAM_VOLATILE_PATH"); v != "" {
		cfg.Volatile.Path = v
	}
	if v := os.Getenv("ENGRAM_VOLATILE_ADDRESS"); v != "" {
		cfg.Volatile.Address = v
	}
	if v := os.Getenv("ENGRAM_VOLATILE_DSN"); v != "" {
		cfg.Volatile.DSN = v
	}
	if v := os.Getenv("ENGRAM_AUDIT_BACKEND"); v != "" {
		cfg.Audit.Backend = v
	}
	if v := os.Getenv("ENGRAM_AUDIT_DSN"); v != "" {
		cfg.Audit.DSN = v
	}
	if v := os.Getenv("ENGRAM_METRICS_ADDRESS"); v != "" {
		cfg.MetricsAddress = v
	}
	if v := os.Getenv("ENGRAM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ENGRAM_LOG_JSON"); v == "true" || v == "1" {
		cfg.LogJSON = true
	}
	if v := os.Getenv("ENGRAM_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	if v := os.Getenv("ENGRAM_TTL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.TTLMs = n
		}
	}
	if v := os.Getenv("ENGRAM_HIT_WEIGHT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.HitWeight = n
		}
	}
	if v := os.Getenv("ENGRAM_VALIDATION_WEIGHT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.ValidationWeight = n
		}
	}
	if v := os.Getenv("ENGRAM_PROMOTE_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.PromoteThreshold = n
		}
	}
	if v := os.Getenv("ENGRAM_INITIAL_SCORE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.InitialScore = n
		}
	}
	if v := os.Getenv("ENGRAM_PROMOTE_DOCUMENT_NODES"); v != "" {
		cfg.Cache.PromoteDocumentNodes = v == "true" || v == "1"
	}
	if v := os.Getenv("ENGRAM_SWEEP_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.SweepIntervalMs = n
		}
	}
	if v := os.Getenv("ENGRAM_GRADUATION_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.GraduationIntervalMs = n
		}
	}
	if v := os.Getenv("ENGRAM_MAX_FANOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxFanout = n
		}
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if !c.Durable.Kind.IsValid() {
		return fmt.Errorf("invalid durable store kind: %q", c.Durable.Kind)
	}
	if !c.Volatile.Kind.IsValid() {
		return fmt.Errorf("invalid volatile store kind: %q", c.Volatile.Kind)
	}
	if c.Durable.Kind == StorePostgres && c.Durable.DSN == "" {
		return fmt.Errorf("durable postgres store requires a dsn")
	}
	if c.Volatile.Kind == StorePostgres && c.Volatile.DSN == "" {
		return fmt.Errorf("volatile postgres store requires a dsn")
	}
	if c.Audit.Backend != "memory" && c.Audit.Backend != "postgres" {
		return fmt.Errorf("invalid audit backend: %q (must be memory or postgres)", c.Audit.Backend)
	}
	if c.Audit.Backend == "postgres" && c.Audit.DSN == "" {
		return fmt.Errorf("postgres audit backend requires a dsn")
	}
	if c.Cache.TTLMs <= 0 {
		return fmt.Errorf("ttl_ms must be positive")
	}
	if c.Cache.HitWeight < 0 || c.Cache.ValidationWeight < 0 {
		return fmt.Errorf("score weights must be non-negative")
	}
	if c.Cache.PromoteThreshold <= 0 {
		return fmt.Errorf("promote_threshold must be positive")
	}
	if c.Cache.SweepIntervalMs <= 0 {
		return fmt.Errorf("sweep_interval_ms must be positive")
	}
	if c.Cache.GraduationIntervalMs <= 0 {
		return fmt.Errorf("graduation_interval_ms must be positive")
	}
	if c.Cache.MaxFanout <= 0 {
		return fmt.Errorf("max_fanout must be positive")
	}
	return nil
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *Config) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return original if home dir lookup fails.
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
