// Package config loads the fill-ledger configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/atmx/fill-ledger/internal/classify"
	"github.com/atmx/fill-ledger/internal/store"
)

// Config is the root configuration shared by the server and the CLI.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Report     ReportConfig     `yaml:"report"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxIngestBytes  int64         `yaml:"max_ingest_bytes"`
}

type StoreConfig struct {
	Backend      string        `yaml:"backend"`
	CSVPath      string        `yaml:"csv_path"`
	DatabaseURL  string        `yaml:"database_url"`
	SQLitePath   string        `yaml:"sqlite_path"`
	RedisURL     string        `yaml:"redis_url"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	ParseWorkers int           `yaml:"parse_workers"`
}

type LedgerConfig struct {
	// ExcludeFailedFills keeps failed orders out of positions. They are
	// still counted.
	ExcludeFailedFills bool `yaml:"exclude_failed_fills"`
}

// ThresholdsConfig holds decimal thresholds as text so that values such as
// 0.10 are taken exactly as written.
type ThresholdsConfig struct {
	LargePositionUSD    string `yaml:"large_position_usd"`
	StaleDays           int    `yaml:"stale_days"`
	NearStaleWindowDays *int   `yaml:"near_stale_window_days"`
	DustValueUSD        string `yaml:"dust_value_usd"`
	DustShareCeiling    string `yaml:"dust_share_ceiling"`
	LargeLossUSD        string `yaml:"large_loss_usd"`
	PositionEpsilon     string `yaml:"position_epsilon"`
	HighSkipRatePct     string `yaml:"high_skip_rate_pct"`
}

type ReportConfig struct {
	ActivityLimit int `yaml:"activity_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given: defaults
// plus environment overrides.
func Default() (*Config, error) {
	return finish(&Config{})
}

// Load reads a YAML config file, expands ${VAR} references, applies
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for configuration already in memory.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv lets the deployment environment override the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DatabaseURL = v
		if c.Store.Backend == "" {
			c.Store.Backend = store.BackendPostgres
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Store.RedisURL = v
	}
	if v := os.Getenv("LEDGER_CSV"); v != "" {
		c.Store.CSVPath = v
	}
}

// ClassifyThresholds converts the threshold section for the classifier.
func (c *Config) ClassifyThresholds() (classify.Thresholds, error) {
	th := classify.Thresholds{
		StaleDays: c.Thresholds.StaleDays,
	}
	if c.Thresholds.NearStaleWindowDays != nil {
		th.NearStaleWindowDays = *c.Thresholds.NearStaleWindowDays
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"large_position_usd", c.Thresholds.LargePositionUSD, &th.LargePositionUSD},
		{"dust_value_usd", c.Thresholds.DustValueUSD, &th.DustValueUSD},
		{"dust_share_ceiling", c.Thresholds.DustShareCeiling, &th.DustShareCeiling},
		{"large_loss_usd", c.Thresholds.LargeLossUSD, &th.LargeLossUSD},
		{"position_epsilon", c.Thresholds.PositionEpsilon, &th.PositionEpsilon},
		{"high_skip_rate_pct", c.Thresholds.HighSkipRatePct, &th.HighSkipRatePct},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return classify.Thresholds{}, fmt.Errorf("thresholds.%s: %q is not a decimal", f.name, f.raw)
		}
		*f.dst = v
	}
	return th, nil
}

// StoreOptions converts the store section for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:      c.Store.Backend,
		CSVPath:      c.Store.CSVPath,
		DatabaseURL:  c.Store.DatabaseURL,
		SQLitePath:   c.Store.SQLitePath,
		RedisURL:     c.Store.RedisURL,
		CacheTTL:     c.Store.CacheTTL,
		ParseWorkers: c.Store.ParseWorkers,
	}
}
