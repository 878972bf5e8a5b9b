package config

import (
	"runtime"
	"time"

	"github.com/atmx/fill-ledger/internal/classify"
	"github.com/atmx/fill-ledger/internal/report"
	"github.com/atmx/fill-ledger/internal/store"
)

// Default values for optional configuration fields.
const (
	DefaultPort            = "8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultMaxIngestBytes  = 32 << 20
	DefaultBackend         = store.BackendFile
	DefaultSQLitePath      = "fills.db"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultServiceName     = "fill-ledger"
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = DefaultIdleTimeout
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = DefaultRequestTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.MaxIngestBytes == 0 {
		c.Server.MaxIngestBytes = DefaultMaxIngestBytes
	}

	// Store defaults
	if c.Store.Backend == "" {
		c.Store.Backend = DefaultBackend
	}
	if c.Store.CSVPath == "" {
		c.Store.CSVPath = store.DefaultCSVPath
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = DefaultSQLitePath
	}
	if c.Store.CacheTTL == 0 {
		c.Store.CacheTTL = store.DefaultCacheTTL
	}
	if c.Store.ParseWorkers == 0 {
		c.Store.ParseWorkers = runtime.GOMAXPROCS(0)
	}

	applyThresholdDefaults(&c.Thresholds)

	if c.Report.ActivityLimit == 0 {
		c.Report.ActivityLimit = report.DefaultActivityLimit
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = DefaultServiceName
	}
}

func applyThresholdDefaults(t *ThresholdsConfig) {
	def := classify.DefaultThresholds()
	if t.LargePositionUSD == "" {
		t.LargePositionUSD = def.LargePositionUSD.String()
	}
	if t.StaleDays == 0 {
		t.StaleDays = def.StaleDays
	}
	if t.NearStaleWindowDays == nil {
		n := def.NearStaleWindowDays
		t.NearStaleWindowDays = &n
	}
	if t.DustValueUSD == "" {
		t.DustValueUSD = def.DustValueUSD.String()
	}
	if t.DustShareCeiling == "" {
		t.DustShareCeiling = def.DustShareCeiling.String()
	}
	if t.LargeLossUSD == "" {
		t.LargeLossUSD = def.LargeLossUSD.String()
	}
	if t.PositionEpsilon == "" {
		t.PositionEpsilon = def.PositionEpsilon.String()
	}
	if t.HighSkipRatePct == "" {
		t.HighSkipRatePct = def.HighSkipRatePct.String()
	}
}
