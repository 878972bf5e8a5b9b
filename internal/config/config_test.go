package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/fill-ledger/internal/classify"
	"github.com/atmx/fill-ledger/internal/store"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "DATABASE_URL", "REDIS_URL", "LEDGER_CSV"} {
		t.Setenv(k, "")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, store.BackendFile, cfg.Store.Backend)
	assert.Equal(t, store.DefaultCSVPath, cfg.Store.CSVPath)
	assert.Positive(t, cfg.Store.ParseWorkers)
	assert.Equal(t, "json", cfg.Logging.Format)

	th, err := cfg.ClassifyThresholds()
	require.NoError(t, err)
	def := classify.DefaultThresholds()
	assert.True(t, th.LargePositionUSD.Equal(def.LargePositionUSD))
	assert.True(t, th.DustValueUSD.Equal(def.DustValueUSD))
	assert.Equal(t, def.StaleDays, th.StaleDays)
	assert.Equal(t, def.NearStaleWindowDays, th.NearStaleWindowDays)
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeTempFile(t, `
server:
  port: "9000"
  shutdown_timeout: 2s
store:
  backend: sqlite
  sqlite_path: /tmp/ledger.db
  cache_ttl: 1m
ledger:
  exclude_failed_fills: true
thresholds:
  large_position_usd: 75.5
  stale_days: 14
  near_stale_window_days: 0
  dust_value_usd: "0.05"
report:
  activity_limit: 50
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DefaultReadTimeout, cfg.Server.ReadTimeout)
	assert.Equal(t, store.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, time.Minute, cfg.Store.CacheTTL)
	assert.True(t, cfg.Ledger.ExcludeFailedFills)
	assert.Equal(t, 50, cfg.Report.ActivityLimit)

	th, err := cfg.ClassifyThresholds()
	require.NoError(t, err)
	assert.True(t, th.LargePositionUSD.Equal(decimal.RequireFromString("75.5")))
	assert.True(t, th.DustValueUSD.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, 14, th.StaleDays)
	assert.Equal(t, 0, th.NearStaleWindowDays, "explicit zero window is kept")

	opts := cfg.StoreOptions()
	assert.Equal(t, "/tmp/ledger.db", opts.SQLitePath)
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_LEDGER_DIR", "/data")
	path := writeTempFile(t, `
store:
  csv_path: ${TEST_LEDGER_DIR}/fills.csv
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/fills.csv", cfg.Store.CSVPath)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LEDGER_CSV", "/var/lib/fills.csv")

	cfg, err := Parse([]byte("server:\n  port: \"9000\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, store.BackendPostgres, cfg.Store.Backend, "DATABASE_URL selects postgres")
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.RedisURL)
	assert.Equal(t, "/var/lib/fills.csv", cfg.Store.CSVPath)
}

func TestEnvDoesNotOverrideExplicitBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	cfg, err := Parse([]byte("store:\n  backend: memory\n"))
	require.NoError(t, err)
	assert.Equal(t, store.BackendMemory, cfg.Store.Backend)
}

func TestValidate_Errors(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"bad port":           "server:\n  port: \"99999\"\n",
		"unknown backend":    "store:\n  backend: mongo\n",
		"postgres no url":    "store:\n  backend: postgres\n",
		"bad decimal":        "thresholds:\n  large_position_usd: lots\n",
		"positive loss":      "thresholds:\n  large_loss_usd: 5\n",
		"window above stale": "thresholds:\n  stale_days: 3\n  near_stale_window_days: 5\n",
		"bad log format":     "logging:\n  format: xml\n",
		"negative workers":   "store:\n  parse_workers: -1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestThresholdErrorIsTyped(t *testing.T) {
	clearEnv(t)
	_, err := Parse([]byte("thresholds:\n  position_epsilon: 0\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, classify.ErrInvalidThreshold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}
