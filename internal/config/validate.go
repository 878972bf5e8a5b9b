package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/atmx/fill-ledger/internal/store"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %q", c.Server.Port)
	}
	if c.Server.MaxIngestBytes < 1 {
		return errors.New("server.max_ingest_bytes must be >= 1")
	}

	switch c.Store.Backend {
	case store.BackendFile, store.BackendMemory, store.BackendSQLite:
	case store.BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("store.database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of file, memory, postgres, sqlite, got %q", c.Store.Backend)
	}
	if c.Store.ParseWorkers < 1 {
		return errors.New("store.parse_workers must be >= 1")
	}

	th, err := c.ClassifyThresholds()
	if err != nil {
		return err
	}
	if err := th.Validate(); err != nil {
		return err
	}

	if c.Report.ActivityLimit < 1 {
		return errors.New("report.activity_limit must be >= 1")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
