package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atmx/fill-ledger/internal/fillparse"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Backend      string
	CSVPath      string
	DatabaseURL  string
	SQLitePath   string
	RedisURL     string
	CacheTTL     time.Duration
	ParseWorkers int
}

// CacheNamespace identifies the log behind these options in a shared Redis.
// It covers the backend and its location, so two processes share cache
// entries only when they read the same log. DSNs are hashed to keep
// credentials out of key names. Memory stores are private to the process
// and get a fresh namespace on every call.
func (o Options) CacheNamespace() string {
	switch o.Backend {
	case "", BackendFile:
		return BackendFile + ":" + absPath(o.CSVPath, DefaultCSVPath)
	case BackendSQLite:
		if o.SQLitePath == ":memory:" {
			return BackendSQLite + ":" + uuid.NewString()
		}
		return BackendSQLite + ":" + absPath(o.SQLitePath, "")
	case BackendPostgres:
		return BackendPostgres + ":" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(o.DatabaseURL)).String()
	default:
		return o.Backend + ":" + uuid.NewString()
	}
}

func absPath(path, fallback string) string {
	if path == "" {
		path = fallback
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// Opened is a FillStore plus the Redis client it may own.
type Opened struct {
	FillStore
	rdb *redis.Client
}

// Close closes the store and its Redis client.
func (o *Opened) Close() error {
	err := o.FillStore.Close()
	if o.rdb != nil {
		if rerr := o.rdb.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// Open builds the configured backend. When RedisURL is set the backend is
// wrapped in a CachedStore; an unreachable Redis is logged and skipped.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*Opened, error) {
	var (
		primary FillStore
		err     error
	)
	switch opts.Backend {
	case "", BackendFile:
		primary = NewFileStore(opts.CSVPath, fillparse.WithWorkers(opts.ParseWorkers))
		log.Info("using CSV fill log", zap.String("path", opts.CSVPath))
	case BackendMemory:
		primary = NewMemoryStore()
		log.Warn("using in-memory store; fills are not persisted")
	case BackendPostgres:
		primary, err = openPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info("connected to PostgreSQL")
	case BackendSQLite:
		primary, err = NewSQLiteStore(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("using SQLite fill log", zap.String("path", opts.SQLitePath))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}

	if opts.RedisURL == "" {
		return &Opened{FillStore: primary}, nil
	}

	ropts, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		log.Warn("invalid REDIS_URL, continuing without cache", zap.Error(err))
		return &Opened{FillStore: primary}, nil
	}
	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis not reachable, continuing without cache", zap.Error(err))
		rdb.Close()
		return &Opened{FillStore: primary}, nil
	}
	log.Info("connected to Redis", zap.Duration("ttl", opts.CacheTTL))
	return &Opened{
		FillStore: NewCachedStore(primary, rdb, opts.CacheTTL, opts.CacheNamespace()),
		rdb:       rdb,
	}, nil
}

func openPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}
