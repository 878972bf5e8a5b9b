package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/fill-ledger/internal/model"
)

// DefaultCacheTTL bounds how long a cached log is served.
const DefaultCacheTTL = 30 * time.Second

// CachedStore wraps a primary FillStore with a Redis read-through cache.
// Appends go to the primary and invalidate the cache; loads check Redis
// first then fall back to the primary. Redis failures only cost a cache miss.
//
// Every Append bumps a version key. A load only fills the cache if the
// version did not move while it read the primary, so a read that raced an
// append never caches the older log.
type CachedStore struct {
	primary FillStore
	rdb     *redis.Client
	ttl     time.Duration
	key     string
	verKey  string
}

// NewCachedStore creates a cached wrapper around a primary store. namespace
// separates logs that share one Redis.
func NewCachedStore(primary FillStore, rdb *redis.Client, ttl time.Duration, namespace string) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		key:     logKey(namespace),
		verKey:  logKey(namespace) + ":version",
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Append(ctx context.Context, log model.FillLog) (string, error) {
	id, err := s.primary.Append(ctx, log)
	if err != nil {
		return "", err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, s.verKey)
		p.Del(ctx, s.key)
		return nil
	})
	return id, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) Load(ctx context.Context) (model.FillLog, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if err == nil {
		var log model.FillLog
		if json.Unmarshal(data, &log) == nil {
			return log, nil
		}
	}

	// Cache miss: read from primary under WATCH of the version key. EXEC
	// fails with redis.TxFailedErr if an Append landed in between.
	var (
		log     model.FillLog
		loadErr error
		loaded  bool
	)
	s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		log, loadErr = s.primary.Load(ctx)
		if loadErr != nil {
			return loadErr
		}
		loaded = true
		data, err := json.Marshal(log)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, s.key, data, s.ttl)
			return nil
		})
		return err
	}, s.verKey)
	switch {
	case loadErr != nil:
		return model.FillLog{}, loadErr
	case loaded:
		return log, nil
	}

	// Redis refused the WATCH; serve the primary uncached.
	return s.primary.Load(ctx)
}

// Close closes the primary store. The Redis client belongs to the caller.
func (s *CachedStore) Close() error {
	return s.primary.Close()
}

func logKey(namespace string) string {
	if namespace == "" {
		namespace = "default"
	}
	return fmt.Sprintf("filllog:%s", namespace)
}
