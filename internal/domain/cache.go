package domain

import (
	"context"
	"time"
)

// Cache is a tenant-partitioned byte cache. The score store reads snapshots
// through it; a miss is (nil, nil), never an error.
type Cache interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores value for ttl; zero keeps it until evicted.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, tenantID string, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and sizes the cache.
type CacheConfig struct {
	// Type is "memory" (in-process LRU) or "redis".
	Type string `env:"KESTREL_CACHE_TYPE"`

	LocalMaxSize int `env:"KESTREL_CACHE_LOCAL_MAX_SIZE"`
	// LocalTTL caps how long the in-process tier keeps an entry when it
	// fronts Redis.
	LocalTTL time.Duration `env:"KESTREL_CACHE_LOCAL_TTL"`

	RedisAddr     string `env:"KESTREL_REDIS_ADDR"`
	RedisPassword string `env:"KESTREL_REDIS_PASSWORD"`
	RedisDB       int    `env:"KESTREL_REDIS_DB"`

	// EnableTwoPhase puts the LRU in front of Redis.
	EnableTwoPhase bool `env:"KESTREL_CACHE_TWO_PHASE"`

	// SnapshotTTL bounds how long a cached score snapshot may be served.
	SnapshotTTL time.Duration `env:"KESTREL_CACHE_SNAPSHOT_TTL"`
}
