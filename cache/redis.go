package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"example.com/horizon/services/ledger/config"
	"example.com/horizon/services/ledger/eventstore"
)

// ErrCacheMiss is returned when no cached snapshot exists for the key
var ErrCacheMiss = errors.New("snapshot not in cache")

// SnapshotCache keeps hot aggregate snapshots in Redis in front of the
// snapshot table. Entries are keyed per tenant so a cache hit can never
// cross a tenant boundary.
type SnapshotCache struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
}

// NewSnapshotCache creates a new Redis snapshot cache
func NewSnapshotCache(cfg config.RedisConfig) (*SnapshotCache, error) {
	if !cfg.Enabled {
		return &SnapshotCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &SnapshotCache{
		client:  client,
		ttl:     cfg.TTL,
		enabled: true,
	}, nil
}

// Get retrieves a cached snapshot
func (c *SnapshotCache) Get(ctx context.Context, tenantID, aggregateID string) (*eventstore.Snapshot, error) {
	if !c.enabled {
		return nil, ErrCacheMiss
	}

	data, err := c.client.Get(ctx, snapshotKey(tenantID, aggregateID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, errors.Wrap(err, "failed to get snapshot from Redis")
	}

	var snapshot eventstore.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal cached snapshot")
	}

	return &snapshot, nil
}

// Set stores a snapshot in the cache
func (c *SnapshotCache) Set(ctx context.Context, snapshot eventstore.Snapshot) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "failed to marshal snapshot for caching")
	}

	key := snapshotKey(snapshot.TenantID, snapshot.AggregateID)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to set snapshot in Redis")
	}

	return nil
}

func snapshotKey(tenantID, aggregateID string) string {
	return fmt.Sprintf("ledger:snapshot:%s:%s", tenantID, aggregateID)
}
