// Package cache keeps short-lived copies of live metric snapshots in
// Redis so one scheduler firing with many rules per application reads the
// live backend once.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"pulseboard/internal/telemetry"
)

const snapshotKeyPrefix = "snapshot:"

type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotCache(addr, password string, db int, ttl time.Duration) (*SnapshotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &SnapshotCache{client: client, ttl: ttl}, nil
}

func (c *SnapshotCache) Get(ctx context.Context, application string) (map[string]float64, bool) {
	data, err := c.client.Get(ctx, snapshotKeyPrefix+application).Bytes()
	if err != nil {
		telemetry.SnapshotCacheMisses.Inc()
		return nil, false
	}
	var snapshot map[string]float64
	if err := json.Unmarshal(data, &snapshot); err != nil {
		telemetry.SnapshotCacheMisses.Inc()
		return nil, false
	}
	telemetry.SnapshotCacheHits.Inc()
	return snapshot, true
}

func (c *SnapshotCache) Set(ctx context.Context, application string, snapshot map[string]float64) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	// best effort, a miss next time just re-reads the live backend
	_ = c.client.Set(ctx, snapshotKeyPrefix+application, data, c.ttl).Err()
}

func (c *SnapshotCache) Close() error {
	return c.client.Close()
}
