package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/pulsegate/internal/domain/model"
	"github.com/okian/pulsegate/pkg/metrics"
)

// keyPrefix namespaces notification keys so the store can share a redis
// instance with other tenants.
const keyPrefix = "pulsegate:notification:"

// scanBatch is the COUNT hint for SCAN during startup reload.
const scanBatch = 100

// RedisStore persists notifications as JSON values keyed by notification ID.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a store backed by the given redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromAddr dials a single redis instance.
func NewRedisStoreFromAddr(addr string, db int) *RedisStore {
	return NewRedisStore(redis.NewClient(&redis.Options{Addr: addr, DB: db}))
}

// Ping verifies connectivity. Called once at startup so a misconfigured
// address fails fast instead of on the first emergency.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrStore, err)
	}
	return nil
}

// Save writes the notification, creating or overwriting by ID.
func (s *RedisStore) Save(ctx context.Context, n model.QueuedNotification) error {
	start := time.Now()
	data, err := json.Marshal(n)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if err := s.client.Set(ctx, keyPrefix+n.ID, data, 0).Err(); err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("%w: save %s: %v", ErrStore, n.ID, err)
	}
	metrics.RecordStoreLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// LoadAll scans the notification keyspace and decodes every entry. Entries
// that fail to decode are skipped rather than blocking the reload.
func (s *RedisStore) LoadAll(ctx context.Context) ([]model.QueuedNotification, error) {
	start := time.Now()
	var out []model.QueuedNotification

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue // deleted between scan and get
		}
		if err != nil {
			metrics.RecordStoreError()
			return nil, fmt.Errorf("%w: load %s: %v", ErrStore, iter.Val(), err)
		}
		var n model.QueuedNotification
		if err := json.Unmarshal(data, &n); err != nil {
			metrics.RecordStoreError()
			continue
		}
		out = append(out, n)
	}
	if err := iter.Err(); err != nil {
		metrics.RecordStoreError()
		return nil, fmt.Errorf("%w: scan: %v", ErrStore, err)
	}

	metrics.RecordStoreLatency(float64(time.Since(start).Milliseconds()))
	return out, nil
}

// Delete removes the notification by ID.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	start := time.Now()
	removed, err := s.client.Del(ctx, keyPrefix+id).Result()
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("%w: delete %s: %v", ErrStore, id, err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	metrics.RecordStoreLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
