package replayguard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// RedisStore keeps replay records in Redis with a TTL equal to the retention
// window, for deployments where multiple spine instances share one guard
// state. Redis expiry replaces lazy eviction: EvictBefore is a no-op.
type RedisStore struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedisStore wraps an existing client. window bounds record lifetime.
func NewRedisStore(client *redis.Client, window time.Duration) *RedisStore {
	return &RedisStore{client: client, window: window, prefix: "spine:replay:"}
}

func (s *RedisStore) key(eventHash string) string { return s.prefix + eventHash }

func (s *RedisStore) Get(ctx context.Context, eventHash string) (contracts.ReplayRecord, bool, error) {
	raw, err := s.client.Get(ctx, s.key(eventHash)).Bytes()
	if err == redis.Nil {
		return contracts.ReplayRecord{}, false, nil
	}
	if err != nil {
		return contracts.ReplayRecord{}, false, fmt.Errorf("redis get: %w", err)
	}
	var rec contracts.ReplayRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return contracts.ReplayRecord{}, false, fmt.Errorf("corrupt replay record %s: %w", eventHash, err)
	}
	return rec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, rec contracts.ReplayRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	// SetNX keeps the first acceptance authoritative under races between
	// instances.
	ok, err := s.client.SetNX(ctx, s.key(rec.EventHash), raw, s.window).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return fmt.Errorf("replay record %s already present", rec.EventHash)
	}
	return nil
}

func (s *RedisStore) EvictBefore(ctx context.Context, _ time.Time) (int, error) {
	// Expiry is delegated to Redis TTLs.
	return 0, nil
}

func (s *RedisStore) Load(ctx context.Context) ([]contracts.ReplayRecord, error) {
	var out []contracts.ReplayRecord
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", iter.Val(), err)
		}
		var rec contracts.ReplayRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("corrupt replay record %s: %w", iter.Val(), err)
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return out, nil
}
