package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stsemulator/backend/services/sts-emulator/internal/stats"
)

// StatsStore mirrors per-client statistics into Redis for external dashboards. Nothing
// is read back by the emulator.
type StatsStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsStore returns a redis-backed stats mirror.
func NewStatsStore(client *redis.Client, ttl time.Duration) *StatsStore {
	return &StatsStore{client: client, ttl: ttl}
}

func statsKey(address string) string {
	return fmt.Sprintf("sts:stats:%s", address)
}

// SaveAll writes every record in one pipeline.
func (s *StatsStore) SaveAll(ctx context.Context, records []stats.Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range records {
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			pipe.Set(ctx, statsKey(rec.Address), data, s.ttl)
		}
		return nil
	})
	return err
}

// Get returns one mirrored record.
func (s *StatsStore) Get(ctx context.Context, address string) (*stats.Record, error) {
	result, err := s.client.Get(ctx, statsKey(address)).Result()
	if err != nil {
		return nil, err
	}
	var rec stats.Record
	if err := json.Unmarshal([]byte(result), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
