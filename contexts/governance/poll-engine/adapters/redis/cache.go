// Package redisadapter caches finalized poll tallies in Redis.
package redisadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"plebiscite/contexts/governance/poll-engine/ports"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func resultsKey(pollID uint64) string {
	return fmt.Sprintf("poll-engine:results:%d", pollID)
}

func (c *Cache) GetResults(ctx context.Context, pollID uint64) (ports.ResultRecord, bool, error) {
	raw, err := c.client.Get(ctx, resultsKey(pollID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ports.ResultRecord{}, false, nil
		}
		return ports.ResultRecord{}, false, err
	}
	var record ports.ResultRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return ports.ResultRecord{}, false, err
	}
	return record, true, nil
}

func (c *Cache) PutResults(ctx context.Context, record ports.ResultRecord, ttl time.Duration) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, resultsKey(record.PollID), raw, ttl).Err()
}

var _ ports.ResultsCache = (*Cache)(nil)
