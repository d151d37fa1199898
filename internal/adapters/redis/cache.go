package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds the sold-numbers display cache. Reads served from here are
// eventually consistent by design; the ledger never consults it.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func soldNumbersKey(raffleID string) string {
	return "raffle:sold:" + raffleID
}

func (c *Cache) GetSoldNumbers(ctx context.Context, raffleID string) ([]int, bool, error) {
	val, err := c.client.Get(ctx, soldNumbersKey(raffleID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var numbers []int
	if err := json.Unmarshal(val, &numbers); err != nil {
		return nil, false, err
	}
	return numbers, true, nil
}

func (c *Cache) SetSoldNumbers(ctx context.Context, raffleID string, numbers []int, ttl time.Duration) error {
	data, err := json.Marshal(numbers)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, soldNumbersKey(raffleID), data, ttl).Err()
}

func (c *Cache) InvalidateSoldNumbers(ctx context.Context, raffleID string) error {
	return c.client.Del(ctx, soldNumbersKey(raffleID)).Err()
}
