package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type LRU struct {
	entries *expirable.LRU[string, []byte]
}

var _ Cache = (*LRU)(nil)

// NewLRU keeps at most size entries, each for at most ttl (0 disables expiry).
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{entries: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *LRU) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok := c.entries.Get(key)
	return value, ok, nil
}

func (c *LRU) Set(ctx context.Context, key string, value []byte) error {
	c.entries.Add(key, value)
	return nil
}

func (c *LRU) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		c.entries.Remove(key)
	}
	return nil
}

func (c *LRU) Purge(ctx context.Context) error {
	c.entries.Purge()
	return nil
}

func (c *LRU) Len() int {
	return c.entries.Len()
}

func (c *LRU) Close() error {
	return nil
}
