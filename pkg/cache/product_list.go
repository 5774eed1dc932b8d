package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"catalogpanel/pkg/domain"
)

const (
	defaultKey = "catalog:products:list"
	defaultTTL = 30 * time.Second
)

// setIfGeneration writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if not current then
  current = "0"
end
if current ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// ProductListCache holds the newest-first product list as one JSON value.
// A generation counter, bumped on every invalidation, keeps a fill that read
// the store before a mutation from writing its stale list back.
type ProductListCache struct {
	client redis.UniversalClient
	key    string
	genKey string
	ttl    time.Duration
}

// NewProductListCache wraps client. Empty prefix and zero ttl use defaults.
func NewProductListCache(client redis.UniversalClient, prefix string, ttl time.Duration) *ProductListCache {
	key := defaultKey
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		key = prefix + ":products:list"
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ProductListCache{client: client, key: key, genKey: key + ":gen", ttl: ttl}
}

// Get returns the cached list. ok is false on a miss.
func (c *ProductListCache) Get(ctx context.Context) ([]domain.Product, bool, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read product cache: %w", err)
	}
	var products []domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, false, fmt.Errorf("decode product cache: %w", err)
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, true, nil
}

// Generation returns the current invalidation counter. Read it before
// loading the list from the store and hand it back to Set.
func (c *ProductListCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read product cache generation: %w", err)
	}
	return gen, nil
}

// Set replaces the cached list unless the cache was invalidated after
// generation was read. stored is false when the write was skipped.
func (c *ProductListCache) Set(ctx context.Context, generation int64, products []domain.Product) (bool, error) {
	if products == nil {
		products = []domain.Product{}
	}
	raw, err := json.Marshal(products)
	if err != nil {
		return false, fmt.Errorf("encode product cache: %w", err)
	}
	res, err := setIfGeneration.Run(ctx, c.client,
		[]string{c.key, c.genKey},
		strconv.FormatInt(generation, 10), raw, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("write product cache: %w", err)
	}
	return res == 1, nil
}

// Invalidate drops the cached list and bumps the generation.
func (c *ProductListCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate product cache: %w", err)
	}
	return nil
}
