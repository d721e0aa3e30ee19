package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiebiao/freshmart/pkg/circuitbreaker"
	"github.com/xiebiao/freshmart/pkg/metrics"
)

// AvailabilityCache short-lived cache of display availability
//
// Design notes:
//  1. value key: avail:{store}:{product}:{variant}; index key
//     avail:{store}:{product}:keys lists the value keys of one product so a
//     mutation can drop every variant at once
//  2. the TTL bounds staleness caused by the clock (a batch expiring needs no
//     write, so nothing invalidates it)
//  3. feasibility checks and deductions never read this cache
//  4. calls go through a circuit breaker; when Redis is down the caller
//     computes from the store
type AvailabilityCache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewAvailabilityCache creates the cache
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{
		client:  client,
		ttl:     ttl,
		breaker: circuitbreaker.NewCircuitBreaker("redis-availability", circuitbreaker.DefaultConfig()),
	}
}

func productKey(storeID, productID string) string {
	return fmt.Sprintf("avail:%s:%s", storeID, productID)
}

func indexKey(storeID, productID string) string {
	return productKey(storeID, productID) + ":keys"
}

func availabilityKey(storeID, productID, variantSKU string) string {
	if variantSKU == "" {
		variantSKU = "*"
	}
	return productKey(storeID, productID) + ":" + variantSKU
}

// Get returns the cached quantity; ok is false on a miss
func (c *AvailabilityCache) Get(ctx context.Context, storeID, productID, variantSKU string) (quantity int64, ok bool, err error) {
	err = c.breaker.Execute(func() error {
		val, err := c.client.Get(ctx, availabilityKey(storeID, productID, variantSKU)).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		quantity, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			// unreadable entry, treat as a miss
			quantity = 0
			return nil
		}
		ok = true
		return nil
	})

	switch {
	case err != nil:
		metrics.RecordCacheLookup(metrics.ResultError)
	case ok:
		metrics.RecordCacheLookup(metrics.ResultHit)
	default:
		metrics.RecordCacheLookup(metrics.ResultMiss)
	}
	return quantity, ok, err
}

// Set stores quantity for the cache TTL
func (c *AvailabilityCache) Set(ctx context.Context, storeID, productID, variantSKU string, quantity int64) error {
	key := availabilityKey(storeID, productID, variantSKU)
	index := indexKey(storeID, productID)

	return c.breaker.Execute(func() error {
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, quantity, c.ttl)
			pipe.SAdd(ctx, index, key)
			pipe.Expire(ctx, index, 2*c.ttl)
			return nil
		})
		return err
	})
}

// Invalidate drops every cached variant of a product
func (c *AvailabilityCache) Invalidate(ctx context.Context, storeID, productID string) error {
	index := indexKey(storeID, productID)

	return c.breaker.Execute(func() error {
		keys, err := c.client.SMembers(ctx, index).Result()
		if err != nil {
			return err
		}
		return c.client.Del(ctx, append(keys, index)...).Err()
	})
}
