package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// cacheOps counts cache reads by domain and outcome (hit/miss/error).
	cacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vote_cache_reads_total",
			Help: "Total number of cache reads by domain and outcome.",
		},
		[]string{"domain", "outcome"},
	)

	// cacheInvalidations counts tag invalidation calls.
	cacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vote_cache_invalidations_total",
			Help: "Total number of tag invalidation calls.",
		},
	)
)

func init() {
	prometheus.MustRegister(cacheOps, cacheInvalidations)
}

// Cache is the Redis-backed analytics cache. Values are JSON-encoded under
// "cache:{domain}:{key}"; each entry is registered in Redis sets
// "tag:{tag}" so whole tag groups can be dropped on write.
//
// Cache is not authoritative and takes no locks: staleness up to the domain
// TTL is an accepted tradeoff for read throughput.
type Cache struct {
	rdb *redis.Client
	log zerolog.Logger
}

// New returns a Cache over an existing Redis client.
func New(rdb *redis.Client, log zerolog.Logger) *Cache {
	return &Cache{rdb: rdb, log: log}
}

// NewClient creates a Redis client for the cache with pool and timeout
// settings suited to a best-effort cache (short timeouts, small pool).
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// Health checks if the backing store is reachable.
func (c *Cache) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func cacheKey(domain, key string) string { return fmt.Sprintf("cache:%s:%s", domain, key) }
func tagKey(tag string) string           { return fmt.Sprintf("tag:%s", tag) }

// Get loads a cached value into dest and reports whether it was a hit.
// A backing-store failure or a decode failure is logged and reported as a
// miss so the caller falls through to the uncached computation.
func (c *Cache) Get(ctx context.Context, domain, key string, dest any) bool {
	raw, err := c.rdb.Get(ctx, cacheKey(domain, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			cacheOps.WithLabelValues(domain, "error").Inc()
			c.log.Warn().Err(err).Str("domain", domain).Str("key", key).Msg("cache read failed")
			return false
		}
		cacheOps.WithLabelValues(domain, "miss").Inc()
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		cacheOps.WithLabelValues(domain, "error").Inc()
		c.log.Warn().Err(err).Str("domain", domain).Str("key", key).Msg("cache entry undecodable, dropping")
		c.rdb.Del(ctx, cacheKey(domain, key))
		return false
	}
	cacheOps.WithLabelValues(domain, "hit").Inc()
	return true
}

// Set stores value under (domain, key) with the domain's policy TTL and
// registers the entry in the given tag sets. Failures are logged and ignored;
// a cache write is never allowed to fail a request.
func (c *Cache) Set(ctx context.Context, domain, key string, value any, tags ...string) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("domain", domain).Str("key", key).Msg("cache encode failed")
		return
	}

	ttl := TTL(domain)
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, cacheKey(domain, key), raw, ttl)
	for _, t := range tags {
		pipe.SAdd(ctx, tagKey(t), cacheKey(domain, key))
		// Tag sets outlive their newest member slightly so invalidation
		// still finds entries written moments before expiry.
		pipe.Expire(ctx, tagKey(t), ttl+time.Minute)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Str("domain", domain).Str("key", key).Msg("cache write failed")
	}
}

// InvalidateByTags drops every cached entry registered under any of the
// given tags, then drops the tag sets themselves. Failures are logged and
// ignored: a stale entry ages out by TTL at worst.
func (c *Cache) InvalidateByTags(ctx context.Context, tags ...string) {
	if len(tags) == 0 {
		return
	}
	cacheInvalidations.Inc()

	for _, t := range tags {
		members, err := c.rdb.SMembers(ctx, tagKey(t)).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				c.log.Warn().Err(err).Str("tag", t).Msg("cache tag lookup failed")
			}
			continue
		}
		keys := append(members, tagKey(t))
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			c.log.Warn().Err(err).Str("tag", t).Msg("cache invalidation failed")
		}
	}
}
