package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/cristata/pkg/async"
	"github.com/platinummonkey/cristata/pkg/observability"
)

// backfillTimeout bounds one write of resolved slugs to redis
const backfillTimeout = 2 * time.Second

// CacheConfig tunes the team slug cache
type CacheConfig struct {
	// Tenant namespaces the shared redis keys.
	Tenant string
	// Size is the number of slugs kept in process.
	Size int
	// TTL applies to both tiers.
	TTL time.Duration
}

// DefaultCacheConfig returns the default cache tuning for a tenant
func DefaultCacheConfig(tenant string) CacheConfig {
	return CacheConfig{Tenant: tenant, Size: 512, TTL: 10 * time.Minute}
}

// CacheStats counts lookups by tier
type CacheStats struct {
	L1Hits int64
	L2Hits int64
	Misses int64
}

// TeamCache wraps a TeamResolver with an in-process LRU and an optional
// shared redis tier. Concurrent misses for the same slug set share one
// lookup. Resolved slugs reach redis in the background.
type TeamCache struct {
	config  CacheConfig
	next    TeamResolver
	l1      *lru.LRU[string, string]
	redis   *redis.Client
	group   singleflight.Group
	metrics *observability.Metrics
	// backfills hold a read lock while writing to redis; invalidation
	// takes the write lock
	backfills sync.RWMutex

	l1Hits atomic.Int64
	l2Hits atomic.Int64
	misses atomic.Int64
}

// NewTeamCache creates a cache in front of next. rdb may be nil.
func NewTeamCache(config CacheConfig, next TeamResolver, rdb *redis.Client) *TeamCache {
	if config.Size <= 0 {
		config.Size = 512
	}
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}
	return &TeamCache{
		config: config,
		next:   next,
		l1:     lru.NewLRU[string, string](config.Size, nil, config.TTL),
		redis:  rdb,
	}
}

// WithMetrics reports lookups to the cache metrics
func (c *TeamCache) WithMetrics(m *observability.Metrics) *TeamCache {
	c.metrics = m
	return c
}

func (c *TeamCache) key(slug string) string {
	return fmt.Sprintf("cristata:%s:team-slug:%s", c.config.Tenant, slug)
}

// ResolveSlugs implements TeamResolver
func (c *TeamCache) ResolveSlugs(ctx context.Context, slugs []string) (map[string]string, error) {
	out := make(map[string]string, len(slugs))
	var missing []string
	for _, slug := range slugs {
		if id, ok := c.l1.Get(slug); ok {
			c.l1Hits.Add(1)
			c.metrics.RecordCacheHit("team_slug", "memory")
			out[slug] = id
			continue
		}
		missing = append(missing, slug)
	}
	if len(missing) == 0 {
		return out, nil
	}

	if c.redis != nil {
		keys := make([]string, len(missing))
		for i, slug := range missing {
			keys[i] = c.key(slug)
		}
		values, err := c.redis.MGet(ctx, keys...).Result()
		if err == nil {
			remaining := missing[:0]
			for i, v := range values {
				if id, ok := v.(string); ok && id != "" {
					c.l2Hits.Add(1)
					c.metrics.RecordCacheHit("team_slug", "redis")
					out[missing[i]] = id
					c.l1.Add(missing[i], id)
					continue
				}
				remaining = append(remaining, missing[i])
			}
			missing = remaining
		}
		// a redis outage degrades to the source of truth
	}
	if len(missing) == 0 {
		return out, nil
	}

	sort.Strings(missing)
	v, err, _ := c.group.Do(strings.Join(missing, ","), func() (interface{}, error) {
		return c.next.ResolveSlugs(ctx, missing)
	})
	if err != nil {
		return nil, err
	}
	c.misses.Add(int64(len(missing)))
	for range missing {
		c.metrics.RecordCacheMiss("team_slug")
	}

	resolved := v.(map[string]string)
	for slug, id := range resolved {
		out[slug] = id
		c.l1.Add(slug, id)
	}
	c.backfill(ctx, resolved)
	return out, nil
}

// backfill writes resolved slugs to redis without holding up the caller
func (c *TeamCache) backfill(ctx context.Context, resolved map[string]string) {
	if c.redis == nil || len(resolved) == 0 {
		return
	}
	c.backfills.RLock()
	async.SafeGo(ctx, backfillTimeout, "backfill team slugs", func(ctx context.Context) error {
		defer c.backfills.RUnlock()
		pipe := c.redis.Pipeline()
		for slug, id := range resolved {
			pipe.Set(ctx, c.key(slug), id, c.config.TTL)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis backfill failed: %w", err)
		}
		return nil
	})
}

// Flush waits for background redis writes to finish
func (c *TeamCache) Flush() {
	c.backfills.Lock()
	defer c.backfills.Unlock()
}

// Invalidate drops a slug from both tiers. Pending backfills land first so
// they cannot restore the slug afterwards.
func (c *TeamCache) Invalidate(ctx context.Context, slug string) error {
	c.l1.Remove(slug)
	if c.redis == nil {
		return nil
	}
	c.backfills.Lock()
	defer c.backfills.Unlock()
	if err := c.redis.Del(ctx, c.key(slug)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Stats returns lookup counters
func (c *TeamCache) Stats() CacheStats {
	return CacheStats{
		L1Hits: c.l1Hits.Load(),
		L2Hits: c.l2Hits.Load(),
		Misses: c.misses.Load(),
	}
}
