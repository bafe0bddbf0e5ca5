package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"edu_insight_backend/internal/model"
	"edu_insight_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
)

// AnalyticsCache 分析快照缓存。并发写同键时后写覆盖先写。
type AnalyticsCache interface {
	Get(ctx context.Context, key string) (*model.CrossCourseAnalyticsResponse, bool)
	Set(ctx context.Context, key string, resp *model.CrossCourseAnalyticsResponse)
}

type memoryCacheEntry struct {
	resp     *model.CrossCourseAnalyticsResponse
	storedAt time.Time
}

// MemoryAnalyticsCache 进程内缓存，超出容量时淘汰最旧条目。
type MemoryAnalyticsCache struct {
	mu         sync.Mutex
	entries    map[string]memoryCacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewMemoryAnalyticsCache(ttl time.Duration, maxEntries int) *MemoryAnalyticsCache {
	return &MemoryAnalyticsCache{
		entries:    make(map[string]memoryCacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryAnalyticsCache) Get(_ context.Context, key string) (*model.CrossCourseAnalyticsResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		monitoring.AnalyticsCacheOps.WithLabelValues("miss").Inc()
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		monitoring.AnalyticsCacheOps.WithLabelValues("miss").Inc()
		return nil, false
	}
	monitoring.AnalyticsCacheOps.WithLabelValues("hit").Inc()
	return entry.resp, true
}

func (c *MemoryAnalyticsCache) Set(_ context.Context, key string, resp *model.CrossCourseAnalyticsResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = memoryCacheEntry{resp: resp, storedAt: c.now()}
}

func (c *MemoryAnalyticsCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.storedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// RedisAnalyticsCache 多实例部署时的共享缓存，TTL 交给 Redis 管理。
type RedisAnalyticsCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisAnalyticsCache(client *redis.Client, ttl time.Duration) *RedisAnalyticsCache {
	return &RedisAnalyticsCache{Client: client, TTL: ttl}
}

func (c *RedisAnalyticsCache) Get(ctx context.Context, key string) (*model.CrossCourseAnalyticsResponse, bool) {
	raw, err := c.Client.Get(ctx, "analytics:snapshot:"+key).Bytes()
	if err != nil {
		monitoring.AnalyticsCacheOps.WithLabelValues("miss").Inc()
		return nil, false
	}
	var resp model.CrossCourseAnalyticsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		monitoring.AnalyticsCacheOps.WithLabelValues("miss").Inc()
		return nil, false
	}
	monitoring.AnalyticsCacheOps.WithLabelValues("hit").Inc()
	return &resp, true
}

func (c *RedisAnalyticsCache) Set(ctx context.Context, key string, resp *model.CrossCourseAnalyticsResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	c.Client.Set(ctx, "analytics:snapshot:"+key, raw, c.TTL)
}
