package cache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Stats 端点缓存统计信息
type Stats struct {
	Items   int     `json:"items"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	HitRate float64 `json:"hit_rate"`
}

// EndpointCache 进程内的充电桩回调地址缓存
type EndpointCache struct {
	items *gocache.Cache
	ttl   time.Duration

	hits   int64
	misses int64
	sets   int64
}

// NewEndpointCache 创建端点缓存，ttl 为 0 时条目不过期
func NewEndpointCache(ttl, cleanupInterval time.Duration) *EndpointCache {
	expiration := ttl
	if expiration <= 0 {
		expiration = gocache.NoExpiration
	}
	return &EndpointCache{
		items: gocache.New(expiration, cleanupInterval),
		ttl:   expiration,
	}
}

// Get 查询回调地址
func (c *EndpointCache) Get(chargePointID string) (string, bool) {
	v, ok := c.items.Get(chargePointID)
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return "", false
	}
	atomic.AddInt64(&c.hits, 1)
	return v.(string), true
}

// Set 写入回调地址
func (c *EndpointCache) Set(chargePointID, endpoint string) {
	atomic.AddInt64(&c.sets, 1)
	c.items.Set(chargePointID, endpoint, gocache.DefaultExpiration)
}

// Delete 删除回调地址
func (c *EndpointCache) Delete(chargePointID string) {
	c.items.Delete(chargePointID)
}

// Flush 清空缓存
func (c *EndpointCache) Flush() {
	c.items.Flush()
}

// GetStats 获取统计信息
func (c *EndpointCache) GetStats() Stats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	stats := Stats{
		Items:  c.items.ItemCount(),
		Hits:   hits,
		Misses: misses,
		Sets:   atomic.LoadInt64(&c.sets),
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}
