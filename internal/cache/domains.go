package cache

import (
	"sync"
	"time"
)

// DomainCache 缓存上游返回的可用域名列表。
//
// 域名列表变化很少，短暂缓存可以显著减少对上游配额的消耗。
// 缓存过期后由下一次读取触发重新拉取，这里只负责存取。
type DomainCache struct {
	mu        sync.RWMutex
	domains   []string
	fetchedAt time.Time
	ttl       time.Duration
}

// NewDomainCache 创建域名列表缓存
func NewDomainCache(ttl time.Duration) *DomainCache {
	return &DomainCache{ttl: ttl}
}

// Get 返回缓存的域名列表。缓存为空或已过期时返回 false。
func (c *DomainCache) Get() ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.domains == nil || time.Since(c.fetchedAt) > c.ttl {
		return nil, false
	}

	out := make([]string, len(c.domains))
	copy(out, c.domains)
	return out, true
}

// Set 写入新的域名列表并刷新时间戳。
func (c *DomainCache) Set(domains []string) {
	stored := make([]string, len(domains))
	copy(stored, domains)

	c.mu.Lock()
	c.domains = stored
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

// Invalidate 清空缓存，下一次读取会重新拉取。
func (c *DomainCache) Invalidate() {
	c.mu.Lock()
	c.domains = nil
	c.mu.Unlock()
}
