// Package catalog 维护按关键词缓存的搜索结果，并把游标分页映射到上游的固定页码。
package catalog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/crawler"
	"github.com/Tchindavaldo/yuunna-backend/internal/model"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"
)

// UpstreamPageSize 淘宝搜索每页固定 48 条。
const UpstreamPageSize = 48

const (
	defaultTTL           = 30 * time.Minute
	defaultSweepInterval = 10 * time.Minute
)

// CacheEntry 一个关键词的缓存内容。
type CacheEntry struct {
	Products        []model.ListingRecord
	LastPageFetched int
	LastUpdated     time.Time
	Source          crawler.Tier
}

// SearchCache 进程内的关键词 → 搜索结果缓存。
//
// 读写 map 由 RWMutex 保护；但 Paginator 的"读缓存 → 抓取 → 写缓存"整个过程不加锁，
// 同一关键词的两个并发请求可能都去抓取，后写入的覆盖先写入的。
type SearchCache struct {
	mu       sync.RWMutex
	entries  map[string]*CacheEntry
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewSearchCache 创建缓存。ttl / interval 非正数时使用 30 分钟 / 10 分钟。
func NewSearchCache(ttl, interval time.Duration, logger *slog.Logger) *SearchCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &SearchCache{
		entries:  make(map[string]*CacheEntry),
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// NormalizeKey 缓存键：去空白并转小写。
func NormalizeKey(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

// Get 返回条目的副本。
func (c *SearchCache) Get(keyword string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[NormalizeKey(keyword)]
	if !ok {
		return CacheEntry{}, false
	}
	cp := *e
	cp.Products = append([]model.ListingRecord(nil), e.Products...)
	return cp, true
}

// UpsertPage 写入第 page 页的抓取结果。
//
// page 超过已抓取的最大页 → 追加到末尾；page == 1 → 整体替换；
// 其他 → 从 (page-1)*48 开始原地覆盖，必要时扩展。
func (c *SearchCache) UpsertPage(keyword string, page int, records []model.ListingRecord, source crawler.Tier) {
	key := NormalizeKey(keyword)
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = &CacheEntry{}
		c.entries[key] = e
		metrics.CacheEntries.Set(float64(len(c.entries)))
	}

	switch {
	case page > e.LastPageFetched:
		e.Products = append(e.Products, records...)
	case page == 1:
		e.Products = append([]model.ListingRecord(nil), records...)
	default:
		offset := (page - 1) * UpstreamPageSize
		if need := offset + len(records); need > len(e.Products) {
			grown := make([]model.ListingRecord, need)
			copy(grown, e.Products)
			e.Products = grown
		}
		copy(e.Products[offset:], records)
	}

	if page > e.LastPageFetched {
		e.LastPageFetched = page
	}
	if source != "" {
		e.Source = source
	}
	e.LastUpdated = c.now()
}

// Sweep 删除超过 TTL 未更新的条目，返回删除数量。
func (c *SearchCache) Sweep() int {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if e.LastUpdated.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	metrics.CacheEntries.Set(float64(size))
	if removed > 0 {
		metrics.CacheEvictionsTotal.Add(float64(removed))
		c.logger.Info("search cache swept", slog.Int("removed", removed), slog.Int("remaining", size))
	}
	return removed
}

// Len 返回当前缓存的关键词数量。
func (c *SearchCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Start 启动后台定期清理，直到 ctx 结束或调用 Stop。重复调用无副作用。
func (c *SearchCache) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go func() {
			defer close(c.done)
			ticker := time.NewTicker(c.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.stopCh:
					return
				case <-ticker.C:
					c.Sweep()
				}
			}
		}()
	})
}

// Stop 停止后台清理并等待其退出；未 Start 过时直接返回。
func (c *SearchCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.startOnce.Do(func() { close(c.done) })
	<-c.done
}
