package catalog

import (
	"context"
	"log/slog"

	"github.com/Tchindavaldo/yuunna-backend/internal/crawler"
	"github.com/Tchindavaldo/yuunna-backend/internal/model"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"
)

// Fetcher 按上游页码抓取一页结果，crawler.Chain 实现了它。
type Fetcher interface {
	Fetch(ctx context.Context, keyword string, page int, opts crawler.FetchOptions) (crawler.Result, error)
}

// Page 一次分页查询的结果。
type Page struct {
	Items      []model.ListingRecord
	Pagination model.Pagination
	Source     crawler.Tier
}

// Paginator 把 (cursor, limit) 映射到缓存与上游页码。
type Paginator struct {
	cache   *SearchCache
	fetcher Fetcher
	logger  *slog.Logger
}

// NewPaginator 创建分页器。
func NewPaginator(cache *SearchCache, fetcher Fetcher, logger *slog.Logger) *Paginator {
	return &Paginator{cache: cache, fetcher: fetcher, logger: logger}
}

// UpstreamPage 游标对应的上游页码：0 → 1，其余为 ceil(cursor/48)。
func UpstreamPage(cursor int) int {
	if cursor <= 0 {
		return 1
	}
	return ceilDiv(cursor, UpstreamPageSize)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Page 返回 keyword 从 cursor 开始的最多 limit 条记录。
//
// 调用方负责保证 cursor >= 0、limit > 0。缓存为空且抓取失败时返回错误；
// 缓存非空时抓取失败只记日志，继续用旧数据。
func (p *Paginator) Page(ctx context.Context, keyword string, cursor, limit int) (Page, error) {
	page := UpstreamPage(cursor)
	entry, ok := p.cache.Get(keyword)

	// 游标已经越过缓存末尾，而对应页早已抓过：继续往后抓下一页
	if ok && page <= entry.LastPageFetched && cursor >= len(entry.Products) {
		page = entry.LastPageFetched + 1
	}

	needFetch := !ok || len(entry.Products) <= cursor+limit || page > entry.LastPageFetched
	if !needFetch {
		metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
	} else {
		outcome := "miss"
		if ok {
			outcome = "extend"
		}
		metrics.CacheRequestsTotal.WithLabelValues(outcome).Inc()

		empty := !ok || len(entry.Products) == 0
		res, err := p.fetcher.Fetch(ctx, keyword, page, crawler.FetchOptions{AllowFallback: empty})
		switch {
		case err != nil && empty:
			return Page{}, err
		case err != nil:
			metrics.CacheRequestsTotal.WithLabelValues("stale").Inc()
			p.logger.Warn("fetch failed, serving cached results",
				slog.String("keyword", keyword),
				slog.Int("page", page),
				slog.Int("cached", len(entry.Products)),
				slog.String("error", err.Error()))
		default:
			p.cache.UpsertPage(keyword, page, res.Records, res.Tier)
			entry, _ = p.cache.Get(keyword)
		}
	}

	return window(entry, cursor, limit), nil
}

// window 按 cursor/limit 切片并计算分页信息。
func window(entry CacheEntry, cursor, limit int) Page {
	total := len(entry.Products)
	source := entry.Source
	if source == "" {
		source = crawler.TierScrape
	}

	if cursor >= total {
		return Page{
			Items: []model.ListingRecord{},
			Pagination: model.Pagination{
				Cursor:         cursor,
				Limit:          limit,
				HasMore:        false,
				TotalAvailable: total,
			},
			Source: source,
		}
	}

	end := cursor + limit
	if end > total {
		end = total
	}
	items := append([]model.ListingRecord(nil), entry.Products[cursor:end]...)

	hasMore := cursor+limit < total || entry.LastPageFetched < ceilDiv(total, UpstreamPageSize)+1
	pg := model.Pagination{
		Cursor:         cursor,
		Limit:          limit,
		HasMore:        hasMore,
		TotalAvailable: total,
	}
	if hasMore {
		next := cursor + len(items)
		pg.NextCursor = &next
	}
	return Page{Items: items, Pagination: pg, Source: source}
}
