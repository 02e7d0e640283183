package crawler

import (
	"context"
	"log/slog"

	"github.com/Tchindavaldo/yuunna-backend/internal/model"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"
)

// Tier 标识记录来自哪一层数据源。
type Tier string

const (
	TierScrape      Tier = "taobao_direct"
	TierFallbackAPI Tier = "fallback_api"
	TierDemo        Tier = "demo"
)

// FallbackSource 备用数据源。
type FallbackSource interface {
	Search(ctx context.Context, keyword string, limit int) ([]model.ListingRecord, error)
	Demo(limit int) []model.ListingRecord
}

// FetchOptions 控制一次抓取。
type FetchOptions struct {
	Max           int  // 最多返回条数，<= 0 表示全部
	AllowFallback bool // 抓取失败或无结果时是否允许降级
}

// Result 抓取结果及其来源层级。
type Result struct {
	Records []model.ListingRecord
	Tier    Tier
}

// Chain 依次尝试：浏览器抓取 → 备用 API → 演示数据。
type Chain struct {
	primary  PageFetcher
	fallback FallbackSource
	logger   *slog.Logger
}

// NewChain 创建降级链，fallback 为 nil 时只做抓取。
func NewChain(primary PageFetcher, fallback FallbackSource, logger *slog.Logger) *Chain {
	return &Chain{primary: primary, fallback: fallback, logger: logger}
}

// Fetch 抓取 keyword 的第 page 页。
//
// 不允许降级时，抓取错误原样返回；允许降级时只要有任一层给出数据就不返回错误，
// 最后一层演示数据保证结果非空。
func (c *Chain) Fetch(ctx context.Context, keyword string, page int, opts FetchOptions) (Result, error) {
	records, err := c.primary.FetchPage(ctx, keyword, page, opts.Max)
	if err == nil && len(records) > 0 {
		metrics.FallbackTierTotal.WithLabelValues(string(TierScrape)).Inc()
		return Result{Records: records, Tier: TierScrape}, nil
	}
	if !opts.AllowFallback || c.fallback == nil {
		if err == nil {
			metrics.FallbackTierTotal.WithLabelValues(string(TierScrape)).Inc()
		}
		return Result{Records: records, Tier: TierScrape}, err
	}

	attrs := []any{slog.String("keyword", keyword), slog.Int("page", page)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	c.logger.Warn("scrape produced nothing, trying fallback api", attrs...)

	records, ferr := c.fallback.Search(ctx, keyword, opts.Max)
	if ferr == nil && len(records) > 0 {
		metrics.FallbackTierTotal.WithLabelValues(string(TierFallbackAPI)).Inc()
		return Result{Records: records, Tier: TierFallbackAPI}, nil
	}
	if ferr != nil {
		c.logger.Warn("fallback api failed, serving demo data", slog.String("keyword", keyword), slog.String("error", ferr.Error()))
	}

	metrics.FallbackTierTotal.WithLabelValues(string(TierDemo)).Inc()
	return Result{Records: c.fallback.Demo(opts.Max), Tier: TierDemo}, nil
}

// FetchPage 让 Chain 本身也满足 PageFetcher（总是允许降级）。
func (c *Chain) FetchPage(ctx context.Context, keyword string, page, max int) ([]model.ListingRecord, error) {
	res, err := c.Fetch(ctx, keyword, page, FetchOptions{Max: max, AllowFallback: true})
	return res.Records, err
}
