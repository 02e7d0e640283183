// Package fallback 在淘宝抓取不可用时提供替代商品数据。
//
// 数据来自公开的 fakestoreapi，按关键词过滤后换算成人民币价格；
// 接口不可用时返回固定的演示商品。
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/config"
	"github.com/Tchindavaldo/yuunna-backend/internal/model"
)

const defaultAPIURL = "https://fakestoreapi.com/products"

// apiProduct 是 fakestoreapi 返回的商品结构。
type apiProduct struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Rating      *struct {
		Rate  float64 `json:"rate"`
		Count int     `json:"count"`
	} `json:"rating"`
}

// Provider 备用商品数据源。
type Provider struct {
	client      *http.Client
	apiURL      string
	priceFactor float64
	logger      *slog.Logger
}

// NewProvider 创建备用数据源。
func NewProvider(cfg config.FallbackConfig, logger *slog.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	factor := cfg.PriceFactor
	if factor <= 0 {
		factor = 7.2
	}
	return &Provider{
		client:      &http.Client{Timeout: timeout},
		apiURL:      apiURL,
		priceFactor: factor,
		logger:      logger,
	}
}

// Search 拉取备用商品并按关键词过滤，最多返回 limit 条（<= 0 表示全部）。
//
// 关键词在标题、描述、分类中做不区分大小写的子串匹配；过滤结果为空不是错误。
func (p *Provider) Search(ctx context.Context, keyword string, limit int) ([]model.ListingRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fallback request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fallback api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fallback api status %d", resp.StatusCode)
	}

	var products []apiProduct
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("parse fallback api response: %w", err)
	}

	kw := strings.ToLower(strings.TrimSpace(keyword))
	records := make([]model.ListingRecord, 0)
	for _, prod := range products {
		if kw != "" && !matches(prod, kw) {
			continue
		}
		records = append(records, p.toRecord(prod))
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	p.logger.Info("fallback products loaded", slog.String("keyword", keyword), slog.Int("count", len(records)))
	return records, nil
}

// Fetch 与 Search 相同，但任何失败都返回演示数据，不返回错误。
func (p *Provider) Fetch(ctx context.Context, keyword string, limit int) []model.ListingRecord {
	records, err := p.Search(ctx, keyword, limit)
	if err != nil {
		p.logger.Warn("fallback api failed, using demo products", slog.String("error", err.Error()))
		return p.Demo(limit)
	}
	return records
}

// Demo 返回演示商品，最多 limit 条（<= 0 表示全部）。
func (p *Provider) Demo(limit int) []model.ListingRecord {
	return Demo(limit)
}

func matches(prod apiProduct, kw string) bool {
	return strings.Contains(strings.ToLower(prod.Title), kw) ||
		strings.Contains(strings.ToLower(prod.Description), kw) ||
		strings.Contains(strings.ToLower(prod.Category), kw)
}

func (p *Provider) toRecord(prod apiProduct) model.ListingRecord {
	rec := model.ListingRecord{
		Title:    prod.Title,
		Price:    "¥" + strconv.FormatInt(int64(math.Round(prod.Price*p.priceFactor)), 10),
		ImageURL: prod.Image,
		Link:     fmt.Sprintf("https://taobao.com/product/%d", prod.ID),
		Seller:   "FakeStore",
	}
	if prod.Rating != nil && prod.Rating.Count > 0 {
		rec.SalesText = fmt.Sprintf("%d sold", prod.Rating.Count)
	}
	return rec
}

var demoProducts = []model.ListingRecord{
	{
		Title:     "fictif",
		Price:     "¥1440",
		ImageURL:  "https://fakestoreapi.com/img/81QpkIctqPL._AC_SX679_.jpg",
		Link:      "https://taobao.com/product/demo1",
		Seller:    "FakeStore",
		SalesText: "120 sold",
	},
	{
		Title:     "T-shirt Homme Casual",
		Price:     "¥161",
		ImageURL:  "https://fakestoreapi.com/img/71-3HjGNDUL._AC_SY879._SX._UX._SY._UY_.jpg",
		Link:      "https://taobao.com/product/demo2",
		Seller:    "FakeStore",
		SalesText: "259 sold",
	},
	{
		Title:     "Disque SSD 1TB",
		Price:     "¥785",
		ImageURL:  "https://fakestoreapi.com/img/61U7T1koQqL._AC_SX679_.jpg",
		Link:      "https://taobao.com/product/demo4",
		Seller:    "FakeStore",
		SalesText: "319 sold",
	},
}

// Demo 返回演示商品的副本，第一条固定为 "fictif"。
func Demo(limit int) []model.ListingRecord {
	n := len(demoProducts)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.ListingRecord, n)
	copy(out, demoProducts[:n])
	return out
}
