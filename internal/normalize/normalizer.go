package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/model"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/queue"
)

// Options 控制一次归一化的附加信息。
type Options struct {
	UserID          string // 归属用户
	Keyword         string // 写入 SearchKeyword
	CategoryKeyword string // 参与分类检测的额外文本，搜索接口留空
	Source          string // 数据来源层级
}

// Normalizer 把 ListingRecord 转换为 model.Product。
type Normalizer struct {
	translator Translator
	workers    int
	logger     *slog.Logger
	now        func() time.Time
}

// NewNormalizer 创建归一化器。
//
// 参数:
//
//	translator: 翻译器，nil 时不翻译
//	workers: 批量翻译的并发数
//	logger: 日志记录器
func NewNormalizer(translator Translator, workers int, logger *slog.Logger) *Normalizer {
	if workers <= 0 {
		workers = 4
	}
	return &Normalizer{
		translator: translator,
		workers:    workers,
		logger:     logger,
		now:        time.Now,
	}
}

// Normalize 归一化单条记录。
func (n *Normalizer) Normalize(ctx context.Context, rec model.ListingRecord, userID string) model.Product {
	return n.NormalizeWith(ctx, rec, Options{UserID: userID})
}

// NormalizeWith 按 opts 归一化单条记录。
func (n *Normalizer) NormalizeWith(ctx context.Context, rec model.ListingRecord, opts Options) model.Product {
	now := n.now()
	return n.build(rec, n.translateTitle(ctx, rec.Title), opts, now, NewID(now))
}

// NormalizeAll 批量归一化，标题翻译在 worker 池中并发执行，输出顺序与输入一致。
//
// 同一批次内的商品 ID 保证唯一。
func (n *Normalizer) NormalizeAll(ctx context.Context, records []model.ListingRecord, opts Options) []model.Product {
	if len(records) == 0 {
		return []model.Product{}
	}

	titles := queue.Map(ctx, n.logger, n.workers, records, func(ctx context.Context, rec model.ListingRecord) string {
		return n.translateTitle(ctx, rec.Title)
	})

	now := n.now()
	seen := make(map[string]struct{}, len(records))
	out := make([]model.Product, len(records))
	for i, rec := range records {
		id := NewID(now)
		for {
			if _, dup := seen[id]; !dup {
				break
			}
			id = NewID(now)
		}
		seen[id] = struct{}{}
		out[i] = n.build(rec, titles[i], opts, now, id)
	}
	return out
}

// translateTitle 返回翻译后的标题；不含中文、翻译失败或结果为空时返回原标题。
func (n *Normalizer) translateTitle(ctx context.Context, title string) string {
	if n.translator == nil || !ContainsCJK(title) {
		metrics.TranslationsTotal.WithLabelValues("skipped").Inc()
		return title
	}
	out, err := n.translator.Translate(ctx, title)
	if err != nil || strings.TrimSpace(out) == "" {
		metrics.TranslationsTotal.WithLabelValues("failed").Inc()
		if n.logger != nil {
			n.logger.Warn("title translation failed", slog.String("title", title), slog.String("error", errString(err)))
		}
		return title
	}
	return out
}

func (n *Normalizer) build(rec model.ListingRecord, translated string, opts Options, now time.Time, id string) model.Product {
	if translated == "" {
		translated = rec.Title
	}
	cat := DetectCategory(opts.CategoryKeyword, rec.Title+" "+translated)
	return model.Product{
		ID:              id,
		TitleOriginal:   rec.Title,
		TitleTranslated: translated,
		Price:           ParsePrice(rec.Price),
		ImageURL:        rec.ImageURL,
		SourceLink:      rec.Link,
		Seller:          rec.Seller,
		Location:        rec.Location,
		SalesText:       rec.SalesText,
		CategoryID:      cat.MainCategoryID,
		SubCategoryID:   cat.SubCategoryID,
		MainCategory:    cat.MainCategory,
		SubCategory:     cat.SubCategory,
		SearchKeyword:   opts.Keyword,
		UserID:          opts.UserID,
		Status:          model.StatusActive,
		Source:          opts.Source,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewID 生成商品 ID: taobao_<毫秒时间戳>_<0-999 随机数>。
func NewID(now time.Time) string {
	return fmt.Sprintf("taobao_%d_%d", now.UnixMilli(), rand.Intn(1000))
}
