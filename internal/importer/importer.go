// Package importer 执行"抓取并入库"任务。
//
// 一个任务抓取关键词的第一页结果，翻译、分类、校验、去重后写入商品库，
// 每入库一条就推送 newProduct / newUserProduct 事件。
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tchindavaldo/yuunna-backend/internal/crawler"
	"github.com/Tchindavaldo/yuunna-backend/internal/model"
	"github.com/Tchindavaldo/yuunna-backend/internal/normalize"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/dedup"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/notify"

	"github.com/go-playground/validator/v10"
)

// ErrNoListings 抓取没有得到任何商品。
var ErrNoListings = errors.New("no listings found")

// Fetcher 抓取一页搜索结果。
type Fetcher interface {
	Fetch(ctx context.Context, keyword string, page int, opts crawler.FetchOptions) (crawler.Result, error)
}

// Normalizer 批量归一化。
type Normalizer interface {
	NormalizeAll(ctx context.Context, records []model.ListingRecord, opts normalize.Options) []model.Product
}

// ProductStore 商品写入。
type ProductStore interface {
	Add(ctx context.Context, p *model.Product) error
	ExistsByLink(ctx context.Context, link string) (bool, error)
}

// Deduper 商品链接去重。
type Deduper interface {
	IsDuplicate(ctx context.Context, link string) (bool, error)
	Delete(ctx context.Context, link string) error
}

// DigestSender 发送导入汇总。
type DigestSender interface {
	SendImportDigest(ctx context.Context, toEmail, keyword string, saved []model.Product, skipped int) error
}

// Report 是一次导入的统计。
type Report struct {
	JobID      string       `json:"jobId"`
	Keyword    string       `json:"keyword"`
	Source     crawler.Tier `json:"source"`
	Fetched    int          `json:"fetched"`
	Saved      int          `json:"saved"`
	Duplicates int          `json:"duplicates"`
	Invalid    int          `json:"invalid"`
	Failed     int          `json:"failed"`
}

// Skipped 返回未入库的数量。
func (r Report) Skipped() int {
	return r.Duplicates + r.Invalid + r.Failed
}

// Importer 导入流程。
type Importer struct {
	fetcher    Fetcher
	normalizer Normalizer
	store      ProductStore
	deduper    Deduper
	notifier   notify.Notifier
	digest     DigestSender
	digestTo   string
	validate   *validator.Validate
	logger     *slog.Logger
}

// Option 配置 Importer 的可选依赖。
type Option func(*Importer)

// WithDeduper 设置链接去重器。
func WithDeduper(d Deduper) Option {
	return func(i *Importer) { i.deduper = d }
}

// WithDigest 设置导入汇总邮件，to 为空时不发送。
func WithDigest(sender DigestSender, to string) Option {
	return func(i *Importer) {
		i.digest = sender
		i.digestTo = to
	}
}

// New 创建导入器。
//
// 参数:
//
//	fetcher: 抓取链
//	normalizer: 归一化器
//	store: 商品存储
//	notifier: 事件推送，nil 时不推送
//	logger: 日志记录器
func New(fetcher Fetcher, normalizer Normalizer, store ProductStore, notifier notify.Notifier, logger *slog.Logger, opts ...Option) *Importer {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	imp := &Importer{
		fetcher:    fetcher,
		normalizer: normalizer,
		store:      store,
		notifier:   notifier,
		validate:   newValidator(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// productEvent 是推送给前端的事件内容。
type productEvent struct {
	Message string        `json:"message"`
	Product model.Product `json:"product"`
}

// Run 执行一个导入任务。
//
// 抓取不降级：导入只接受真实抓取的数据。
// 单条商品的校验或写入失败只计入统计，不中断整个任务；
// 一条都没有入库时返回错误。
//
// 参数:
//
//	ctx: 上下文
//	job: 导入任务
//
// 返回值:
//
//	Report: 导入统计
//	error: 抓取失败、无结果或全部失败时返回错误
func (i *Importer) Run(ctx context.Context, job *model.ImportJob) (Report, error) {
	rep := Report{JobID: job.ID, Keyword: job.Keyword}

	res, err := i.fetcher.Fetch(ctx, job.Keyword, 1, crawler.FetchOptions{Max: job.Limit})
	rep.Source = res.Tier
	if err != nil {
		return rep, fmt.Errorf("fetch %q: %w", job.Keyword, err)
	}
	rep.Fetched = len(res.Records)
	if rep.Fetched == 0 {
		return rep, ErrNoListings
	}

	products := i.normalizer.NormalizeAll(ctx, res.Records, normalize.Options{
		UserID:          job.UserID,
		Keyword:         job.Keyword,
		CategoryKeyword: job.Keyword,
		Source:          string(res.Tier),
	})

	saved := make([]model.Product, 0, len(products))
	for idx := range products {
		p := &products[idx]
		if job.CategoryID != "" {
			p.CategoryID = job.CategoryID
		}
		p.SourceLink = dedup.CanonicalLink(p.SourceLink)

		if err := i.validate.Struct(p); err != nil {
			rep.Invalid++
			metrics.ImportedProductsTotal.WithLabelValues("invalid").Inc()
			i.logger.Debug("product rejected", slog.String("title", p.TitleOriginal), slog.String("error", err.Error()))
			continue
		}

		dup, err := i.isDuplicate(ctx, p.SourceLink)
		if err != nil {
			i.logger.Warn("dedup check failed", slog.String("link", p.SourceLink), slog.String("error", err.Error()))
		}
		if dup {
			rep.Duplicates++
			metrics.ImportedProductsTotal.WithLabelValues("duplicate").Inc()
			continue
		}

		if err := i.store.Add(ctx, p); err != nil {
			rep.Failed++
			metrics.ImportedProductsTotal.WithLabelValues("failed").Inc()
			i.logger.Error("save product failed", slog.String("id", p.ID), slog.String("error", err.Error()))
			i.releaseLink(ctx, p.SourceLink)
			continue
		}
		rep.Saved++
		saved = append(saved, *p)
		metrics.ImportedProductsTotal.WithLabelValues("saved").Inc()

		i.emit(ctx, job.UserID, *p)
	}

	i.sendDigest(ctx, job.Keyword, saved, rep.Skipped())

	i.logger.Info("import finished",
		slog.String("job_id", job.ID),
		slog.String("keyword", job.Keyword),
		slog.String("source", string(rep.Source)),
		slog.Int("fetched", rep.Fetched),
		slog.Int("saved", rep.Saved),
		slog.Int("duplicates", rep.Duplicates),
		slog.Int("invalid", rep.Invalid),
		slog.Int("failed", rep.Failed))

	if rep.Saved == 0 {
		return rep, fmt.Errorf("import %q: no product saved (%d duplicates, %d invalid, %d failed)",
			job.Keyword, rep.Duplicates, rep.Invalid, rep.Failed)
	}
	return rep, nil
}

// isDuplicate 先查 Redis 去重窗口，再查数据库；Redis 出错时只看数据库。
func (i *Importer) isDuplicate(ctx context.Context, link string) (bool, error) {
	if i.deduper != nil {
		dup, err := i.deduper.IsDuplicate(ctx, link)
		if err == nil && dup {
			return true, nil
		}
		if err != nil {
			i.logger.Warn("redis dedup unavailable, checking store", slog.String("link", link), slog.String("error", err.Error()))
		}
	}
	return i.store.ExistsByLink(ctx, link)
}

func (i *Importer) releaseLink(ctx context.Context, link string) {
	if i.deduper == nil {
		return
	}
	if err := i.deduper.Delete(ctx, link); err != nil {
		i.logger.Warn("dedup release failed", slog.String("link", link), slog.String("error", err.Error()))
	}
}

func (i *Importer) emit(ctx context.Context, userID string, p model.Product) {
	payload := productEvent{Message: "Nouveau produit", Product: p}
	if err := i.notifier.EmitGlobal(ctx, notify.EventNewProduct, payload); err != nil {
		i.logger.Warn("emit global event failed", slog.String("id", p.ID), slog.String("error", err.Error()))
	}
	if userID == "" {
		return
	}
	if err := i.notifier.EmitToRoom(ctx, userID, notify.EventNewUserProduct, payload); err != nil {
		i.logger.Warn("emit user event failed", slog.String("id", p.ID), slog.String("error", err.Error()))
	}
}

func (i *Importer) sendDigest(ctx context.Context, keyword string, saved []model.Product, skipped int) {
	if i.digest == nil || strings.TrimSpace(i.digestTo) == "" || len(saved) == 0 {
		return
	}
	if err := i.digest.SendImportDigest(ctx, i.digestTo, keyword, saved, skipped); err != nil {
		i.logger.Warn("send import digest failed", slog.String("error", err.Error()))
	}
}
