package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "yuunna"

var (
	// ScrapeTotal 抓取次数，按状态（success / empty / error / blocked）统计。
	ScrapeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_total",
		Help:      "Number of upstream search page scrapes by status.",
	}, []string{"status"})

	// ScrapeErrorsTotal 抓取错误，按错误类型统计。
	ScrapeErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_errors_total",
		Help:      "Scrape errors by classified type.",
	}, []string{"type"})

	// ScrapeDuration 单次抓取耗时。
	ScrapeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scrape_duration_seconds",
		Help:      "Duration of a full browser scrape session.",
		Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90, 120},
	})

	// ScrapeListings 单次抓取解析出的商品数。
	ScrapeListings = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scrape_listings",
		Help:      "Listings extracted per scraped page.",
		Buckets:   []float64{0, 1, 10, 24, 48, 96},
	})

	// BrowserActive 当前打开的浏览器会话数。
	BrowserActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "browser_sessions_active",
		Help:      "Browser sessions currently open.",
	})

	// FallbackTierTotal 结果来源层级（scrape / fallback_api / demo）。
	FallbackTierTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_tier_total",
		Help:      "Which fetch tier produced the records.",
	}, []string{"tier"})

	// CacheRequestsTotal 缓存命中情况（hit / miss / extend / stale）。
	CacheRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_cache_requests_total",
		Help:      "Search cache lookups by outcome.",
	}, []string{"outcome"})

	// CacheEntries 当前缓存的关键词数量。
	CacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "search_cache_entries",
		Help:      "Keywords currently held in the search cache.",
	})

	// CacheEvictionsTotal 被清理的缓存条目数。
	CacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_cache_evictions_total",
		Help:      "Search cache entries removed by the sweeper.",
	})

	// RateLimitWaitDuration 限流等待时长。
	RateLimitWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ratelimit_wait_seconds",
		Help:      "Time spent waiting for a scrape token.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// RateLimitTimeoutTotal 限流等待超时次数。
	RateLimitTimeoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_timeout_total",
		Help:      "Scrape token waits that ended by context cancellation.",
	})

	// TranslationsTotal 翻译结果（api / dictionary / failed / skipped）。
	TranslationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "translations_total",
		Help:      "Title translations by result.",
	}, []string{"result"})

	// ImportJobsTotal 导入任务计数（queued / skipped / succeeded / failed / rescued）。
	ImportJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_jobs_total",
		Help:      "Product import jobs by status.",
	}, []string{"status"})

	// ImportedProductsTotal 导入商品计数（saved / duplicate / invalid / failed）。
	ImportedProductsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "imported_products_total",
		Help:      "Products handled by import jobs by outcome.",
	}, []string{"outcome"})

	// JobQueueDepth 待处理导入任务数量。
	JobQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "import_queue_depth",
		Help:      "Pending import jobs in the redis queue.",
	})

	// WorkerPoolSize worker 池大小。
	WorkerPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_pool_size",
		Help:      "Configured worker pool size.",
	})

	// NotificationsTotal 推送事件计数，按事件与结果统计。
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Emitted notification events.",
	}, []string{"event", "result"})

	// HTTPRequestsTotal HTTP 请求计数。
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})
)

var initOnce sync.Once

// InitMetrics 注册所有指标到默认 Registry，可重复调用。
//
// 参数:
//
//	workerPoolSize: worker 池大小，写入 WorkerPoolSize 指标
func InitMetrics(workerPoolSize int) {
	initOnce.Do(func() {
		prometheus.MustRegister(
			ScrapeTotal,
			ScrapeErrorsTotal,
			ScrapeDuration,
			ScrapeListings,
			BrowserActive,
			FallbackTierTotal,
			CacheRequestsTotal,
			CacheEntries,
			CacheEvictionsTotal,
			RateLimitWaitDuration,
			RateLimitTimeoutTotal,
			TranslationsTotal,
			ImportJobsTotal,
			ImportedProductsTotal,
			JobQueueDepth,
			WorkerPoolSize,
			NotificationsTotal,
			HTTPRequestsTotal,
		)
	})
	WorkerPoolSize.Set(float64(workerPoolSize))
}
