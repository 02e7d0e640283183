// Package crawler 负责用真实浏览器抓取淘宝搜索结果页。
//
// 每次调用启动一个独立的浏览器会话，页面渲染完成后把 HTML 交给 extractor 解析；
// Chain 在抓取失败时依次降级到备用 API 与演示数据。
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/config"
	"github.com/Tchindavaldo/yuunna-backend/internal/extractor"
	"github.com/Tchindavaldo/yuunna-backend/internal/model"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/ratelimit"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	browserInitTimeout   = 30 * time.Second // 浏览器启动超时
	pageCreateTimeout    = 10 * time.Second // 页面创建超时
	stealthScriptTimeout = 5 * time.Second  // Stealth 脚本应用超时
	rateLimitMaxWait     = 30 * time.Second // 限流最长等待，超过后放行
	loadWaitTimeout      = 30 * time.Second // WaitLoad 超时
	paginationTimeout    = 10 * time.Second // 点击分页按钮的超时
	scrollSteps          = 4
	scrollWaitInterval   = 500 * time.Millisecond

	beijingLatitude  = 39.9042
	beijingLongitude = 116.4074
)

// 屏蔽广告与追踪脚本，图片不屏蔽（懒加载地址依赖图片请求）
var blockedURLs = []string{
	"*google-analytics*",
	"*googletagmanager*",
	"*doubleclick*",
	"*facebook*",
	"*.mp4", "*.webm", "*.mp3",
	"*.woff", "*.woff2", "*.ttf",
}

// PageFetcher 抓取一页搜索结果。
type PageFetcher interface {
	// FetchPage 抓取 keyword 的第 page 页（从 1 开始），最多返回 max 条（<= 0 表示全部）。
	FetchPage(ctx context.Context, keyword string, page, max int) ([]model.ListingRecord, error)
}

// Service 是基于 go-rod 的 PageFetcher 实现。
type Service struct {
	cfg     config.BrowserConfig
	limiter ratelimit.Limiter
	logger  *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewService 创建抓取服务，浏览器在每次 FetchPage 时才启动。
//
// 参数:
//
//	cfg: 浏览器配置
//	limiter: 抓取限流器，可为 nil
//	logger: 日志记录器
func NewService(cfg config.BrowserConfig, limiter ratelimit.Limiter, logger *slog.Logger) *Service {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 60 * time.Second
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = 1920, 1080
	}
	if cfg.Locale == "" {
		cfg.Locale = "zh-CN"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Shanghai"
	}
	return &Service{
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// FetchPage 实现 PageFetcher。
func (s *Service) FetchPage(ctx context.Context, keyword string, page, max int) ([]model.ListingRecord, error) {
	if page < 1 {
		page = 1
	}
	if s.cfg.MaxFetchCount > 0 && (max <= 0 || max > s.cfg.MaxFetchCount) {
		max = s.cfg.MaxFetchCount
	}

	start := time.Now()
	records, err := s.fetch(ctx, keyword, page, max)
	err = wrapScrapeError(keyword, page, err)

	metrics.ScrapeDuration.Observe(time.Since(start).Seconds())
	metrics.ScrapeTotal.WithLabelValues(classifyScrapeStatus(err, len(records))).Inc()
	if err != nil {
		metrics.ScrapeErrorsTotal.WithLabelValues(string(classifyError(err))).Inc()
		s.logger.Warn("scrape failed",
			slog.String("keyword", keyword),
			slog.Int("page", page),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, err
	}
	metrics.ScrapeListings.Observe(float64(len(records)))
	s.logger.Info("scrape finished",
		slog.String("keyword", keyword),
		slog.Int("page", page),
		slog.Int("listings", len(records)),
		slog.Duration("elapsed", time.Since(start)))
	return records, nil
}

func (s *Service) fetch(ctx context.Context, keyword string, pageNum, max int) ([]model.ListingRecord, error) {
	s.acquireToken(ctx, keyword)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, browserInitTimeout)
	browser, cleanup, err := startBrowser(initCtx, s.cfg, s.logger)
	cancel()
	if err != nil {
		return nil, err
	}
	defer cleanup()
	browser = browser.Context(ctx)

	page, err := s.openPage(ctx, browser)
	if err != nil {
		return nil, err
	}
	metrics.BrowserActive.Inc()
	defer func() {
		metrics.BrowserActive.Dec()
		_ = page.Close()
	}()

	// 1. 先访问首页
	if err := s.navigate(ctx, page, HomeURL); err != nil {
		s.logger.Warn("home page load failed, continuing", slog.String("error", err.Error()))
	}
	if err := s.sleep(ctx, s.cfg.HomeSettle); err != nil {
		return nil, err
	}

	// 2. 注入 Cookie
	s.applyCookies(page)

	// 3. 搜索页：加载失败不立即放弃，继续翻页并解析已渲染的内容
	searchURL := BuildSearchURL(keyword, 1)
	s.logger.Info("loading search page", slog.String("keyword", keyword), slog.Int("page", pageNum), slog.String("url", searchURL))
	navErr := s.navigate(ctx, page, searchURL)
	if navErr != nil {
		s.logger.Warn("search page load failed, continuing",
			slog.String("keyword", keyword),
			slog.Int("page", pageNum),
			slog.String("error", navErr.Error()))
	}
	if pageNum > 1 {
		s.gotoPage(ctx, page, keyword, pageNum)
	}

	// 4. 等待渲染并滚动触发懒加载
	if err := s.sleep(ctx, s.cfg.SettleDelay); err != nil {
		return nil, err
	}
	s.scroll(ctx, page)

	info, err := page.Info()
	if err != nil {
		s.logger.Debug("read page info failed", slog.String("keyword", keyword), slog.String("error", err.Error()))
	}
	title, pageURL := pageMeta(info)
	html, err := page.HTML()
	if err != nil {
		if navErr != nil {
			return navigationResult(navErr, nil, keyword, pageNum)
		}
		return nil, fmt.Errorf("read page html: %w", err)
	}
	if isBlockedContent(pageURL, title, html) {
		s.saveDebugScreenshot(keyword, "blocked", page)
		return nil, errBlockedPage
	}

	records, err := navigationResult(navErr, extractor.Extract(html, max), keyword, pageNum)
	if err != nil {
		s.saveDebugScreenshot(keyword, "navigation", page)
		return nil, err
	}
	if len(records) == 0 {
		s.logger.Warn("no listings found on page", slog.String("keyword", keyword), slog.Int("page", pageNum), slog.String("title", title))
		s.saveDebugScreenshot(keyword, "empty", page)
		return records, nil
	}

	if s.cfg.RefreshCookies {
		s.saveCookies(browser)
	}
	return records, nil
}

// navigationResult 搜索页加载失败时，只要页面上仍解析出商品就照常返回；
// 解析为空才上报导航错误，交给 Chain 降级。
func navigationResult(navErr error, records []model.ListingRecord, keyword string, page int) ([]model.ListingRecord, error) {
	if navErr == nil || len(records) > 0 {
		return records, nil
	}
	return nil, &ScrapeError{Kind: KindNavigation, Keyword: keyword, Page: page, Err: navErr}
}

// pageMeta 取页面标题与当前 URL，info 为空时返回空串。
func pageMeta(info *proto.TargetTargetInfo) (title, pageURL string) {
	if info == nil {
		return "", ""
	}
	return info.Title, info.URL
}

// acquireToken 获取抓取令牌；限流器出错或等待过久时降级放行。
func (s *Service) acquireToken(ctx context.Context, keyword string) {
	if s.limiter == nil {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, rateLimitMaxWait)
	defer cancel()
	if err := s.limiter.Acquire(waitCtx); err != nil {
		s.logger.Warn("rate limit degraded, allowing request",
			slog.String("keyword", keyword),
			slog.String("error", err.Error()))
	}
}

// startBrowser 启动一个独立的浏览器进程，返回的 cleanup 负责关闭浏览器并清理进程。
func startBrowser(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (*rod.Browser, func(), error) {
	bin := cfg.BinPath
	if bin == "" {
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, nil, fmt.Errorf("download browser: %w", err)
		}
		bin = path
	}

	// 针对容器环境的 Flag 优化
	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		Bin(bin).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("disable-blink-features", "AutomationControlled").
		Set("lang", cfg.Locale).
		Set("window-size", fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight)).
		Set("js-flags", "--max_old_space_size=512")

	if cfg.ProxyURL != "" {
		parsed, err := url.Parse(cfg.ProxyURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, nil, fmt.Errorf("invalid proxy url: %s", cfg.ProxyURL)
		}
		l = l.Proxy(parsed.Scheme + "://" + parsed.Host)
	}

	wsURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}
	if cfg.ProxyURL != "" {
		if parsed, _ := url.Parse(cfg.ProxyURL); parsed != nil && parsed.User != nil {
			pass, _ := parsed.User.Password()
			go browser.MustHandleAuth(parsed.User.Username(), pass)()
		}
	}
	logger.Debug("browser started", slog.String("bin", bin), slog.Bool("proxy", cfg.ProxyURL != ""))

	cleanup := func() {
		if err := browser.Close(); err != nil {
			logger.Debug("browser close failed", slog.String("error", err.Error()))
		}
		l.Kill()
		l.Cleanup()
	}
	return browser, cleanup, nil
}

// openPage 创建页面并完成伪装：stealth、视口、UA、时区、语言与地理位置。
func (s *Service) openPage(ctx context.Context, browser *rod.Browser) (*rod.Page, error) {
	type pageResult struct {
		page *rod.Page
		err  error
	}
	ch := make(chan pageResult, 1)
	go func() {
		p, err := browser.Page(proto.TargetCreateTarget{URL: ""})
		ch <- pageResult{page: p, err: err}
	}()

	timer := time.NewTimer(pageCreateTimeout)
	defer timer.Stop()

	var page *rod.Page
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("create page failed: %w", res.err)
		}
		page = res.page
	case <-timer.C:
		return nil, fmt.Errorf("create page timeout after %v", pageCreateTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled during page creation: %w", ctx.Err())
	}

	stealthDone := make(chan error, 1)
	go func() {
		_, err := page.EvalOnNewDocument(stealth.JS)
		stealthDone <- err
	}()
	select {
	case err := <-stealthDone:
		if err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("apply stealth script: %w", err)
		}
	case <-time.After(stealthScriptTimeout):
		_ = page.Close()
		return nil, fmt.Errorf("apply stealth script timeout after %v", stealthScriptTimeout)
	}

	if err := (proto.NetworkSetBlockedURLs{Urls: blockedURLs}).Call(page); err != nil {
		s.logger.Debug("set blocked urls failed", slog.String("error", err.Error()))
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		s.logger.Debug("set viewport failed", slog.String("error", err.Error()))
	}
	if s.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      s.cfg.UserAgent,
			AcceptLanguage: s.cfg.Locale + ",zh;q=0.9",
		}); err != nil {
			s.logger.Debug("set user agent failed", slog.String("error", err.Error()))
		}
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: s.cfg.Timezone}).Call(page); err != nil {
		s.logger.Debug("set timezone failed", slog.String("error", err.Error()))
	}
	if err := (proto.EmulationSetLocaleOverride{Locale: s.cfg.Locale}).Call(page); err != nil {
		s.logger.Debug("set locale failed", slog.String("error", err.Error()))
	}
	lat, lng, acc := beijingLatitude, beijingLongitude, 100.0
	if err := (proto.EmulationSetGeolocationOverride{Latitude: &lat, Longitude: &lng, Accuracy: &acc}).Call(page); err != nil {
		s.logger.Debug("set geolocation failed", slog.String("error", err.Error()))
	}

	return page, nil
}

// navigate 在 PageTimeout 内完成跳转并等待 load 事件。
func (s *Service) navigate(ctx context.Context, page *rod.Page, target string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- page.Context(navCtx).Navigate(target)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("navigate %s: %w", target, err)
		}
	case <-navCtx.Done():
		return fmt.Errorf("navigate timeout: %w", navCtx.Err())
	}

	loadCtx, loadCancel := context.WithTimeout(ctx, loadWaitTimeout)
	defer loadCancel()
	if err := page.Context(loadCtx).WaitLoad(); err != nil {
		s.logger.Debug("WaitLoad failed, continuing anyway", slog.String("url", target), slog.String("error", err.Error()))
	}
	return nil
}

// applyCookies 逐条注入 Cookie，单条失败只记录日志。
func (s *Service) applyCookies(page *rod.Page) {
	if s.cfg.CookiesPath == "" {
		return
	}
	cookies, err := LoadCookieJar(s.cfg.CookiesPath)
	if err != nil {
		s.logger.Warn("load cookie jar failed", slog.String("path", s.cfg.CookiesPath), slog.String("error", err.Error()))
		return
	}
	applied := 0
	for _, c := range cookies {
		if err := page.SetCookies([]*proto.NetworkCookieParam{c}); err != nil {
			s.logger.Debug("set cookie failed", slog.String("name", c.Name), slog.String("error", err.Error()))
			continue
		}
		applied++
	}
	s.logger.Debug("cookies applied", slog.Int("applied", applied), slog.Int("total", len(cookies)))
}

func (s *Service) saveCookies(browser *rod.Browser) {
	cookies, err := browser.GetCookies()
	if err != nil {
		s.logger.Warn("read browser cookies failed", slog.String("error", err.Error()))
		return
	}
	if err := SaveCookieJar(s.cfg.CookiesPath, cookies); err != nil {
		s.logger.Warn("save cookie jar failed", slog.String("error", err.Error()))
	}
}

// gotoPage 翻到第 n 页：点击分页按钮、带 page 参数跳转、脚本改地址，依次尝试。
func (s *Service) gotoPage(ctx context.Context, page *rod.Page, keyword string, n int) {
	label := strconv.Itoa(n)
	pagedURL := BuildSearchURL(keyword, n)

	err := s.clickPagination(page, label)
	if err == nil {
		s.logger.Debug("pagination clicked", slog.Int("page", n))
		return
	}
	s.logger.Debug("pagination click failed", slog.Int("page", n), slog.String("error", err.Error()))

	if err = s.navigate(ctx, page, pagedURL); err == nil {
		return
	}
	s.logger.Debug("paged url navigation failed", slog.Int("page", n), slog.String("error", err.Error()))

	if _, err := page.Eval(`(u) => { window.location.href = u }`, pagedURL); err != nil {
		s.logger.Warn("all pagination tactics failed", slog.Int("page", n), slog.String("error", err.Error()))
		return
	}
	loadCtx, cancel := context.WithTimeout(ctx, loadWaitTimeout)
	defer cancel()
	_ = page.Context(loadCtx).WaitLoad()
}

func (s *Service) clickPagination(page *rod.Page, label string) error {
	p := page.Timeout(paginationTimeout)
	elems, err := p.Elements(".pagination a, [class*='pagination'] a, [class*='pagination'] button")
	if err != nil {
		return err
	}
	for _, el := range elems {
		text, err := el.Text()
		if err != nil || strings.TrimSpace(text) != label {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
		_ = p.WaitLoad()
		return nil
	}
	return fmt.Errorf("no pagination control labelled %s", label)
}

// scroll 向下滚动几个视口，触发懒加载图片。
func (s *Service) scroll(ctx context.Context, page *rod.Page) {
	for i := 0; i < scrollSteps; i++ {
		if _, err := page.Eval(`() => window.scrollBy(0, window.innerHeight)`); err != nil {
			return
		}
		if s.sleep(ctx, scrollWaitInterval) != nil {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
