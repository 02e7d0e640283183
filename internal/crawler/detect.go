package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// 淘宝风控页（滑块、登录墙、拒绝访问）的特征
var blockedHints = []string{
	"滑块",
	"验证码",
	"访问被拒绝",
	"亲，请登录",
	"login.taobao.com",
	"punish",
	"baxia",
	"captcha",
	"access denied",
}

const debugScreenshotTimeout = 10 * time.Second

// containsAny 检查文本是否包含任意一个关键词
func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// isBlockedContent 根据页面 URL、标题与 HTML 判断是否落在风控页。
func isBlockedContent(pageURL, title, html string) bool {
	if containsAny(strings.ToLower(pageURL), []string{"login.taobao.com", "punish", "_____tmd_____"}) {
		return true
	}
	if containsAny(strings.ToLower(title), blockedHints) {
		return true
	}
	// 正常结果页也会在脚本里出现 "captcha" 字样，正文只看中文提示
	return containsAny(html, []string{"滑块验证", "请按住滑块", "访问被拒绝", "baxia-dialog"})
}

// saveDebugScreenshot 保存调试截图并返回路径。
// 需要配置 browser.debug_screenshot=true 或环境变量 BROWSER_DEBUG_SCREENSHOT=true。
func (s *Service) saveDebugScreenshot(keyword, phase string, page *rod.Page) string {
	if !s.cfg.DebugScreenshot || page == nil {
		return ""
	}

	dir := s.cfg.ScreenshotDir
	if dir == "" {
		dir = "/tmp/taobao/screenshots"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Warn("failed to create screenshot directory",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return ""
	}

	name := fmt.Sprintf("%s_%s_%s.png", safeFileName(keyword), phase, time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	ctx, cancel := context.WithTimeout(context.Background(), debugScreenshotTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		data, err := page.Screenshot(true, nil)
		if err != nil {
			done <- err
			return
		}
		done <- os.WriteFile(path, data, 0644)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("failed to save screenshot", slog.String("keyword", keyword), slog.String("error", err.Error()))
			return ""
		}
		s.logger.Info("debug screenshot saved", slog.String("keyword", keyword), slog.String("path", path))
		return path
	case <-ctx.Done():
		s.logger.Warn("screenshot timeout", slog.String("keyword", keyword))
		return ""
	}
}

func safeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "search"
	}
	return b.String()
}

// ============================================================================
// 错误分类
// ============================================================================

// ErrorKind 抓取错误类型，同时作为 metrics 标签。
type ErrorKind string

const (
	KindUnknown    ErrorKind = "unknown"
	KindTimeout    ErrorKind = "timeout"
	KindBlocked    ErrorKind = "blocked"
	KindNetwork    ErrorKind = "network"
	KindParse      ErrorKind = "parse"
	KindNavigation ErrorKind = "navigation"
)

// errBlockedPage 命中风控页。
var errBlockedPage = errors.New("blocked_page: taobao verification wall")

// ScrapeError 包装一次抓取失败。
type ScrapeError struct {
	Kind    ErrorKind
	Keyword string
	Page    int
	Err     error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape %q page %d (%s): %v", e.Keyword, e.Page, e.Kind, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// wrapScrapeError 按错误内容分类并包装；已经是 ScrapeError 的直接返回。
func wrapScrapeError(keyword string, page int, err error) error {
	if err == nil {
		return nil
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return err
	}
	return &ScrapeError{Kind: classifyError(err), Keyword: keyword, Page: page, Err: err}
}

// classifyError 统一的错误分类函数
func classifyError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	if errors.Is(err, errBlockedPage) || containsAny(msg, []string{"blocked_page", "captcha", "403", "429", "forbidden", "too many requests"}) {
		return KindBlocked
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return KindTimeout
	}
	if containsAny(msg, []string{"net::", "connection", "dial tcp", "no such host"}) {
		return KindNetwork
	}
	if strings.Contains(msg, "navigate") {
		return KindNavigation
	}
	if strings.Contains(msg, "parse") || strings.Contains(msg, "extract") {
		return KindParse
	}
	return KindUnknown
}

// classifyScrapeStatus 返回用于 metrics 的抓取状态
func classifyScrapeStatus(err error, listings int) string {
	switch {
	case err == nil && listings == 0:
		return "empty"
	case err == nil:
		return "success"
	case classifyError(err) == KindBlocked:
		return "blocked"
	default:
		return "error"
	}
}
