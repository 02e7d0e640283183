package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Tchindavaldo/yuunna-backend/internal/model"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================================================
// URL 构造
// ============================================================================

func TestBuildSearchURL(t *testing.T) {
	tests := []struct {
		keyword string
		page    int
		want    string
	}{
		{"montre", 1, "https://s.taobao.com/search?q=montre"},
		{"montre", 0, "https://s.taobao.com/search?q=montre"},
		{" montre ", 3, "https://s.taobao.com/search?page=3&q=montre"},
		{"手表", 2, "https://s.taobao.com/search?page=2&q=%E6%89%8B%E8%A1%A8"},
		{"sac femme", 1, "https://s.taobao.com/search?q=sac+femme"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BuildSearchURL(tt.keyword, tt.page))
	}
}

// ============================================================================
// 错误分类
// ============================================================================

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"deadline", fmt.Errorf("navigate timeout: %w", context.DeadlineExceeded), KindTimeout},
		{"blocked sentinel", errBlockedPage, KindBlocked},
		{"http 429", errors.New("status 429 too many requests"), KindBlocked},
		{"timeout text", errors.New("create page timeout after 10s"), KindTimeout},
		{"network", errors.New("navigate https://x: net::ERR_CONNECTION_RESET"), KindNetwork},
		{"navigation", errors.New("navigate https://x: target closed"), KindNavigation},
		{"parse", errors.New("parse html"), KindParse},
		{"other", errors.New("boom"), KindUnknown},
		{"scrape error keeps kind", &ScrapeError{Kind: KindNavigation, Err: errors.New("x")}, KindNavigation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(tt.err))
		})
	}
}

func TestWrapScrapeError(t *testing.T) {
	assert.NoError(t, wrapScrapeError("k", 1, nil))

	err := wrapScrapeError("montre", 2, errBlockedPage)
	var se *ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindBlocked, se.Kind)
	assert.Equal(t, 2, se.Page)
	assert.ErrorIs(t, err, errBlockedPage)

	// 已包装的错误不重复包装
	assert.Same(t, err, wrapScrapeError("montre", 2, err))
}

func TestClassifyScrapeStatus(t *testing.T) {
	assert.Equal(t, "success", classifyScrapeStatus(nil, 3))
	assert.Equal(t, "empty", classifyScrapeStatus(nil, 0))
	assert.Equal(t, "blocked", classifyScrapeStatus(errBlockedPage, 0))
	assert.Equal(t, "error", classifyScrapeStatus(errors.New("x"), 0))
}

func TestIsBlockedContent(t *testing.T) {
	assert.True(t, isBlockedContent("https://login.taobao.com/member/login.jhtml", "", ""))
	assert.True(t, isBlockedContent("https://s.taobao.com/search", "验证码拦截", ""))
	assert.True(t, isBlockedContent("https://s.taobao.com/search", "淘宝搜索", `<div id="baxia-dialog">请按住滑块</div>`))
	assert.False(t, isBlockedContent("https://s.taobao.com/search?q=montre", "montre_淘宝搜索", "<div class='items'></div>"))
}

func TestNavigationResult(t *testing.T) {
	navErr := fmt.Errorf("navigate https://s.taobao.com/search: %w", context.DeadlineExceeded)
	rendered := []model.ListingRecord{{Title: "手表", Price: "¥99", Link: "https://item.taobao.com/item.htm?id=1"}}

	t.Run("load failed but listings rendered", func(t *testing.T) {
		got, err := navigationResult(navErr, rendered, "montre", 3)
		require.NoError(t, err)
		assert.Equal(t, rendered, got)
	})

	t.Run("load failed and nothing rendered", func(t *testing.T) {
		got, err := navigationResult(navErr, nil, "montre", 3)
		assert.Nil(t, got)
		var se *ScrapeError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, KindNavigation, se.Kind)
		assert.Equal(t, 3, se.Page)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("load ok and empty page", func(t *testing.T) {
		got, err := navigationResult(nil, []model.ListingRecord{}, "montre", 1)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestPageMeta(t *testing.T) {
	title, pageURL := pageMeta(nil)
	assert.Empty(t, title)
	assert.Empty(t, pageURL)

	title, pageURL = pageMeta(&proto.TargetTargetInfo{Title: "montre_淘宝搜索", URL: "https://s.taobao.com/search?q=montre"})
	assert.Equal(t, "montre_淘宝搜索", title)
	assert.Equal(t, "https://s.taobao.com/search?q=montre", pageURL)
}

func TestSafeFileName(t *testing.T) {
	assert.Equal(t, "montre_homme", safeFileName("montre homme"))
	assert.Equal(t, "__", safeFileName("手表"))
	assert.Equal(t, "search", safeFileName(""))
}

// ============================================================================
// Cookie 文件
// ============================================================================

func TestLoadCookieJar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	body := `[
  {"name": "cna", "value": "abc", "domain": ".taobao.com", "path": "/", "expiry": 1900000000, "sameSite": "unspecified"},
  {"name": "t", "value": "xyz", "domain": ".taobao.com", "expires": 1800000000, "httpOnly": true},
  {"name": "", "value": "orphan"},
  {"name": "nodomain", "value": "1"}
]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cookies, err := LoadCookieJar(path)
	require.NoError(t, err)
	require.Len(t, cookies, 3)

	assert.Equal(t, "cna", cookies[0].Name)
	assert.Equal(t, proto.TimeSinceEpoch(1900000000), cookies[0].Expires)
	assert.Empty(t, string(cookies[0].SameSite))
	assert.Equal(t, proto.TimeSinceEpoch(1800000000), cookies[1].Expires)
	assert.True(t, cookies[1].HTTPOnly)
	assert.Equal(t, HomeURL, cookies[2].URL)
}

func TestLoadCookieJar_MissingAndInvalid(t *testing.T) {
	cookies, err := LoadCookieJar(filepath.Join(t.TempDir(), "absent.json"))
	assert.NoError(t, err)
	assert.Nil(t, cookies)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err = LoadCookieJar(path)
	assert.Error(t, err)
}

func TestSaveCookieJar_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jar", "cookies.json")
	err := SaveCookieJar(path, []*proto.NetworkCookie{
		{Name: "cna", Value: "abc", Domain: ".taobao.com", Path: "/", Expires: 1900000000},
		{Name: "sess", Value: "1", Domain: ".tmall.com", Session: true},
		{Name: "ga", Value: "2", Domain: ".google.com"},
	})
	require.NoError(t, err)

	loaded, err := LoadCookieJar(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, proto.TimeSinceEpoch(1900000000), loaded[0].Expires)
	assert.Equal(t, "sess", loaded[1].Name)
	assert.Zero(t, loaded[1].Expires)
}

// ============================================================================
// 降级链
// ============================================================================

type fakeFetcher struct {
	records []model.ListingRecord
	err     error
	calls   int
}

func (f *fakeFetcher) FetchPage(ctx context.Context, keyword string, page, max int) ([]model.ListingRecord, error) {
	f.calls++
	return f.records, f.err
}

type fakeFallback struct {
	records []model.ListingRecord
	err     error
	calls   int
}

func (f *fakeFallback) Search(ctx context.Context, keyword string, limit int) ([]model.ListingRecord, error) {
	f.calls++
	return f.records, f.err
}

func (f *fakeFallback) Demo(limit int) []model.ListingRecord {
	return []model.ListingRecord{{Title: "fictif", Price: "¥1440"}}
}

func TestChain_ScrapeSuccess(t *testing.T) {
	primary := &fakeFetcher{records: []model.ListingRecord{{Title: "a"}}}
	fb := &fakeFallback{}
	res, err := NewChain(primary, fb, testLogger()).Fetch(context.Background(), "montre", 1, FetchOptions{AllowFallback: true})
	require.NoError(t, err)
	assert.Equal(t, TierScrape, res.Tier)
	assert.Len(t, res.Records, 1)
	assert.Zero(t, fb.calls)
}

func TestChain_NoFallbackPropagatesError(t *testing.T) {
	primary := &fakeFetcher{err: errBlockedPage}
	fb := &fakeFallback{records: []model.ListingRecord{{Title: "x"}}}
	_, err := NewChain(primary, fb, testLogger()).Fetch(context.Background(), "montre", 1, FetchOptions{})
	assert.ErrorIs(t, err, errBlockedPage)
	assert.Zero(t, fb.calls)
}

func TestChain_FallbackAPI(t *testing.T) {
	primary := &fakeFetcher{err: errors.New("navigate timeout")}
	fb := &fakeFallback{records: []model.ListingRecord{{Title: "Mens Watch"}}}
	res, err := NewChain(primary, fb, testLogger()).Fetch(context.Background(), "watch", 1, FetchOptions{AllowFallback: true})
	require.NoError(t, err)
	assert.Equal(t, TierFallbackAPI, res.Tier)
	assert.Equal(t, "Mens Watch", res.Records[0].Title)
}

func TestChain_DemoWhenFallbackEmptyOrFails(t *testing.T) {
	for _, fb := range []*fakeFallback{{}, {err: errors.New("status 503")}} {
		primary := &fakeFetcher{}
		res, err := NewChain(primary, fb, testLogger()).Fetch(context.Background(), "zzz", 1, FetchOptions{AllowFallback: true})
		require.NoError(t, err)
		assert.Equal(t, TierDemo, res.Tier)
		assert.Equal(t, "fictif", res.Records[0].Title)
	}
}

func TestChain_FetchPageAllowsFallback(t *testing.T) {
	primary := &fakeFetcher{err: errors.New("boom")}
	records, err := NewChain(primary, &fakeFallback{}, testLogger()).FetchPage(context.Background(), "x", 1, 5)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
