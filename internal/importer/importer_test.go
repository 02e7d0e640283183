package importer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/crawler"
	"github.com/Tchindavaldo/yuunna-backend/internal/model"
	"github.com/Tchindavaldo/yuunna-backend/internal/normalize"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/dedup"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	res     crawler.Result
	err     error
	gotOpts crawler.FetchOptions
	gotPage int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, page int, opts crawler.FetchOptions) (crawler.Result, error) {
	f.gotPage = page
	f.gotOpts = opts
	return f.res, f.err
}

type memStore struct {
	mu      sync.Mutex
	items   []model.Product
	links   map[string]bool
	failIDs map[int]bool
	calls   int
}

func (m *memStore) Add(_ context.Context, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failIDs[m.calls] {
		return errors.New("insert failed")
	}
	m.items = append(m.items, *p)
	return nil
}

func (m *memStore) ExistsByLink(_ context.Context, link string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[link], nil
}

type emitted struct {
	room  string
	event string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingNotifier) EmitToRoom(_ context.Context, room, event string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{room: room, event: event})
	return nil
}

func (r *recordingNotifier) EmitGlobal(_ context.Context, event string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{event: event})
	return nil
}

type fakeDigest struct {
	to      string
	saved   int
	skipped int
	calls   int
}

func (f *fakeDigest) SendImportDigest(_ context.Context, to, _ string, saved []model.Product, skipped int) error {
	f.calls++
	f.to = to
	f.saved = len(saved)
	f.skipped = skipped
	return nil
}

func validRecord(id string) model.ListingRecord {
	return model.ListingRecord{
		Title:    "智能手表 男士手表 " + id,
		Price:    "¥199.00",
		ImageURL: "https://img.alicdn.com/imgextra/" + id + ".jpg",
		Link:     "https://item.taobao.com/item.htm?id=" + id + "&spm=a21n57",
	}
}

func newNormalizer() *normalize.Normalizer {
	return normalize.NewNormalizer(normalize.DictionaryTranslator{}, 2, discardLogger())
}

func TestRun_SavesAndEmits(t *testing.T) {
	fetcher := &fakeFetcher{res: crawler.Result{Tier: crawler.TierScrape, Records: []model.ListingRecord{
		validRecord("1"),
		validRecord("2"),
	}}}
	store := &memStore{}
	notifier := &recordingNotifier{}
	digest := &fakeDigest{}

	imp := New(fetcher, newNormalizer(), store, notifier, discardLogger(), WithDigest(digest, "ops@example.com"))
	rep, err := imp.Run(context.Background(), &model.ImportJob{ID: "job-1", Keyword: "montre", Limit: 5, UserID: "user-7"})
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.gotPage)
	assert.Equal(t, 5, fetcher.gotOpts.Max)
	assert.False(t, fetcher.gotOpts.AllowFallback)

	assert.Equal(t, 2, rep.Fetched)
	assert.Equal(t, 2, rep.Saved)
	assert.Equal(t, crawler.TierScrape, rep.Source)
	require.Len(t, store.items, 2)

	p := store.items[0]
	assert.Equal(t, "https://item.taobao.com/item.htm?id=1", p.SourceLink)
	assert.Equal(t, "montre", p.SearchKeyword)
	assert.Equal(t, "user-7", p.UserID)
	assert.Equal(t, "electronics-category-id", p.CategoryID)
	assert.Equal(t, 199.0, p.Price)

	assert.Equal(t, []emitted{
		{event: "newProduct"}, {room: "user-7", event: "newUserProduct"},
		{event: "newProduct"}, {room: "user-7", event: "newUserProduct"},
	}, notifier.events)

	assert.Equal(t, 1, digest.calls)
	assert.Equal(t, "ops@example.com", digest.to)
	assert.Equal(t, 2, digest.saved)
}

func TestRun_RequestCategoryWins(t *testing.T) {
	fetcher := &fakeFetcher{res: crawler.Result{Tier: crawler.TierScrape, Records: []model.ListingRecord{validRecord("1")}}}
	store := &memStore{}

	imp := New(fetcher, newNormalizer(), store, nil, discardLogger())
	_, err := imp.Run(context.Background(), &model.ImportJob{ID: "j", Keyword: "montre", CategoryID: "custom-cat"})
	require.NoError(t, err)
	require.Len(t, store.items, 1)
	assert.Equal(t, "custom-cat", store.items[0].CategoryID)
}

func TestRun_ValidationRejects(t *testing.T) {
	noPrice := validRecord("2")
	noPrice.Price = "面议"
	shortImage := validRecord("3")
	shortImage.ImageURL = "https://a.cn/x.jpg"
	placeholder := validRecord("4")
	placeholder.ImageURL = "https://g.alicdn.com/s.gif/blank.gif"
	noLink := validRecord("5")
	noLink.Link = ""
	noTitle := validRecord("6")
	noTitle.Title = ""

	fetcher := &fakeFetcher{res: crawler.Result{Tier: crawler.TierScrape, Records: []model.ListingRecord{
		validRecord("1"), noPrice, shortImage, placeholder, noLink, noTitle,
	}}}
	store := &memStore{}
	digest := &fakeDigest{}

	imp := New(fetcher, newNormalizer(), store, nil, discardLogger(), WithDigest(digest, "ops@example.com"))
	rep, err := imp.Run(context.Background(), &model.ImportJob{ID: "j", Keyword: "montre"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Saved)
	assert.Equal(t, 5, rep.Invalid)
	assert.Equal(t, 5, digest.skipped)
}

func TestRun_DeduplicatesByCanonicalLink(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a := validRecord("1")
	b := validRecord("1")
	b.Link = "//item.taobao.com/item.htm?id=1&ali_trackid=xyz"
	c := validRecord("9")

	fetcher := &fakeFetcher{res: crawler.Result{Tier: crawler.TierScrape, Records: []model.ListingRecord{a, b, c}}}
	store := &memStore{links: map[string]bool{"https://item.taobao.com/item.htm?id=9": true}}

	imp := New(fetcher, newNormalizer(), store, nil, discardLogger(), WithDeduper(dedup.NewDeduplicator(rdb, time.Hour)))
	rep, err := imp.Run(context.Background(), &model.ImportJob{ID: "j", Keyword: "montre"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Saved)
	assert.Equal(t, 2, rep.Duplicates)
}

func TestRun_StoreFailureReleasesLink(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	deduper := dedup.NewDeduplicator(rdb, time.Hour)

	fetcher := &fakeFetcher{res: crawler.Result{Tier: crawler.TierScrape, Records: []model.ListingRecord{validRecord("1")}}}
	store := &memStore{failIDs: map[int]bool{1: true}}

	imp := New(fetcher, newNormalizer(), store, nil, discardLogger(), WithDeduper(deduper))
	rep, err := imp.Run(context.Background(), &model.ImportJob{ID: "j", Keyword: "montre"})
	require.Error(t, err)
	assert.Equal(t, 1, rep.Failed)

	// 登记已撤销，重试时不会被当作重复
	dup, err := deduper.IsDuplicate(context.Background(), "https://item.taobao.com/item.htm?id=1")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestRun_FetchErrors(t *testing.T) {
	boom := errors.New("blocked")
	imp := New(&fakeFetcher{err: boom}, newNormalizer(), &memStore{}, nil, discardLogger())
	_, err := imp.Run(context.Background(), &model.ImportJob{ID: "j", Keyword: "montre"})
	assert.ErrorIs(t, err, boom)

	imp = New(&fakeFetcher{res: crawler.Result{Tier: crawler.TierScrape}}, newNormalizer(), &memStore{}, nil, discardLogger())
	_, err = imp.Run(context.Background(), &model.ImportJob{ID: "j", Keyword: "montre"})
	assert.ErrorIs(t, err, ErrNoListings)
}

func TestRun_NoDigestWhenNothingSaved(t *testing.T) {
	bad := validRecord("1")
	bad.ImageURL = ""
	digest := &fakeDigest{}
	imp := New(&fakeFetcher{res: crawler.Result{Tier: crawler.TierScrape, Records: []model.ListingRecord{bad}}},
		newNormalizer(), &memStore{}, nil, discardLogger(), WithDigest(digest, "ops@example.com"))

	_, err := imp.Run(context.Background(), &model.ImportJob{ID: "j", Keyword: "montre"})
	require.Error(t, err)
	assert.Zero(t, digest.calls)
}
