package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/Tchindavaldo/yuunna-backend/internal/crawler"
	"github.com/Tchindavaldo/yuunna-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchCall struct {
	page int
	opts crawler.FetchOptions
}

// fakeFetcher 按页码返回预设结果。
type fakeFetcher struct {
	pages map[int][]model.ListingRecord
	tier  crawler.Tier
	err   error
	calls []fetchCall
}

func (f *fakeFetcher) Fetch(ctx context.Context, keyword string, page int, opts crawler.FetchOptions) (crawler.Result, error) {
	f.calls = append(f.calls, fetchCall{page: page, opts: opts})
	if f.err != nil {
		return crawler.Result{}, f.err
	}
	tier := f.tier
	if tier == "" {
		tier = crawler.TierScrape
	}
	return crawler.Result{Records: f.pages[page], Tier: tier}, nil
}

func newPaginator(f *fakeFetcher) (*Paginator, *SearchCache) {
	cache := NewSearchCache(0, 0, testLogger())
	return NewPaginator(cache, f, testLogger()), cache
}

func TestUpstreamPage(t *testing.T) {
	tests := []struct {
		cursor int
		want   int
	}{
		{0, 1},
		{1, 1},
		{47, 1},
		{48, 1},
		{49, 2},
		{90, 2},
		{96, 2},
		{97, 3},
		{144, 3},
		{145, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UpstreamPage(tt.cursor), "cursor %d", tt.cursor)
	}
}

func TestPaginator_FirstPageScenario(t *testing.T) {
	f := &fakeFetcher{pages: map[int][]model.ListingRecord{1: makeRecords("p1", 20)}}
	p, _ := newPaginator(f)

	res, err := p.Page(context.Background(), "montre", 0, 10)
	require.NoError(t, err)

	require.Len(t, f.calls, 1)
	assert.Equal(t, 1, f.calls[0].page)
	assert.True(t, f.calls[0].opts.AllowFallback, "fallback allowed while cache is empty")

	assert.Len(t, res.Items, 10)
	assert.Equal(t, 0, res.Pagination.Cursor)
	assert.True(t, res.Pagination.HasMore)
	require.NotNil(t, res.Pagination.NextCursor)
	assert.Equal(t, 10, *res.Pagination.NextCursor)
	assert.Equal(t, 20, res.Pagination.TotalAvailable)
	assert.Equal(t, crawler.TierScrape, res.Source)
}

func TestPaginator_CursorAtPageBoundaryRequestsNextPage(t *testing.T) {
	f := &fakeFetcher{pages: map[int][]model.ListingRecord{
		1: makeRecords("p1", 48),
		2: makeRecords("p2", 48),
	}}
	p, _ := newPaginator(f)

	_, err := p.Page(context.Background(), "montre", 0, 10)
	require.NoError(t, err)

	res, err := p.Page(context.Background(), "montre", 48, 10)
	require.NoError(t, err)

	last := f.calls[len(f.calls)-1]
	assert.Equal(t, 2, last.page)
	assert.False(t, last.opts.AllowFallback, "no fallback once the cache has data")
	require.Len(t, res.Items, 10)
	assert.Equal(t, "p2-0", res.Items[0].Title)
	assert.Equal(t, 58, *res.Pagination.NextCursor)
}

func TestPaginator_CacheHitDoesNotFetch(t *testing.T) {
	f := &fakeFetcher{}
	p, cache := newPaginator(f)
	cache.UpsertPage("montre", 1, makeRecords("p1", 48), crawler.TierScrape)

	res, err := p.Page(context.Background(), "Montre", 10, 10)
	require.NoError(t, err)
	assert.Empty(t, f.calls)
	assert.Equal(t, "p1-10", res.Items[0].Title)
}

func TestPaginator_ServesStaleOnFetchFailure(t *testing.T) {
	f := &fakeFetcher{err: errors.New("navigate timeout")}
	p, cache := newPaginator(f)
	cache.UpsertPage("montre", 1, makeRecords("p1", 20), crawler.TierScrape)

	res, err := p.Page(context.Background(), "montre", 10, 10)
	require.NoError(t, err)
	require.Len(t, f.calls, 1)
	assert.Len(t, res.Items, 10)
	assert.Equal(t, "p1-10", res.Items[0].Title)
	assert.True(t, res.Pagination.HasMore)
	assert.Equal(t, 20, *res.Pagination.NextCursor)
}

func TestPaginator_EmptyCacheFetchFailurePropagates(t *testing.T) {
	boom := errors.New("all tiers failed")
	p, _ := newPaginator(&fakeFetcher{err: boom})

	_, err := p.Page(context.Background(), "montre", 0, 10)
	assert.ErrorIs(t, err, boom)
}

func TestPaginator_BeyondDataIsEmptySuccess(t *testing.T) {
	f := &fakeFetcher{pages: map[int][]model.ListingRecord{1: makeRecords("p1", 5)}}
	p, _ := newPaginator(f)

	_, err := p.Page(context.Background(), "montre", 0, 10)
	require.NoError(t, err)

	res, err := p.Page(context.Background(), "montre", 200, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.NotNil(t, res.Items)
	assert.False(t, res.Pagination.HasMore)
	assert.Nil(t, res.Pagination.NextCursor)
	assert.Equal(t, 5, res.Pagination.TotalAvailable)
}

func TestPaginator_SourceFollowsFallbackTier(t *testing.T) {
	f := &fakeFetcher{pages: map[int][]model.ListingRecord{1: makeRecords("demo", 1)}, tier: crawler.TierDemo}
	p, _ := newPaginator(f)

	res, err := p.Page(context.Background(), "zzz", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, crawler.TierDemo, res.Source)
	assert.Len(t, res.Items, 1)
}

// 连续翻页时 nextCursor 恰好等于 cursor + 本次返回条数，且不会出现重复记录。
func TestPaginator_CursorMonotonicity(t *testing.T) {
	f := &fakeFetcher{pages: map[int][]model.ListingRecord{
		1: makeRecords("p1", 48),
		2: makeRecords("p2", 48),
	}}
	p, _ := newPaginator(f)

	seen := make(map[string]bool)
	cursor := 0
	for i := 0; i < 20; i++ {
		res, err := p.Page(context.Background(), "montre", cursor, 20)
		require.NoError(t, err)
		for _, it := range res.Items {
			require.False(t, seen[it.Title], "duplicate %s at cursor %d", it.Title, cursor)
			seen[it.Title] = true
		}
		if !res.Pagination.HasMore {
			assert.Nil(t, res.Pagination.NextCursor)
			break
		}
		require.NotNil(t, res.Pagination.NextCursor)
		assert.Equal(t, cursor+len(res.Items), *res.Pagination.NextCursor)
		cursor = *res.Pagination.NextCursor
	}
	assert.Len(t, seen, 96)
	assert.Equal(t, 3, f.calls[len(f.calls)-1].page)
}
