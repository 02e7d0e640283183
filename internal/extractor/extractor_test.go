package extractor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return string(data)
}

func TestExtract_ModernLayout(t *testing.T) {
	records := Extract(loadFixture(t, "search_modern.html"), 0)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "智能手表 运动 防水", first.Title)
	assert.Equal(t, "¥128.50", first.Price)
	assert.Equal(t, "https://img.alicdn.com/imgextra/i1/7001.jpg_q50.jpg", first.ImageURL, "placeholder src must fall back to data-src")
	assert.Equal(t, "https://item.taobao.com/item.htm?id=7001&ns=1", first.Link)
	assert.Equal(t, "数码旗舰店", first.Seller)
	assert.Equal(t, "广东 / 深圳", first.Location)
	assert.Equal(t, "1000+人付款", first.SalesText)

	second := records[1]
	assert.Equal(t, "¥899", second.Price)
	assert.Equal(t, "https://img.alicdn.com/imgextra/i2/7002.jpg", second.ImageURL)
	assert.Equal(t, "浙江", second.Location)
	assert.Empty(t, second.Seller)

	// 字段缺失时保持空字符串，记录仍然保留
	third := records[2]
	assert.Equal(t, "儿童电话手表", third.Title)
	assert.Empty(t, third.Price)
	assert.Empty(t, third.ImageURL)
}

func TestExtract_RespectsMax(t *testing.T) {
	records := Extract(loadFixture(t, "search_modern.html"), 2)
	assert.Len(t, records, 2)
}

func TestExtract_LegacyLayout(t *testing.T) {
	html := `<div class="items">
  <div class="item J_MouserOnverReq">
    <div class="pic"><a href="//item.taobao.com/item.htm?id=1"><img class="J_ItemPic img" src="//g.alicdn.com/s/blank.gif" data-src="//img.alicdn.com/bao/uploaded/i1.jpg" alt="复古手表"></a></div>
    <div class="price"><strong>59.00</strong></div>
    <div class="deal-cnt">52人付款</div>
    <div class="shopname"><span>老店</span></div>
    <div class="location">上海</div>
  </div>
</div>`
	records := Extract(html, 0)
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "复古手表", r.Title)
	assert.Equal(t, "59.00", r.Price)
	assert.Equal(t, "https://img.alicdn.com/bao/uploaded/i1.jpg", r.ImageURL)
	assert.Equal(t, "https://item.taobao.com/item.htm?id=1", r.Link)
	assert.Equal(t, "老店", r.Seller)
	assert.Equal(t, "上海", r.Location)
	assert.Equal(t, "52人付款", r.SalesText)
}

func TestExtract_GenericAnchorFallback(t *testing.T) {
	html := `<body>
  <a href="//item.taobao.com/item.htm?id=11"><img src="https://img.alicdn.com/x/11.jpg" alt="手表 A"></a>
  <a href="//item.taobao.com/item.htm?id=11"><img src="https://img.alicdn.com/x/11.jpg" alt="手表 A"></a>
  <a href="https://detail.tmall.com/item.htm?id=12"><img src="https://img.alicdn.com/x/12.jpg"><span class="price">¥30</span></a>
  <a href="https://item.taobao.com/item.htm?id=13">no image</a>
  <a href="https://item.taobao.com/item.htm?id=14"><img src="https://img.alicdn.com/x/14.jpg"></a>
</body>`
	records := Extract(html, 0)
	require.Len(t, records, 2)
	assert.Equal(t, "手表 A", records[0].Title)
	assert.Equal(t, "https://item.taobao.com/item.htm?id=11", records[0].Link)
	assert.Equal(t, "¥30", records[1].Price)
}

func TestExtract_EmptyAndGarbage(t *testing.T) {
	assert.Empty(t, Extract("", 10))
	assert.Empty(t, Extract("<html><body><p>验证码</p></body></html>", 10))
	assert.NotNil(t, Extract("<<<>>>", 0))
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"//img.alicdn.com/a.jpg", "https://img.alicdn.com/a.jpg"},
		{"https://x.com/a", "https://x.com/a"},
		{"  ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURL(tt.in))
	}
}
