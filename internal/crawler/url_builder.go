package crawler

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// HomeURL 先访问首页，让风控脚本写入基础 Cookie。
	HomeURL = "https://www.taobao.com/"
	// SearchBaseURL 搜索结果页地址。
	SearchBaseURL = "https://s.taobao.com/search"
)

// BuildSearchURL 构造搜索地址，page <= 1 时不带页码参数。
//
// 示例: BuildSearchURL("montre", 3) => https://s.taobao.com/search?page=3&q=montre
func BuildSearchURL(keyword string, page int) string {
	q := url.Values{}
	q.Set("q", strings.TrimSpace(keyword))
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	// url.Values.Encode 按 key 排序，page 在 q 之前
	return SearchBaseURL + "?" + q.Encode()
}
