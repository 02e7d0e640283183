package normalize

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/model"
)

const (
	keywordFragmentLen = 8
	groupSuffixLen     = 8
	base36             = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Group 把商品按顺序切分为 18 格的展示分组，最后一组不足部分为 nil。
//
// 同一次调用生成的分组共享时间戳，分组 ID 互不相同；
// 商品为空时返回空切片。
//
// 参数:
//
//	products: 归一化后的商品
//	keyword: 搜索关键词，用于生成分组 ID
//
// 返回值:
//
//	[]model.DisplayGroup: ceil(len(products)/18) 个分组
func Group(products []model.Product, keyword string) []model.DisplayGroup {
	return groupAt(products, keyword, time.Now())
}

func groupAt(products []model.Product, keyword string, now time.Time) []model.DisplayGroup {
	count := (len(products) + model.DisplayGroupSize - 1) / model.DisplayGroupSize
	groups := make([]model.DisplayGroup, 0, count)
	fragment := keywordFragment(keyword)
	seen := make(map[string]struct{}, count)

	for g := 0; g < count; g++ {
		var id string
		for {
			id = fmt.Sprintf("items_%s_%d_%s", fragment, now.UnixMilli(), randomBase36(groupSuffixLen))
			if _, dup := seen[id]; !dup {
				break
			}
		}
		seen[id] = struct{}{}

		group := model.DisplayGroup{ID: id}
		for slot := 0; slot < model.DisplayGroupSize; slot++ {
			idx := g*model.DisplayGroupSize + slot
			if idx >= len(products) {
				break
			}
			p := products[idx]
			group.Items[slot] = &p
		}
		groups = append(groups, group)
	}
	return groups
}

// keywordFragment 保留小写关键词中的 [a-z0-9]，最多 8 个字符。
func keywordFragment(keyword string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(keyword) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == keywordFragmentLen {
				break
			}
		}
	}
	return b.String()
}

func randomBase36(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = base36[rand.Intn(len(base36))]
	}
	return string(buf)
}
