// Package normalize 把抓取得到的原始商品记录转换为目录商品。
//
// 包括价格解析、中文标题翻译、分类检测、ID 生成以及 18 格展示分组。
package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	priceNoise  = strings.NewReplacer("¥", "", "￥", "", ",", "", "，", "", " ", "", "\u00a0", "", "\t", "")
	priceNumber = regexp.MustCompile(`^-?\d+(\.\d+)?`)
)

// ParsePrice 解析价格文本。
//
// 去掉货币符号、千分位逗号和空白后取开头的数字部分；
// 无法解析或结果为负数时返回 0。
//
// 参数:
//
//	raw: 价格文本，如 "¥1,299.00"
//
// 返回值:
//
//	float64: 解析后的价格
func ParsePrice(raw string) float64 {
	cleaned := priceNoise.Replace(strings.TrimSpace(raw))
	m := priceNumber.FindString(cleaned)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
