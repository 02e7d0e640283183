// Package extractor 从淘宝搜索结果页的 HTML 中解析商品卡片。
//
// 淘宝的类名带有构建哈希（如 title--a1b2c），所以选择器都用 [class*='...'] 前缀匹配，
// 并按新旧版式依次尝试。
package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Tchindavaldo/yuunna-backend/internal/model"
)

// cardSelectors 按优先级排列，第一个有匹配的组生效。
var cardSelectors = []string{
	"div[class*='search-content-col'] > a",
	".item.J_MouserOnverReq",
	".items > .item",
	"div[data-index]",
	"div.grid-item",
	"a[class*='doubleCardWrapper']",
}

const genericAnchorSelector = "a[href*='item.taobao'], a[href*='detail.tmall']"

// Field 是单个字段的提取结果，OK 为 false 表示没有找到。
type Field struct {
	Value string
	OK    bool
}

func found(v string) Field {
	v = strings.TrimSpace(v)
	return Field{Value: v, OK: v != ""}
}

// Card 是一个卡片上各字段的提取结果。
type Card struct {
	Title    Field
	Price    Field
	Image    Field
	Link     Field
	Seller   Field
	Location Field
	Sales    Field
}

// Record 把卡片转成 ListingRecord，缺失字段为空字符串。
func (c Card) Record() model.ListingRecord {
	return model.ListingRecord{
		Title:     c.Title.Value,
		Price:     c.Price.Value,
		ImageURL:  c.Image.Value,
		Link:      c.Link.Value,
		Seller:    c.Seller.Value,
		Location:  c.Location.Value,
		SalesText: c.Sales.Value,
	}
}

// Extract 解析搜索结果页 HTML，最多返回 max 条记录（max <= 0 表示不限）。
//
// 解析失败时返回空切片，不返回错误。
func Extract(html string, max int) []model.ListingRecord {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return []model.ListingRecord{}
	}
	return ExtractDocument(doc, max)
}

// ExtractDocument 同 Extract，但接收已解析的文档。
func ExtractDocument(doc *goquery.Document, max int) []model.ListingRecord {
	records := make([]model.ListingRecord, 0)
	for _, cards := range ExtractCards(doc) {
		records = append(records, cards.Record())
		if max > 0 && len(records) >= max {
			break
		}
	}
	if len(records) == 0 {
		records = extractGeneric(doc, max)
	}
	return records
}

// ExtractCards 用第一个命中的卡片选择器提取所有卡片。
func ExtractCards(doc *goquery.Document) []Card {
	for _, sel := range cardSelectors {
		nodes := doc.Find(sel)
		if nodes.Length() == 0 {
			continue
		}
		cards := make([]Card, 0, nodes.Length())
		nodes.Each(func(_ int, s *goquery.Selection) {
			cards = append(cards, extractCard(s))
		})
		return cards
	}
	return nil
}

func extractCard(s *goquery.Selection) Card {
	return Card{
		Title:    extractTitle(s),
		Price:    extractPrice(s),
		Image:    extractImage(s),
		Link:     extractLink(s),
		Seller:   firstText(s, "[class*='shopNameText']", ".shopname"),
		Location: extractLocation(s),
		Sales:    firstText(s, "[class*='realSales']", ".deal-cnt"),
	}
}

func extractTitle(s *goquery.Selection) Field {
	if f := firstText(s, "[class*='title--']", ".title"); f.OK {
		return f
	}
	if alt, ok := s.Find("img[alt]").First().Attr("alt"); ok {
		return found(alt)
	}
	return Field{}
}

func extractPrice(s *goquery.Selection) Field {
	intPart := strings.TrimSpace(s.Find("[class*='priceInt--']").First().Text())
	if intPart != "" {
		price := "¥" + intPart
		if frac := strings.TrimSpace(s.Find("[class*='priceFloat--']").First().Text()); frac != "" {
			price += "." + strings.TrimPrefix(frac, ".")
		}
		return found(price)
	}
	return firstText(s, "[class*='price']", ".price")
}

func extractImage(s *goquery.Selection) Field {
	if img := s.Find("img[class*='mainPic']").First(); img.Length() > 0 {
		if src := imageSource(img); src != "" {
			return found(NormalizeURL(src))
		}
	}
	if img := s.Find("img[class*='pic']").First(); img.Length() > 0 {
		if src := imageSource(img); src != "" {
			return found(NormalizeURL(src))
		}
	}
	var out Field
	s.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if src := imageSource(img); src != "" {
			out = found(NormalizeURL(src))
			return false
		}
		return true
	})
	return out
}

// imageSource 返回图片真实地址：src 是占位图（blank.gif 或过短）时改用懒加载属性。
func imageSource(img *goquery.Selection) string {
	src := strings.TrimSpace(img.AttrOr("src", ""))
	if src != "" && !isPlaceholder(src) {
		return src
	}
	for _, attr := range []string{"data-src", "data-ks-lazyload"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}

func isPlaceholder(src string) bool {
	return strings.Contains(src, "blank.gif") || len(src) < 20
}

func extractLink(s *goquery.Selection) Field {
	if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
		return found(NormalizeURL(href))
	}
	if href, ok := s.Find("a[href]").First().Attr("href"); ok {
		return found(NormalizeURL(href))
	}
	return Field{}
}

func extractLocation(s *goquery.Selection) Field {
	var parts []string
	s.Find("[class*='procity'] span").Each(func(_ int, span *goquery.Selection) {
		if t := strings.TrimSpace(span.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) > 0 {
		return found(strings.Join(parts, " / "))
	}
	return firstText(s, "[class*='procity']", ".location")
}

func firstText(s *goquery.Selection, selectors ...string) Field {
	for _, sel := range selectors {
		if f := found(s.Find(sel).First().Text()); f.OK {
			return f
		}
	}
	return Field{}
}

// extractGeneric 在所有卡片选择器都失效时，扫描指向商品详情页且带图片的链接。
func extractGeneric(doc *goquery.Document, max int) []model.ListingRecord {
	records := make([]model.ListingRecord, 0)
	seen := make(map[string]bool)
	doc.Find(genericAnchorSelector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		img := a.Find("img").First()
		if img.Length() == 0 {
			return true
		}
		link := NormalizeURL(a.AttrOr("href", ""))
		if link == "" || seen[link] {
			return true
		}

		title := strings.TrimSpace(img.AttrOr("alt", ""))
		if title == "" {
			title = strings.TrimSpace(a.Text())
		}
		price := ""
		if f := firstText(a, "[class*='price']", ".price"); f.OK {
			price = f.Value
		} else if looksLikePrice(a.Text()) {
			price = strings.TrimSpace(a.Text())
		}
		if title == "" && price == "" {
			return true
		}

		seen[link] = true
		rec := model.ListingRecord{Title: title, Price: price, Link: link}
		if src := imageSource(img); src != "" {
			rec.ImageURL = NormalizeURL(src)
		}
		records = append(records, rec)
		return max <= 0 || len(records) < max
	})
	return records
}

func looksLikePrice(text string) bool {
	return strings.ContainsAny(text, "¥￥")
}

// NormalizeURL 给协议相对地址（//host/path）补上 https:。
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return raw
}
