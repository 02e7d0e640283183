// Package dedup 在导入窗口内按商品链接去重。
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "taobao:dedup:link:"

// Deduplicator 使用 SETNX 记录已导入的商品链接。
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeduplicator 创建去重器，ttl 为去重窗口（默认 1 小时）。
func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Deduplicator{
		rdb: rdb,
		ttl: ttl,
	}
}

// IsDuplicate 判断链接在窗口内是否已出现过，首次出现时会同时登记。
func (d *Deduplicator) IsDuplicate(ctx context.Context, link string) (bool, error) {
	if d == nil || d.rdb == nil || link == "" {
		return false, nil
	}
	ok, err := d.rdb.SetNX(ctx, keyFor(link), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

// Delete 撤销登记，用于入库失败后允许重试。
func (d *Deduplicator) Delete(ctx context.Context, link string) error {
	if d == nil || d.rdb == nil || link == "" {
		return nil
	}
	if err := d.rdb.Del(ctx, keyFor(link)).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

func keyFor(link string) string {
	sum := sha256.Sum256([]byte(CanonicalLink(link)))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// CanonicalLink 去掉跟踪参数，让同一商品的不同链接映射到同一个键。
//
// 淘宝/天猫商品页只保留 id 参数；其他链接去掉 query 与 fragment。
func CanonicalLink(link string) string {
	link = strings.TrimSpace(link)
	if strings.HasPrefix(link, "//") {
		link = "https:" + link
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	host := strings.ToLower(u.Host)
	canon := "https://" + host + u.Path
	if id := u.Query().Get("id"); id != "" && (strings.Contains(host, "taobao") || strings.Contains(host, "tmall")) {
		canon += "?id=" + id
	}
	return canon
}
