package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod/lib/proto"
)

// jarCookie 是 Cookie 文件中的单条记录。
//
// 文件格式兼容浏览器插件/Selenium 导出：过期时间可能叫 expiry 或 expires。
type jarCookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain,omitempty"`
	Path     string   `json:"path,omitempty"`
	Secure   bool     `json:"secure,omitempty"`
	HTTPOnly bool     `json:"httpOnly,omitempty"`
	Expiry   *float64 `json:"expiry,omitempty"`
	Expires  *float64 `json:"expires,omitempty"`
	SameSite string   `json:"sameSite,omitempty"`
}

// LoadCookieJar 读取 Cookie 文件并转换成 CDP 参数。
//
// 文件不存在时返回 (nil, nil)。sameSite 字段会被丢弃（导出值经常不被 CDP 接受），
// 缺少 name 或 value 的记录被跳过。
func LoadCookieJar(path string) ([]*proto.NetworkCookieParam, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookie jar: %w", err)
	}

	var raw []jarCookie
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse cookie jar: %w", err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(raw))
	for _, c := range raw {
		if c.Name == "" || c.Value == "" {
			continue
		}
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Domain == "" {
			p.URL = HomeURL
		}
		switch {
		case c.Expiry != nil:
			p.Expires = proto.TimeSinceEpoch(*c.Expiry)
		case c.Expires != nil && *c.Expires > 0:
			p.Expires = proto.TimeSinceEpoch(*c.Expires)
		}
		params = append(params, p)
	}
	return params, nil
}

// SaveCookieJar 把浏览器当前的 Cookie 写回文件（只保留淘宝相关域名）。
func SaveCookieJar(path string, cookies []*proto.NetworkCookie) error {
	out := make([]jarCookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || !isTaobaoDomain(c.Domain) {
			continue
		}
		jc := jarCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			exp := float64(c.Expires)
			jc.Expiry = &exp
		}
		out = append(out, jc)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cookie jar: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create cookie dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write cookie jar: %w", err)
	}
	return os.Rename(tmp, path)
}

func isTaobaoDomain(domain string) bool {
	return containsAny(domain, []string{"taobao.com", "tmall.com", "alicdn.com", "alibaba.com", "mmstat.com"})
}
