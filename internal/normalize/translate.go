package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/config"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"
)

// UntranslatedPrefix 词典模拟无法翻译任何词时添加的前缀。
const UntranslatedPrefix = "[Non traduit] "

var cjkPattern = regexp.MustCompile(`[\x{4e00}-\x{9fa5}]`)

// ErrEmptyTranslation 翻译接口返回了空结果。
var ErrEmptyTranslation = errors.New("empty translation")

// ContainsCJK 判断文本是否包含中文字符（U+4E00 至 U+9FA5）。
func ContainsCJK(text string) bool {
	if text == "" {
		return false
	}
	return cjkPattern.MatchString(text)
}

// Translator 把文本翻译为目标语言。
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// GoogleTranslator 调用 Google Translate v2 接口。
type GoogleTranslator struct {
	client   *http.Client
	endpoint string
	apiKey   string
	source   string
	target   string
}

// NewGoogleTranslator 根据配置创建翻译客户端。
func NewGoogleTranslator(cfg config.TranslateConfig) *GoogleTranslator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	source, target := cfg.Source, cfg.Target
	if source == "" {
		source = "zh-CN"
	}
	if target == "" {
		target = "fr"
	}
	return &GoogleTranslator{
		client:   &http.Client{Timeout: timeout},
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		source:   source,
		target:   target,
	}
}

type googleRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type googleResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

// Translate 实现 Translator。
func (g *GoogleTranslator) Translate(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(googleRequest{Q: text, Source: g.source, Target: g.target, Format: "text"})
	if err != nil {
		return "", fmt.Errorf("marshal translate request: %w", err)
	}

	u, err := url.Parse(g.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse translate endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", g.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("translate api status %d", resp.StatusCode)
	}

	var out googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}
	if len(out.Data.Translations) == 0 || strings.TrimSpace(out.Data.Translations[0].TranslatedText) == "" {
		return "", ErrEmptyTranslation
	}
	return out.Data.Translations[0].TranslatedText, nil
}

// dictionaryEntry 按顺序替换，较长的词条可能已被较短的词条部分替换。
type dictionaryEntry struct {
	zh string
	fr string
}

var dictionary = []dictionaryEntry{
	// 服装
	{"衣服", "vêtement"},
	{"裙子", "robe"},
	{"裤子", "pantalon"},
	{"衬衫", "chemise"},
	{"外套", "manteau"},
	{"夹克", "veste"},
	{"T恤", "t-shirt"},
	{"毛衣", "pull"},
	{"帽子", "chapeau"},
	{"鞋", "chaussure"},

	// 电子
	{"电子产品", "produit électronique"},
	{"手机", "téléphone"},
	{"电脑", "ordinateur"},
	{"笔记本电脑", "ordinateur portable"},
	{"耳机", "écouteurs"},
	{"音箱", "enceinte"},
	{"电视", "télévision"},
	{"相机", "appareil photo"},
	{"智能手表", "montre intelligente"},

	// 家居
	{"家居", "article de maison"},
	{"花园", "jardin"},
	{"厨房", "cuisine"},
	{"家具", "meuble"},
	{"装饰", "décoration"},
	{"床", "lit"},
	{"桌子", "table"},
	{"椅子", "chaise"},
	{"灯", "lampe"},
	{"地毯", "tapis"},
	{"窗帘", "rideau"},
	{"餐具", "vaisselle"},

	// 常用词
	{"新", "nouveau"},
	{"热", "chaud"},
	{"款", "modèle"},
	{"男", "homme"},
	{"女", "femme"},
	{"儿童", "enfant"},
	{"大", "grand"},
	{"小", "petit"},
	{"中", "moyen"},
	{"高", "haut"},
	{"低", "bas"},
	{"质量", "qualité"},
	{"价格", "prix"},
	{"折扣", "remise"},
	{"促销", "promotion"},
	{"包邮", "livraison gratuite"},
	{"正品", "authentique"},
	{"品牌", "marque"},
}

// DictionaryTranslator 基于内置词典的模拟翻译，不依赖网络。
type DictionaryTranslator struct{}

// Translate 逐条替换已知词汇；一个词都没替换且含中文时加上 UntranslatedPrefix。
func (DictionaryTranslator) Translate(_ context.Context, text string) (string, error) {
	out := text
	for _, e := range dictionary {
		out = strings.ReplaceAll(out, e.zh, e.fr)
	}
	if out == text && ContainsCJK(text) {
		return UntranslatedPrefix + text, nil
	}
	return out, nil
}

// FallbackTranslator 先调用主翻译器，失败时退回到次翻译器。
type FallbackTranslator struct {
	primary   Translator
	secondary Translator
	logger    *slog.Logger
}

// NewFallbackTranslator 组合两个翻译器，primary 可以为 nil。
func NewFallbackTranslator(primary, secondary Translator, logger *slog.Logger) *FallbackTranslator {
	return &FallbackTranslator{primary: primary, secondary: secondary, logger: logger}
}

// Translate 实现 Translator。
func (f *FallbackTranslator) Translate(ctx context.Context, text string) (string, error) {
	if f.primary != nil {
		out, err := f.primary.Translate(ctx, text)
		if err == nil && out != "" {
			metrics.TranslationsTotal.WithLabelValues("api").Inc()
			return out, nil
		}
		if f.logger != nil {
			f.logger.Warn("translate api failed, using dictionary", slog.String("error", errString(err)))
		}
	}
	if f.secondary == nil {
		return "", ErrEmptyTranslation
	}
	out, err := f.secondary.Translate(ctx, text)
	if err != nil {
		return "", err
	}
	metrics.TranslationsTotal.WithLabelValues("dictionary").Inc()
	return out, nil
}

// NewTranslator 按配置组装翻译链：有 API Key 时优先走 Google，否则只用词典。
func NewTranslator(cfg config.TranslateConfig, logger *slog.Logger) Translator {
	var primary Translator
	if cfg.APIKey != "" {
		primary = NewGoogleTranslator(cfg)
	}
	return NewFallbackTranslator(primary, DictionaryTranslator{}, logger)
}

func errString(err error) string {
	if err == nil {
		return "empty result"
	}
	return err.Error()
}
