package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App       AppConfig       `json:"app"`
	MySQL     MySQLConfig     `json:"mysql"`
	Redis     RedisConfig     `json:"redis"`
	Browser   BrowserConfig   `json:"browser"`
	Cache     CacheConfig     `json:"cache"`
	Fallback  FallbackConfig  `json:"fallback"`
	Translate TranslateConfig `json:"translate"`
	Import    ImportConfig    `json:"import"`
	Email     EmailConfig     `json:"email"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env            string  `json:"env"`              // 运行环境: local / prod
	LogLevel       string  `json:"log_level"`        // 日志级别: debug / info / warn / error
	HTTPAddr       string  `json:"http_addr"`        // API 服务监听地址
	MetricsAddr    string  `json:"metrics_addr"`     // worker 指标服务地址
	DefaultKeyword string  `json:"default_keyword"`  // 未传 keyword 时的默认搜索词
	DefaultLimit   int     `json:"default_limit"`    // 未传 limit 时的默认条数
	MaxPageLimit   int     `json:"max_page_limit"`   // 单次请求允许的最大 limit
	RateLimit      float64 `json:"rate_limit"`       // 抓取限流速率（token/s）
	RateBurst      float64 `json:"rate_burst"`       // 抓取限流桶容量
	WorkerPoolSize int     `json:"worker_pool_size"` // 翻译/导入 worker 数
	QueueCapacity  int     `json:"queue_capacity"`   // 内存队列容量
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)，为空表示不使用 Redis
	Password string `json:"password"` // Redis 密码
}

// BrowserConfig 爬虫浏览器配置。
type BrowserConfig struct {
	BinPath         string        `json:"bin_path"`         // 浏览器可执行文件路径
	ProxyURL        string        `json:"proxy_url"`        // 代理服务器 URL
	Headless        bool          `json:"headless"`         // 是否使用无头模式
	UserAgent       string        `json:"user_agent"`       // 浏览器 UA
	Locale          string        `json:"locale"`           // 语言区域，如 zh-CN
	Timezone        string        `json:"timezone"`         // 时区，如 Asia/Shanghai
	ViewportWidth   int           `json:"viewport_width"`   // 视口宽度
	ViewportHeight  int           `json:"viewport_height"`  // 视口高度
	PageTimeout     time.Duration `json:"page_timeout"`     // 页面加载超时
	HomeSettle      time.Duration `json:"home_settle"`      // 首页加载后的等待时间
	SettleDelay     time.Duration `json:"settle_delay"`     // 搜索页渲染等待时间
	CookiesPath     string        `json:"cookies_path"`     // Cookie 文件路径
	RefreshCookies  bool          `json:"refresh_cookies"`  // 抓取成功后是否回写 Cookie
	DebugScreenshot bool          `json:"debug_screenshot"` // 无结果时是否保存截图
	ScreenshotDir   string        `json:"screenshot_dir"`   // 截图目录
	MaxFetchCount   int           `json:"max_fetch_count"`  // 单页最大解析数量（0 表示全部）
}

// CacheConfig 搜索缓存配置。
type CacheConfig struct {
	TTL           time.Duration `json:"ttl"`            // 条目过期时间
	SweepInterval time.Duration `json:"sweep_interval"` // 清理间隔
}

// FallbackConfig 备用商品 API 配置。
type FallbackConfig struct {
	APIURL      string        `json:"api_url"`      // 备用商品 API 地址
	Timeout     time.Duration `json:"timeout"`      // 请求超时
	PriceFactor float64       `json:"price_factor"` // 价格换算系数
}

// TranslateConfig 翻译配置。
type TranslateConfig struct {
	APIKey   string        `json:"api_key"`  // Google Translate API Key，为空时使用词典模拟
	Endpoint string        `json:"endpoint"` // 翻译 API 地址
	Source   string        `json:"source"`   // 源语言
	Target   string        `json:"target"`   // 目标语言
	Timeout  time.Duration `json:"timeout"`  // 请求超时
}

// ImportConfig 商品导入任务配置。
type ImportConfig struct {
	DedupWindow  time.Duration `json:"dedup_window"`  // 商品链接去重窗口
	PopTimeout   time.Duration `json:"pop_timeout"`   // 队列阻塞读取超时
	StuckTimeout time.Duration `json:"stuck_timeout"` // 任务卡住判定时间
	DigestEmail  string        `json:"digest_email"`  // 导入完成后的邮件接收人（为空则不发）
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// Load 从 JSON 文件加载配置。
//
// 它会先读取 .env，再尝试读取 configs/config.json，文件不存在时使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	_ = godotenv.Load(".env")

	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Save 保存配置到 JSON 文件。
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Default 返回默认配置（测试和工具使用）。
func Default() *Config {
	return getDefaultConfig()
}

func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:            "local",
			LogLevel:       "info",
			HTTPAddr:       ":8081",
			MetricsAddr:    ":2112",
			DefaultKeyword: "montre",
			DefaultLimit:   10,
			MaxPageLimit:   100,
			RateLimit:      0.2,
			RateBurst:      2,
			WorkerPoolSize: 8,
			QueueCapacity:  256,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/yuunna?parseTime=true&loc=Local&charset=utf8mb4",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Browser: BrowserConfig{
			Headless:       true,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Locale:         "zh-CN",
			Timezone:       "Asia/Shanghai",
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			PageTimeout:    60 * time.Second,
			HomeSettle:     5 * time.Second,
			SettleDelay:    15 * time.Second,
			CookiesPath:    "taobao-cookies.json",
			ScreenshotDir:  "/tmp/taobao/screenshots",
		},
		Cache: CacheConfig{
			TTL:           30 * time.Minute,
			SweepInterval: 10 * time.Minute,
		},
		Fallback: FallbackConfig{
			APIURL:      "https://fakestoreapi.com/products",
			Timeout:     10 * time.Second,
			PriceFactor: 7.2,
		},
		Translate: TranslateConfig{
			Endpoint: "https://translation.googleapis.com/language/translate/v2",
			Source:   "zh-CN",
			Target:   "fr",
			Timeout:  5 * time.Second,
		},
		Import: ImportConfig{
			DedupWindow:  24 * time.Hour,
			PopTimeout:   5 * time.Second,
			StuckTimeout: 10 * time.Minute,
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	d := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = d.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = d.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = d.App.HTTPAddr
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = d.App.MetricsAddr
	}
	if cfg.App.DefaultKeyword == "" {
		cfg.App.DefaultKeyword = d.App.DefaultKeyword
	}
	if cfg.App.DefaultLimit <= 0 {
		cfg.App.DefaultLimit = d.App.DefaultLimit
	}
	if cfg.App.MaxPageLimit <= 0 {
		cfg.App.MaxPageLimit = d.App.MaxPageLimit
	}
	if cfg.App.WorkerPoolSize <= 0 {
		cfg.App.WorkerPoolSize = d.App.WorkerPoolSize
	}
	if cfg.App.QueueCapacity <= 0 {
		cfg.App.QueueCapacity = d.App.QueueCapacity
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = d.MySQL.DSN
	}

	if cfg.Browser.UserAgent == "" {
		cfg.Browser.UserAgent = d.Browser.UserAgent
	}
	if cfg.Browser.Locale == "" {
		cfg.Browser.Locale = d.Browser.Locale
	}
	if cfg.Browser.Timezone == "" {
		cfg.Browser.Timezone = d.Browser.Timezone
	}
	if cfg.Browser.ViewportWidth <= 0 {
		cfg.Browser.ViewportWidth = d.Browser.ViewportWidth
	}
	if cfg.Browser.ViewportHeight <= 0 {
		cfg.Browser.ViewportHeight = d.Browser.ViewportHeight
	}
	if cfg.Browser.PageTimeout <= 0 {
		cfg.Browser.PageTimeout = d.Browser.PageTimeout
	}
	if cfg.Browser.HomeSettle < 0 {
		cfg.Browser.HomeSettle = 0
	}
	if cfg.Browser.SettleDelay <= 0 {
		cfg.Browser.SettleDelay = d.Browser.SettleDelay
	}
	if cfg.Browser.CookiesPath == "" {
		cfg.Browser.CookiesPath = d.Browser.CookiesPath
	}
	if cfg.Browser.ScreenshotDir == "" {
		cfg.Browser.ScreenshotDir = d.Browser.ScreenshotDir
	}

	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = d.Cache.TTL
	}
	if cfg.Cache.SweepInterval <= 0 {
		cfg.Cache.SweepInterval = d.Cache.SweepInterval
	}

	if cfg.Fallback.APIURL == "" {
		cfg.Fallback.APIURL = d.Fallback.APIURL
	}
	if cfg.Fallback.Timeout <= 0 {
		cfg.Fallback.Timeout = d.Fallback.Timeout
	}
	if cfg.Fallback.PriceFactor <= 0 {
		cfg.Fallback.PriceFactor = d.Fallback.PriceFactor
	}

	if cfg.Translate.Endpoint == "" {
		cfg.Translate.Endpoint = d.Translate.Endpoint
	}
	if cfg.Translate.Source == "" {
		cfg.Translate.Source = d.Translate.Source
	}
	if cfg.Translate.Target == "" {
		cfg.Translate.Target = d.Translate.Target
	}
	if cfg.Translate.Timeout <= 0 {
		cfg.Translate.Timeout = d.Translate.Timeout
	}

	if cfg.Import.DedupWindow <= 0 {
		cfg.Import.DedupWindow = d.Import.DedupWindow
	}
	if cfg.Import.PopTimeout <= 0 {
		cfg.Import.PopTimeout = d.Import.PopTimeout
	}
	if cfg.Import.StuckTimeout <= 0 {
		cfg.Import.StuckTimeout = d.Import.StuckTimeout
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = d.Email.SMTPPort
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("chrome_bin", "CHROME_BIN")
	_ = viper.BindEnv("translate_api_key", "GOOGLE_TRANSLATE_API_KEY")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("WORKER_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}
	if v := os.Getenv("APP_DEFAULT_KEYWORD"); v != "" {
		cfg.App.DefaultKeyword = v
	}
	setInt(&cfg.App.DefaultLimit, "APP_DEFAULT_LIMIT")
	setInt(&cfg.App.MaxPageLimit, "APP_MAX_PAGE_LIMIT")
	setFloat(&cfg.App.RateLimit, "APP_RATE_LIMIT")
	setFloat(&cfg.App.RateBurst, "APP_RATE_BURST")
	setInt(&cfg.App.WorkerPoolSize, "APP_WORKER_POOL_SIZE")
	setInt(&cfg.App.QueueCapacity, "APP_QUEUE_CAPACITY")

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			parsed.Addr = v + ":" + getenvDefault("DB_PORT", parsed.Addr, "3306")
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := viper.GetString("chrome_bin"); v != "" {
		cfg.Browser.BinPath = v
	}
	if v := os.Getenv("HTTP_PROXY"); v != "" {
		cfg.Browser.ProxyURL = v
	} else if v := os.Getenv("BROWSER_PROXY_URL"); v != "" {
		cfg.Browser.ProxyURL = v
	}
	setBool(&cfg.Browser.Headless, "BROWSER_HEADLESS")
	setBool(&cfg.Browser.DebugScreenshot, "BROWSER_DEBUG_SCREENSHOT")
	setBool(&cfg.Browser.RefreshCookies, "BROWSER_REFRESH_COOKIES")
	setDuration(&cfg.Browser.PageTimeout, "BROWSER_PAGE_TIMEOUT")
	setDuration(&cfg.Browser.SettleDelay, "BROWSER_SETTLE_DELAY")
	setInt(&cfg.Browser.MaxFetchCount, "BROWSER_MAX_FETCH_COUNT")
	if v := os.Getenv("TAOBAO_COOKIES_PATH"); v != "" {
		cfg.Browser.CookiesPath = v
	}

	setDuration(&cfg.Cache.TTL, "CACHE_TTL")
	setDuration(&cfg.Cache.SweepInterval, "CACHE_SWEEP_INTERVAL")

	if v := os.Getenv("FALLBACK_API_URL"); v != "" {
		cfg.Fallback.APIURL = v
	}

	if v := viper.GetString("translate_api_key"); v != "" {
		cfg.Translate.APIKey = v
	}
	if v := os.Getenv("TRANSLATE_TARGET"); v != "" {
		cfg.Translate.Target = v
	}

	setDuration(&cfg.Import.DedupWindow, "IMPORT_DEDUP_WINDOW")
	if v := os.Getenv("IMPORT_DIGEST_EMAIL"); v != "" {
		cfg.Import.DigestEmail = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	setInt(&cfg.Email.SMTPPort, "SMTP_PORT")
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	if dsn != "" {
		if parsed, err := mysql.ParseDSN(dsn); err == nil {
			return parsed
		}
	}
	fallback := mysql.NewConfig()
	fallback.User = "root"
	fallback.Net = "tcp"
	fallback.Addr = "localhost:3306"
	fallback.DBName = "yuunna"
	fallback.ParseTime = true
	fallback.Params = map[string]string{"charset": "utf8mb4"}
	return fallback
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (b *BrowserConfig) UnmarshalJSON(data []byte) error {
	type Alias BrowserConfig
	aux := &struct {
		PageTimeout string `json:"page_timeout"`
		HomeSettle  string `json:"home_settle"`
		SettleDelay string `json:"settle_delay"`
		*Alias
	}{Alias: (*Alias)(b)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	var err error
	if b.PageTimeout, err = parseDurationField("page_timeout", aux.PageTimeout, b.PageTimeout); err != nil {
		return err
	}
	if b.HomeSettle, err = parseDurationField("home_settle", aux.HomeSettle, b.HomeSettle); err != nil {
		return err
	}
	if b.SettleDelay, err = parseDurationField("settle_delay", aux.SettleDelay, b.SettleDelay); err != nil {
		return err
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (b BrowserConfig) MarshalJSON() ([]byte, error) {
	type Alias BrowserConfig
	return json.Marshal(&struct {
		PageTimeout string `json:"page_timeout"`
		HomeSettle  string `json:"home_settle"`
		SettleDelay string `json:"settle_delay"`
		*Alias
	}{
		PageTimeout: b.PageTimeout.String(),
		HomeSettle:  b.HomeSettle.String(),
		SettleDelay: b.SettleDelay.String(),
		Alias:       (*Alias)(&b),
	})
}

// UnmarshalJSON 解析 ttl / sweep_interval 字符串。
func (c *CacheConfig) UnmarshalJSON(data []byte) error {
	var aux struct {
		TTL           string `json:"ttl"`
		SweepInterval string `json:"sweep_interval"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var err error
	if c.TTL, err = parseDurationField("ttl", aux.TTL, c.TTL); err != nil {
		return err
	}
	if c.SweepInterval, err = parseDurationField("sweep_interval", aux.SweepInterval, c.SweepInterval); err != nil {
		return err
	}
	return nil
}

// MarshalJSON 将 Duration 转为字符串。
func (c CacheConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"ttl":            c.TTL.String(),
		"sweep_interval": c.SweepInterval.String(),
	})
}

// UnmarshalJSON 解析 timeout 字符串。
func (f *FallbackConfig) UnmarshalJSON(data []byte) error {
	type Alias FallbackConfig
	aux := &struct {
		Timeout string `json:"timeout"`
		*Alias
	}{Alias: (*Alias)(f)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	var err error
	f.Timeout, err = parseDurationField("fallback.timeout", aux.Timeout, f.Timeout)
	return err
}

// MarshalJSON 将 Duration 转为字符串。
func (f FallbackConfig) MarshalJSON() ([]byte, error) {
	type Alias FallbackConfig
	return json.Marshal(&struct {
		Timeout string `json:"timeout"`
		*Alias
	}{Timeout: f.Timeout.String(), Alias: (*Alias)(&f)})
}

// UnmarshalJSON 解析 timeout 字符串。
func (t *TranslateConfig) UnmarshalJSON(data []byte) error {
	type Alias TranslateConfig
	aux := &struct {
		Timeout string `json:"timeout"`
		*Alias
	}{Alias: (*Alias)(t)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	var err error
	t.Timeout, err = parseDurationField("translate.timeout", aux.Timeout, t.Timeout)
	return err
}

// MarshalJSON 将 Duration 转为字符串。
func (t TranslateConfig) MarshalJSON() ([]byte, error) {
	type Alias TranslateConfig
	return json.Marshal(&struct {
		Timeout string `json:"timeout"`
		*Alias
	}{Timeout: t.Timeout.String(), Alias: (*Alias)(&t)})
}

// UnmarshalJSON 解析导入任务相关的时长字符串。
func (i *ImportConfig) UnmarshalJSON(data []byte) error {
	type Alias ImportConfig
	aux := &struct {
		DedupWindow  string `json:"dedup_window"`
		PopTimeout   string `json:"pop_timeout"`
		StuckTimeout string `json:"stuck_timeout"`
		*Alias
	}{Alias: (*Alias)(i)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	var err error
	if i.DedupWindow, err = parseDurationField("dedup_window", aux.DedupWindow, i.DedupWindow); err != nil {
		return err
	}
	if i.PopTimeout, err = parseDurationField("pop_timeout", aux.PopTimeout, i.PopTimeout); err != nil {
		return err
	}
	if i.StuckTimeout, err = parseDurationField("stuck_timeout", aux.StuckTimeout, i.StuckTimeout); err != nil {
		return err
	}
	return nil
}

// MarshalJSON 将 Duration 转为字符串。
func (i ImportConfig) MarshalJSON() ([]byte, error) {
	type Alias ImportConfig
	return json.Marshal(&struct {
		DedupWindow  string `json:"dedup_window"`
		PopTimeout   string `json:"pop_timeout"`
		StuckTimeout string `json:"stuck_timeout"`
		*Alias
	}{
		DedupWindow:  i.DedupWindow.String(),
		PopTimeout:   i.PopTimeout.String(),
		StuckTimeout: i.StuckTimeout.String(),
		Alias:        (*Alias)(&i),
	})
}

func parseDurationField(name, raw string, current time.Duration) (time.Duration, error) {
	if raw == "" {
		return current, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", name, err)
	}
	return d, nil
}
