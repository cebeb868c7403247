package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Logging     LoggingConfig             `mapstructure:"logging"`
	Browser     BrowserConfig             `mapstructure:"browser"`
	AntiCrawl   AntiCrawlConfig           `mapstructure:"anti_crawl"`
	Compression CompressionConfig         `mapstructure:"compression"`
	Resolver    ResolverConfig            `mapstructure:"resolver"`
	Cache       CacheConfig               `mapstructure:"cache"`
	Platforms   map[string]PlatformConfig `mapstructure:"platforms"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless       bool     `mapstructure:"headless"`
	ViewportWidth  int      `mapstructure:"viewport_width"`
	ViewportHeight int      `mapstructure:"viewport_height"`
	Locale         string   `mapstructure:"locale"`
	UserAgents     []string `mapstructure:"user_agents"`
	// BlockResources 拦截的资源类型(image/font/media/stylesheet)
	BlockResources []string `mapstructure:"block_resources"`
	// MaxPages 标签页软上限,0表示由资源预算自动计算
	MaxPages int `mapstructure:"max_pages"`
}

// AntiCrawlConfig 反爬配置
type AntiCrawlConfig struct {
	Global    GlobalAntiCrawl              `mapstructure:"global"`
	Detection map[string]DetectionPatterns `mapstructure:"detection"`
	// CaptchaContexts 验证码上下文佐证短语(文本匹配需其中之一)
	CaptchaContexts []string                     `mapstructure:"captcha_contexts"`
	Platforms       map[string]PlatformAntiCrawl `mapstructure:"platform_overrides"`
}

// GlobalAntiCrawl 全局反爬参数
type GlobalAntiCrawl struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Delay     DelayConfig     `mapstructure:"delay"`
}

// RateLimitConfig 令牌桶限流配置
type RateLimitConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	MaxRequestsPerMinute int    `mapstructure:"max_requests_per_minute"`
	OnLimitExceeded      string `mapstructure:"on_limit_exceeded"` // reject | delay | queue
}

// DelayConfig 请求间隔配置
type DelayConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	MinDelayMs int    `mapstructure:"min_delay_ms"`
	MaxDelayMs int    `mapstructure:"max_delay_ms"`
	ApplyTo    string `mapstructure:"apply_to"` // before_request | after_request | between_requests
}

// DetectionPatterns 某一类反爬响应的匹配模式
type DetectionPatterns struct {
	Patterns []string `mapstructure:"patterns"`
}

// PlatformAntiCrawl 平台级反爬覆盖配置
type PlatformAntiCrawl struct {
	LoginWall LoginWallConfig  `mapstructure:"login_wall_detection"`
	RateLimit *RateLimitConfig `mapstructure:"rate_limit"`
	Delay     *DelayConfig     `mapstructure:"delay"`
}

// LoginWallConfig 登录墙检测配置
type LoginWallConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	URLPatterns     []string `mapstructure:"url_patterns"`
	ContentPatterns []string `mapstructure:"content_patterns"`
}

// CompressionConfig 内容压缩配置
type CompressionConfig struct {
	API        CompressionAPIConfig `mapstructure:"api"`
	Thresholds ThresholdConfig      `mapstructure:"thresholds"`
	Fetch      FetchConfig          `mapstructure:"fetch"`
}

// CompressionAPIConfig 压缩API配置
type CompressionAPIConfig struct {
	// KeyEnv 读取API密钥的环境变量名
	KeyEnv      string  `mapstructure:"key_env"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxRetries  int     `mapstructure:"max_retries"`
}

// ThresholdConfig 压缩阈值(token)
type ThresholdConfig struct {
	SingleArticle int `mapstructure:"single_article"`
	TotalContent  int `mapstructure:"total_content"`
	FinalOutput   int `mapstructure:"final_output"`
}

// FetchConfig 正文抓取配置
type FetchConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	TimeoutSeconds int `mapstructure:"timeout"`
}

// ResolverConfig 重定向解析配置
type ResolverConfig struct {
	// TargetDomains 解析目标域名(如 mp.weixin.qq.com)
	TargetDomains []string `mapstructure:"target_domains"`
	// RedirectHost 跳转链所在域名(解析结果不应包含)
	RedirectHost string `mapstructure:"redirect_host"`
	// RedirectMarker URL中标识未解析跳转链的子串
	RedirectMarker string  `mapstructure:"redirect_marker"`
	TimeoutSeconds float64 `mapstructure:"timeout"`
	CacheTTL       int     `mapstructure:"cache_ttl"`
}

// CacheConfig 缓存TTL配置(秒)
type CacheConfig struct {
	ResultTTL     int `mapstructure:"result_ttl"`
	ContentTTL    int `mapstructure:"content_ttl"`
	CompressedTTL int `mapstructure:"compressed_ttl"`
}

// PlatformConfig 平台适配器配置
type PlatformConfig struct {
	BaseURL   string           `mapstructure:"base_url"`
	SearchURL string           `mapstructure:"search_url"`
	Selectors SelectorConfig   `mapstructure:"selectors"`
	Content   ContentSelectors `mapstructure:"content_selectors"`
	// Params 搜索URL固定查询参数(如 type=2&ie=utf8)
	Params map[string]string `mapstructure:"params"`
	// TimeFilters 时间过滤参数映射(day/week/month/year -> 平台参数值)
	TimeFilters map[string]string `mapstructure:"time_filters"`
	// StaticFetch 正文优先走静态HTTP抓取(无需JS渲染的站点)
	StaticFetch bool `mapstructure:"static_fetch"`
	// ResolveRedirects 结果链接需要经过重定向解析
	ResolveRedirects bool `mapstructure:"resolve_redirects"`
}

// SelectorConfig 搜索结果页选择器
type SelectorConfig struct {
	List    string `mapstructure:"list"`
	Title   string `mapstructure:"title"`
	Link    string `mapstructure:"link"`
	Snippet string `mapstructure:"snippet"`
	Source  string `mapstructure:"source"`
	Date    string `mapstructure:"date"`
	// Next 下一页按钮选择器,为空表示不翻页
	Next string `mapstructure:"next"`
}

// ContentSelectors 正文抽取选择器
type ContentSelectors struct {
	Main   []string `mapstructure:"main"`
	Remove []string `mapstructure:"remove"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".versearch"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 日志
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 浏览器
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.locale", "zh-CN")
	v.SetDefault("browser.block_resources", []string{"image", "font", "media", "stylesheet"})
	v.SetDefault("browser.max_pages", 0)

	// 反爬
	v.SetDefault("anti_crawl.global.rate_limit.enabled", true)
	v.SetDefault("anti_crawl.global.rate_limit.max_requests_per_minute", 30)
	v.SetDefault("anti_crawl.global.rate_limit.on_limit_exceeded", "delay")
	v.SetDefault("anti_crawl.global.delay.enabled", true)
	v.SetDefault("anti_crawl.global.delay.min_delay_ms", 1000)
	v.SetDefault("anti_crawl.global.delay.max_delay_ms", 3000)
	v.SetDefault("anti_crawl.global.delay.apply_to", "between_requests")
	v.SetDefault("anti_crawl.captcha_contexts", []string{
		"验证码", "captcha", "verify code", "verification code",
		"请输入", "please enter", "输入验证码", "enter code",
	})

	// 压缩
	v.SetDefault("compression.api.key_env", "APIKEY_DEEPSEEK")
	v.SetDefault("compression.api.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("compression.api.model", "deepseek-chat")
	v.SetDefault("compression.api.temperature", 0.3)
	v.SetDefault("compression.api.max_retries", 2)
	v.SetDefault("compression.thresholds.single_article", 3000)
	v.SetDefault("compression.thresholds.total_content", 50000)
	v.SetDefault("compression.thresholds.final_output", 80000)
	v.SetDefault("compression.fetch.concurrency", 5)
	v.SetDefault("compression.fetch.timeout", 10)

	// 重定向解析
	v.SetDefault("resolver.target_domains", []string{"mp.weixin.qq.com", "zhihu.com"})
	v.SetDefault("resolver.redirect_host", "sogou.com")
	v.SetDefault("resolver.redirect_marker", "sogou.com/link")
	v.SetDefault("resolver.timeout", 8.0)
	v.SetDefault("resolver.cache_ttl", 3600)

	// 缓存
	v.SetDefault("cache.result_ttl", 300)
	v.SetDefault("cache.content_ttl", 3600)
	v.SetDefault("cache.compressed_ttl", 86400)
}

// Validate 校验配置的合法性
func (c *Config) Validate() error {
	if rl := c.AntiCrawl.Global.RateLimit; rl.Enabled {
		if rl.MaxRequestsPerMinute <= 0 {
			return fmt.Errorf("%w: max_requests_per_minute必须为正数", ErrInvalidConfig)
		}
		switch rl.OnLimitExceeded {
		case "reject", "delay", "queue":
		default:
			return fmt.Errorf("%w: 未知的on_limit_exceeded策略: %s", ErrInvalidConfig, rl.OnLimitExceeded)
		}
	}
	for name, p := range c.AntiCrawl.Platforms {
		if p.RateLimit != nil && p.RateLimit.MaxRequestsPerMinute <= 0 {
			return fmt.Errorf("%w: 平台%s的max_requests_per_minute必须为正数", ErrInvalidConfig, name)
		}
	}
	if c.Compression.Fetch.Concurrency < 0 {
		return fmt.Errorf("%w: fetch.concurrency不能为负数", ErrInvalidConfig)
	}
	return nil
}
