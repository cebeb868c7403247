package anticrawl

import (
	"strings"

	"github.com/go-rod/rod"

	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/models"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

// 判定置信度
const (
	confLoginWallURL     = 0.9  // 平台登录墙URL模式
	confGlobalURL        = 0.8  // 全局URL模式
	confLoginWallContent = 0.95 // 平台登录墙内容模式
	confPlainContent     = 0.9  // 非验证码类的内容模式
	confCaptchaElement   = 0.95 // DOM中存在验证码元素
	confCaptchaContext   = 0.7  // 仅文本上下文佐证,无DOM证据
)

// captchaElementJS 探测页面中可见的验证码相关元素
// name/id/class/alt/placeholder含captcha类标记的input/img/canvas
const captchaElementJS = `() => {
	const tokens = ["captcha", "verify", "validate", "yzm", "checkcode"];
	const els = document.querySelectorAll("input, img, canvas, iframe");
	for (const el of els) {
		const attrs = [el.name, el.id, el.className, el.alt, el.placeholder, el.src]
			.filter(Boolean).join(" ").toLowerCase();
		if (tokens.some(t => attrs.includes(t))) {
			const style = window.getComputedStyle(el);
			if (style.display !== "none" && style.visibility !== "hidden") {
				return true;
			}
		}
	}
	return false;
}`

// contentContainerJS 探测正文容器,存在则视为正常内容页
const contentContainerJS = `() => {
	if (document.querySelector("article, main")) {
		return true;
	}
	const classTokens = ["content", "article", "post-body", "rich_media"];
	const els = document.querySelectorAll("div, section");
	for (const el of els) {
		const cls = (el.className || "").toString().toLowerCase();
		if (classTokens.some(t => cls.includes(t))) {
			return true;
		}
	}
	return false;
}`

// PageSnapshot 页面状态快照,Classify的输入
// 把页面读取与判定逻辑分离,便于离线测试
type PageSnapshot struct {
	URL                 string
	Content             string
	HasCaptchaElement   bool
	HasContentContainer bool
}

// AntiCrawlerDetector 反爬响应检测器
// 识别登录墙/验证码/IP封禁/限流页,判定仅是建议性结论,不会让调用方失败
type AntiCrawlerDetector struct {
	cfg core.AntiCrawlConfig
}

// NewAntiCrawlerDetector 创建检测器
func NewAntiCrawlerDetector(cfg core.AntiCrawlConfig) *AntiCrawlerDetector {
	return &AntiCrawlerDetector{cfg: cfg}
}

// Detect 检测页面是否命中反爬响应
// 任何页面读取失败都视为未检测到
func (d *AntiCrawlerDetector) Detect(page *rod.Page, platform string) models.DetectionResult {
	snap := d.snapshot(page)
	return d.Classify(snap, platform)
}

// snapshot 采集页面快照,所有读取错误都被吞掉
func (d *AntiCrawlerDetector) snapshot(page *rod.Page) PageSnapshot {
	var snap PageSnapshot

	info, err := page.Info()
	if err != nil {
		utils.Warnf("读取页面URL失败: %v", err)
		return snap
	}
	snap.URL = info.URL

	html, err := page.HTML()
	if err != nil {
		utils.Warnf("读取页面内容失败: %v", err)
		return snap
	}
	snap.Content = html

	if res, err := page.Evaluate(&rod.EvalOptions{JS: captchaElementJS}); err == nil {
		snap.HasCaptchaElement = res.Value.Bool()
	}
	if res, err := page.Evaluate(&rod.EvalOptions{JS: contentContainerJS}); err == nil {
		snap.HasContentContainer = res.Value.Bool()
	}
	return snap
}

// Classify 对快照做分类判定
// 顺序: URL模式(最快) -> 内容模式;验证码类要求DOM或上下文佐证,避免普通页面误报
func (d *AntiCrawlerDetector) Classify(snap PageSnapshot, platform string) models.DetectionResult {
	if r := d.classifyURL(snap.URL, platform); r.Detected {
		return r
	}
	if r := d.classifyContent(snap, platform); r.Detected {
		return r
	}
	return models.NoDetection()
}

func (d *AntiCrawlerDetector) classifyURL(url, platform string) models.DetectionResult {
	urlLower := strings.ToLower(url)

	// 平台级登录墙URL模式优先
	if p, ok := d.cfg.Platforms[platform]; ok && p.LoginWall.Enabled {
		for _, pattern := range p.LoginWall.URLPatterns {
			if strings.Contains(urlLower, strings.ToLower(pattern)) {
				utils.Warnf("URL模式'%s'命中登录墙: %s", pattern, url)
				return models.DetectionResult{
					Detected:   true,
					Kind:       models.DetectionLoginWall,
					Confidence: confLoginWallURL,
					Details:    "URL模式'" + pattern + "'匹配",
				}
			}
		}
	}

	// 全局检测模式
	for key, dc := range d.cfg.Detection {
		kind := kindFromKey(key)
		if kind == models.DetectionNone {
			continue
		}
		for _, pattern := range dc.Patterns {
			if strings.Contains(urlLower, strings.ToLower(pattern)) {
				utils.Warnf("URL模式'%s'命中%s: %s", pattern, kind, url)
				return models.DetectionResult{
					Detected:   true,
					Kind:       kind,
					Confidence: confGlobalURL,
					Details:    "URL模式'" + pattern + "'匹配",
				}
			}
		}
	}

	return models.NoDetection()
}

func (d *AntiCrawlerDetector) classifyContent(snap PageSnapshot, platform string) models.DetectionResult {
	if snap.Content == "" {
		return models.NoDetection()
	}
	contentLower := strings.ToLower(snap.Content)

	// 平台级登录墙内容模式
	if p, ok := d.cfg.Platforms[platform]; ok && p.LoginWall.Enabled {
		for _, pattern := range p.LoginWall.ContentPatterns {
			if strings.Contains(contentLower, strings.ToLower(pattern)) {
				utils.Warnf("内容模式'%s'命中平台%s登录墙", pattern, platform)
				return models.DetectionResult{
					Detected:   true,
					Kind:       models.DetectionLoginWall,
					Confidence: confLoginWallContent,
					Details:    "内容模式'" + pattern + "'匹配",
				}
			}
		}
	}

	for key, dc := range d.cfg.Detection {
		kind := kindFromKey(key)
		if kind == models.DetectionNone {
			continue
		}
		for _, pattern := range dc.Patterns {
			patternLower := strings.ToLower(pattern)
			if !strings.Contains(contentLower, patternLower) {
				continue
			}

			if kind == models.DetectionCaptcha {
				if r := d.classifyCaptcha(snap, contentLower, pattern, patternLower); r.Detected {
					return r
				}
				continue
			}

			utils.Warnf("内容模式'%s'命中%s", pattern, kind)
			return models.DetectionResult{
				Detected:   true,
				Kind:       kind,
				Confidence: confPlainContent,
				Details:    "内容模式'" + pattern + "'匹配",
			}
		}
	}

	return models.NoDetection()
}

// classifyCaptcha 验证码判定比其他类别严格
// 优先级: DOM验证码元素 > 无正文容器且上下文佐证 > 不判定
func (d *AntiCrawlerDetector) classifyCaptcha(snap PageSnapshot, contentLower, pattern, patternLower string) models.DetectionResult {
	if snap.HasCaptchaElement {
		utils.Warnf("检测到验证码元素,模式'%s'", pattern)
		return models.DetectionResult{
			Detected:   true,
			Kind:       models.DetectionCaptcha,
			Confidence: confCaptchaElement,
			Details:    "页面存在验证码元素",
		}
	}

	// 正文容器是反向信号,按正常内容页处理
	if snap.HasContentContainer {
		return models.NoDetection()
	}

	// 检查匹配位置前后200字符是否有验证码佐证短语
	idx := strings.Index(contentLower, patternLower)
	if idx < 0 {
		return models.NoDetection()
	}
	start := max(0, idx-200)
	end := min(len(contentLower), idx+len(patternLower)+200)
	window := contentLower[start:end]

	for _, ctx := range d.cfg.CaptchaContexts {
		if strings.Contains(window, strings.ToLower(ctx)) {
			utils.Warnf("内容模式'%s'在验证码上下文中命中", pattern)
			return models.DetectionResult{
				Detected:   true,
				Kind:       models.DetectionCaptcha,
				Confidence: confCaptchaContext,
				Details:    "内容模式'" + pattern + "'匹配且上下文佐证",
			}
		}
	}

	return models.NoDetection()
}

func kindFromKey(key string) models.DetectionKind {
	switch key {
	case "captcha":
		return models.DetectionCaptcha
	case "ip_ban":
		return models.DetectionIPBan
	case "rate_limit":
		return models.DetectionRateLimit
	default:
		return models.DetectionNone
	}
}
