package content

import (
	"regexp"
	"strings"
	"time"

	"github.com/RecoveryAshes/versearch/internal/anticrawl"
	"github.com/RecoveryAshes/versearch/internal/browser"
	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/models"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	excessSpaces   = regexp.MustCompile(` {2,}`)
)

// Fetcher 文章正文抓取器
// 按平台配置的选择器抽取正文,抓取前做反爬检测;
// 一次失败的抓取是正常结果而非错误,统一返回空串
type Fetcher struct {
	pool           *browser.Pool
	detector       *anticrawl.AntiCrawlerDetector
	static         *StaticFetcher
	platforms      map[string]core.PlatformConfig
	redirectMarker string
}

// NewFetcher 创建正文抓取器
func NewFetcher(pool *browser.Pool, detector *anticrawl.AntiCrawlerDetector, static *StaticFetcher,
	platforms map[string]core.PlatformConfig, redirectMarker string) *Fetcher {
	return &Fetcher{
		pool:           pool,
		detector:       detector,
		static:         static,
		platforms:      platforms,
		redirectMarker: redirectMarker,
	}
}

// Fetch 抓取文章正文
// 返回清洗后的正文,抓取失败返回空串
func (f *Fetcher) Fetch(pageURL, platform string, timeout time.Duration) string {
	if strings.TrimSpace(pageURL) == "" {
		utils.Warnf("平台%s的URL为空,跳过抓取", platform)
		return ""
	}
	if err := utils.ValidateURL(pageURL); err != nil {
		utils.Warnf("平台%s的URL不合法,跳过抓取: %v", platform, err)
		return ""
	}

	pcfg, ok := f.platforms[platform]
	if !ok {
		utils.Warnf("平台'%s'未配置,跳过抓取", platform)
		return ""
	}
	if len(pcfg.Content.Main) == 0 {
		utils.Warnf("平台'%s'未配置正文选择器,跳过抓取", platform)
		return ""
	}

	// 未解析的跳转链应该在调用前解析完成
	if f.redirectMarker != "" && strings.Contains(pageURL, f.redirectMarker) {
		utils.Warnf("跳过未解析的跳转链: %s", pageURL)
		return ""
	}

	if pcfg.StaticFetch && f.static != nil {
		if text, err := f.static.Fetch(pageURL, pcfg); err == nil {
			return cleanContent(text)
		} else {
			utils.Debugf("静态抓取失败,回退到浏览器: %v", err)
		}
	}

	return f.fetchWithBrowser(pageURL, platform, pcfg, timeout)
}

func (f *Fetcher) fetchWithBrowser(pageURL, platform string, pcfg core.PlatformConfig, timeout time.Duration) (content string) {
	page, err := f.pool.GetPage()
	if err != nil {
		utils.Errorf("获取标签页失败: %v", err)
		return ""
	}
	defer f.pool.PutPage(page)

	// 浏览器操作panic时按抓取失败处理
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("抓取正文panic: URL=%s, 错误=%v", pageURL, r)
			content = ""
		}
	}()

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	p := page.Timeout(timeout)

	utils.Debugf("抓取正文: %s (平台: %s)", pageURL, platform)
	if err := p.Navigate(pageURL); err != nil {
		utils.Warnf("导航失败 %s: %v", pageURL, err)
		return ""
	}
	if err := p.WaitLoad(); err != nil {
		utils.Debugf("等待页面加载失败: %v", err)
	}

	// 短暂停顿等页面稳定后再做反爬检测
	time.Sleep(500 * time.Millisecond)

	detection := f.detector.Detect(page, platform)
	if detection.Detected {
		utils.Warnf("检测到反爬响应 %s: %s (置信度%.2f) %s",
			pageURL, detection.Kind, detection.Confidence, detection.Details)
		switch detection.Kind {
		case models.DetectionLoginWall, models.DetectionCaptcha, models.DetectionIPBan:
			return ""
		}
	}

	// 先移除广告、二维码等干扰元素
	for _, sel := range pcfg.Content.Remove {
		if _, err := page.Eval(`(sel) => {
			document.querySelectorAll(sel).forEach(el => el.remove())
		}`, sel); err != nil {
			utils.Debugf("移除干扰元素'%s'失败: %v", sel, err)
		}
	}

	// 按顺序尝试正文选择器,取第一个非空文本
	for _, sel := range pcfg.Content.Main {
		el, err := page.Timeout(time.Second).Element(sel)
		if err != nil {
			continue
		}
		text, err := el.Text()
		if err != nil {
			utils.Debugf("选择器'%s'读取文本失败: %v", sel, err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			utils.Debugf("选择器'%s'抽取正文成功", sel)
			return cleanContent(text)
		}
	}

	utils.Warnf("未从%s抽取到正文", pageURL)
	return ""
}

// cleanContent 正文清洗: 压缩连续空行和空格
func cleanContent(text string) string {
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	text = excessSpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
