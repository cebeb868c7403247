package browser

import (
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"

	"github.com/RecoveryAshes/versearch/internal/anticrawl"
	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

// Pool 浏览器实例池
// 浏览器常驻复用,每次搜索只新建标签页;
// 页面通过stealth注入降低自动化指纹,并拦截图片等资源加速加载
type Pool struct {
	mu       sync.Mutex
	cfg      core.BrowserConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	uaPool   *anticrawl.UserAgentPool
	budget   *PageBudget
	pages    int
	log      zerolog.Logger
}

// NewPool 创建浏览器池(懒初始化,首次GetPage时才启动浏览器)
func NewPool(cfg core.BrowserConfig) *Pool {
	return &Pool{
		cfg:    cfg,
		uaPool: anticrawl.NewUserAgentPool(cfg.UserAgents),
		budget: NewPageBudget(cfg.MaxPages),
		log:    utils.Component("browser"),
	}
}

// Init 启动浏览器,重复调用是幂等的
func (p *Pool) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initLocked()
}

func (p *Pool) initLocked() error {
	if p.browser != nil {
		return nil
	}

	l := launcher.New().
		Headless(p.cfg.Headless).
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage")
	if p.cfg.Locale != "" {
		l = l.Set("lang", p.cfg.Locale)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("连接浏览器失败: %w", err)
	}

	p.launcher = l
	p.browser = browser
	p.log.Info().Msgf("浏览器已启动: %s", controlURL)
	return nil
}

// GetPage 新建一个标签页
// 浏览器未启动时自动初始化;每个标签页分配随机UA并拦截配置的资源类型
func (p *Pool) GetPage() (*rod.Page, error) {
	p.mu.Lock()
	if err := p.initLocked(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	browser := p.browser
	p.pages++
	count := p.pages
	p.mu.Unlock()

	if err := p.budget.Acquire(count); err != nil {
		p.release()
		return nil, err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		p.release()
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}

	ua := p.uaPool.Pick()
	if err := (proto.NetworkSetUserAgentOverride{UserAgent: ua}).Call(page); err != nil {
		p.log.Warn().Msgf("设置User-Agent失败: %v", err)
	}

	width, height := p.cfg.ViewportWidth, p.cfg.ViewportHeight
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  width,
		Height: height,
	}); err != nil {
		p.log.Warn().Msgf("设置视口失败: %v", err)
	}

	p.setupResourceBlocking(page)

	p.log.Debug().Msgf("新建标签页, UA: %.50s...", ua)
	return page, nil
}

// PutPage 关闭并归还标签页
func (p *Pool) PutPage(page *rod.Page) {
	if page == nil {
		return
	}
	if err := page.Close(); err != nil {
		p.log.Warn().Msgf("关闭标签页失败: %v", err)
	}
	p.release()
}

// release 归还一个标签页计数
func (p *Pool) release() {
	p.mu.Lock()
	if p.pages > 0 {
		p.pages--
	}
	p.mu.Unlock()
}

// setupResourceBlocking 拦截配置的资源类型(图片/字体/媒体/样式表)
func (p *Pool) setupResourceBlocking(page *rod.Page) {
	if len(p.cfg.BlockResources) == 0 {
		return
	}

	blocked := make(map[proto.NetworkResourceType]bool, len(p.cfg.BlockResources))
	for _, r := range p.cfg.BlockResources {
		switch r {
		case "image":
			blocked[proto.NetworkResourceTypeImage] = true
		case "font":
			blocked[proto.NetworkResourceTypeFont] = true
		case "media":
			blocked[proto.NetworkResourceTypeMedia] = true
		case "stylesheet":
			blocked[proto.NetworkResourceTypeStylesheet] = true
		}
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if blocked[ctx.Request.Type()] {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

// Browser 返回底层浏览器实例,未初始化时报错
func (p *Pool) Browser() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser == nil {
		return nil, core.ErrBrowserNotRunning
	}
	return p.browser, nil
}

// Close 关闭浏览器并释放资源,池可以重新Init
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser == nil {
		return nil
	}

	if err := p.browser.Close(); err != nil {
		p.log.Warn().Msgf("关闭浏览器失败: %v", err)
	}
	if p.launcher != nil {
		p.launcher.Cleanup()
	}

	p.browser = nil
	p.launcher = nil
	p.pages = 0
	p.log.Info().Msg("浏览器池已关闭")
	return nil
}
