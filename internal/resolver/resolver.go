package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/RecoveryAshes/versearch/internal/cache"
	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

// Resolver 跳转链解析器
// 通过CDP事件追踪网络请求和页面导航,把搜狗跳转链解析为真实目标URL;
// 解析成功与失败都写入缓存,失败时缓存原URL避免TTL窗口内反复重试
type Resolver struct {
	cfg   core.ResolverConfig
	cache *cache.SearchCache
}

// NewResolver 创建解析器,解析结果缓存由解析器自持
func NewResolver(cfg core.ResolverConfig) *Resolver {
	ttl := time.Duration(cfg.CacheTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Resolver{
		cfg:   cfg,
		cache: cache.NewSearchCache(ttl),
	}
}

// IsRedirect 判断URL是否为未解析的跳转链
func (r *Resolver) IsRedirect(rawURL string) bool {
	return rawURL != "" && strings.Contains(rawURL, r.cfg.RedirectMarker)
}

// Resolve 解析跳转链到最终目标URL
// 所有策略都失败时返回原URL,解析失败不是错误
func (r *Resolver) Resolve(page *rod.Page, rawURL string) string {
	if !r.IsRedirect(rawURL) {
		return rawURL
	}

	// 缓存命中时不发起任何导航
	if v, ok := r.cache.Get(rawURL); ok {
		utils.Debugf("跳转链缓存命中: %s", rawURL)
		return v.(string)
	}

	resolved := r.resolveByNavigation(page, rawURL)
	r.cache.Set(rawURL, resolved)
	if resolved != rawURL {
		utils.Debugf("跳转链解析成功: %s -> %s", rawURL, resolved)
	} else {
		utils.Debugf("跳转链解析失败,沿用原URL: %s", rawURL)
	}
	return resolved
}

func (r *Resolver) resolveByNavigation(page *rod.Page, rawURL string) string {
	timeout := time.Duration(r.cfg.TimeoutSeconds * float64(time.Second))
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 导航前订阅事件: 响应URL/frame导航/新标签页,任一命中目标域名即解析完成
	found := make(chan string, 8)
	pctx := page.Context(ctx)

	go pctx.EachEvent(func(e *proto.NetworkResponseReceived) {
		if r.isTarget(e.Response.URL) {
			select {
			case found <- e.Response.URL:
			default:
			}
		}
	}, func(e *proto.PageFrameNavigated) {
		if r.isTarget(e.Frame.URL) {
			select {
			case found <- e.Frame.URL:
			default:
			}
		}
	})()

	browser := page.Browser()
	go browser.Context(ctx).EachEvent(func(e *proto.TargetTargetCreated) {
		if r.isTarget(e.TargetInfo.URL) {
			select {
			case found <- e.TargetInfo.URL:
			default:
			}
		}
	})()

	// 搜狗会校验Referer
	if idx := strings.Index(rawURL, "/link"); idx > 0 {
		if cleanup, err := page.SetExtraHeaders([]string{"Referer", rawURL[:idx]}); err == nil {
			defer cleanup()
		}
	}

	if err := pctx.Navigate(rawURL); err != nil {
		utils.Debugf("导航跳转链失败: %v", err)
	} else if err := pctx.WaitLoad(); err != nil {
		utils.Debugf("等待跳转页加载失败: %v", err)
	}

	select {
	case u := <-found:
		return u
	case <-ctx.Done():
	}

	// 回退1: 扫描所有已打开的标签页
	if u := r.scanPages(browser); u != "" {
		return u
	}

	// 回退2: 在搜狗中间页里找目标域名链接并点击
	if u := r.clickThrough(page, browser); u != "" {
		return u
	}

	// 回退3: 轮询当前页面URL
	if u := r.pollPageURL(page); u != "" {
		return u
	}

	return rawURL
}

// scanPages 检查浏览器中所有标签页是否有目标域名URL
// 搜狗跳转经常在新标签页中打开最终页面
func (r *Resolver) scanPages(browser *rod.Browser) string {
	pages, err := browser.Pages()
	if err != nil {
		utils.Debugf("枚举标签页失败: %v", err)
		return ""
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if r.isTarget(info.URL) {
			return info.URL
		}
	}
	return ""
}

// clickThrough 点击中间页里指向目标域名的链接,再在同页或新标签页中取URL
func (r *Resolver) clickThrough(page *rod.Page, browser *rod.Browser) string {
	for _, domain := range r.cfg.TargetDomains {
		el, err := page.Timeout(2 * time.Second).Element(fmt.Sprintf("a[href*='%s']", domain))
		if err != nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			utils.Debugf("点击目标链接失败: %v", err)
			continue
		}
		time.Sleep(time.Second)

		if u := r.scanPages(browser); u != "" {
			return u
		}
		if info, err := page.Info(); err == nil && r.isTarget(info.URL) {
			return info.URL
		}
	}
	return ""
}

// pollPageURL 固定次数轮询当前页面URL,等待慢速JS跳转
func (r *Resolver) pollPageURL(page *rod.Page) string {
	const maxChecks = 5
	for i := 0; i < maxChecks; i++ {
		info, err := page.Info()
		if err == nil && r.isTarget(info.URL) {
			return info.URL
		}
		if i < maxChecks-1 {
			time.Sleep(500 * time.Millisecond)
		}
	}
	return ""
}

func (r *Resolver) isTarget(u string) bool {
	if u == "" || strings.Contains(u, r.cfg.RedirectHost) {
		return false
	}
	for _, domain := range r.cfg.TargetDomains {
		if strings.Contains(u, domain) {
			return true
		}
	}
	return false
}

// ResolveBatch 复用同一标签页串行解析多个跳转链
// 条目间短暂停顿,避免触发搜狗限流
func (r *Resolver) ResolveBatch(page *rod.Page, urls []string) []string {
	resolved := make([]string, 0, len(urls))
	for i, u := range urls {
		utils.Debugf("解析跳转链 %d/%d: %s", i+1, len(urls), u)
		resolved = append(resolved, r.Resolve(page, u))
		if i < len(urls)-1 {
			time.Sleep(500 * time.Millisecond)
		}
	}
	return resolved
}
