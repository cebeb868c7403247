package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/RecoveryAshes/versearch/internal/anticrawl"
	"github.com/RecoveryAshes/versearch/internal/browser"
	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/models"
	"github.com/RecoveryAshes/versearch/internal/resolver"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

// 搜索结果页导航重试次数
const navRetries = 2

// SogouSearcher 基于搜狗垂直搜索的浏览器适配器
// 微信和知乎共用同一套结果页结构,差异全部由平台配置表达:
// 选择器、固定查询参数、时间过滤映射、是否解析跳转链
type SogouSearcher struct {
	name     string
	cfg      core.PlatformConfig
	pool     *browser.Pool
	detector *anticrawl.AntiCrawlerDetector
	resolver *resolver.Resolver
}

// NewWeixinSearcher 创建微信公众号搜索适配器
func NewWeixinSearcher(cfg core.PlatformConfig, pool *browser.Pool,
	detector *anticrawl.AntiCrawlerDetector, res *resolver.Resolver) *SogouSearcher {
	return &SogouSearcher{name: "weixin", cfg: cfg, pool: pool, detector: detector, resolver: res}
}

// NewZhihuSearcher 创建知乎搜索适配器
func NewZhihuSearcher(cfg core.PlatformConfig, pool *browser.Pool,
	detector *anticrawl.AntiCrawlerDetector, res *resolver.Resolver) *SogouSearcher {
	return &SogouSearcher{name: "zhihu", cfg: cfg, pool: pool, detector: detector, resolver: res}
}

// Name 平台标识
func (s *SogouSearcher) Name() string {
	return s.name
}

// Search 执行搜狗垂直搜索
// 导航失败、反爬拦截、结果页结构不匹配都按空结果处理而非错误,
// 只有拿不到标签页这类基础设施问题才返回error
func (s *SogouSearcher) Search(ctx context.Context, query string, maxResults int, timeFilter string) (results []*models.SearchResult, err error) {
	query = sanitizeQuery(query)
	if query == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = resultsPerPage
	}

	searchURL := s.buildURL(query, timeFilter)
	utils.Infof("平台%s搜索: %s", s.name, searchURL)

	page, err := s.pool.GetPage()
	if err != nil {
		return nil, fmt.Errorf("获取标签页失败: %w", err)
	}
	defer s.pool.PutPage(page)

	// 浏览器操作panic时按空结果处理
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("平台%s搜索panic: %v", s.name, r)
			results, err = nil, nil
		}
	}()

	if !s.navigate(ctx, page, searchURL) {
		return nil, nil
	}

	detection := s.detector.Detect(page, s.name)
	if detection.Detected {
		utils.Warnf("平台%s检测到反爬响应: %s (置信度%.2f) %s",
			s.name, detection.Kind, detection.Confidence, detection.Details)
		switch detection.Kind {
		case models.DetectionLoginWall, models.DetectionCaptcha, models.DetectionIPBan:
			return nil, nil
		}
	}

	if !s.waitForList(page) {
		utils.Warnf("平台%s结果列表未出现,返回空结果", s.name)
		return nil, nil
	}

	results = s.parseWithPagination(page, maxResults)

	if s.cfg.ResolveRedirects && s.resolver != nil {
		s.resolveRedirects(page, results)
	}

	for _, r := range results {
		r.Platform = s.name
	}
	utils.Infof("平台%s搜索完成: %d条结果", s.name, len(results))
	return results, nil
}

// buildURL 拼装搜索URL: 固定参数 + 查询词 + 可选时间过滤
func (s *SogouSearcher) buildURL(query, timeFilter string) string {
	params := url.Values{}
	for k, v := range s.cfg.Params {
		params.Set(k, v)
	}
	params.Set("query", query)

	if timeFilter != "" {
		if code, ok := s.cfg.TimeFilters[timeFilter]; ok {
			params.Set("tsn", code)
		} else {
			utils.Warnf("平台%s不支持时间过滤'%s',忽略", s.name, timeFilter)
		}
	}
	return s.cfg.SearchURL + "?" + params.Encode()
}

// navigate 导航到结果页,被重定向回首页时退避重试
// 搜狗在识别到异常流量时会把带参数的搜索URL重定向到根路径
func (s *SogouSearcher) navigate(ctx context.Context, page *rod.Page, searchURL string) bool {
	for attempt := 1; attempt <= navRetries; attempt++ {
		if err := page.Context(ctx).Timeout(15 * time.Second).Navigate(searchURL); err != nil {
			utils.Warnf("平台%s导航失败(第%d次): %v", s.name, attempt, err)
		} else {
			if err := page.Timeout(15 * time.Second).WaitLoad(); err != nil {
				utils.Debugf("等待页面加载失败: %v", err)
			}
			time.Sleep(time.Second)

			info, err := page.Info()
			if err == nil && strings.Contains(info.URL, "query=") {
				return true
			}
			utils.Warnf("平台%s搜索页被重定向: %s", s.name, pageURL(page))
		}

		if attempt < navRetries {
			backoff := time.Duration(2*attempt) * time.Second
			utils.Infof("平台%s %s后重试导航", s.name, backoff)
			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
			}
		}
	}
	utils.Errorf("平台%s导航重试耗尽", s.name)
	return false
}

// waitForList 等待结果列表出现,首次5秒失败后再给8秒
func (s *SogouSearcher) waitForList(page *rod.Page) bool {
	sel := s.cfg.Selectors.List
	if sel == "" {
		return false
	}
	if _, err := page.Timeout(5 * time.Second).Element(sel); err == nil {
		return true
	}
	// 结果偶尔在domcontentloaded之后才渲染
	if _, err := page.Timeout(8 * time.Second).Element(sel); err == nil {
		return true
	}
	return false
}

// parseWithPagination 解析结果,不足maxResults且配置了翻页时继续翻页
func (s *SogouSearcher) parseWithPagination(page *rod.Page, maxResults int) []*models.SearchResult {
	results := s.parsePage(page, maxResults)

	maxPages := (maxResults + resultsPerPage - 1) / resultsPerPage
	for pageNum := 2; len(results) < maxResults && pageNum <= maxPages; pageNum++ {
		if !s.nextPage(page) {
			break
		}
		results = append(results, s.parsePage(page, maxResults-len(results))...)
	}

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// parsePage 解析当前结果页
func (s *SogouSearcher) parsePage(page *rod.Page, limit int) []*models.SearchResult {
	var results []*models.SearchResult

	elements, err := page.Elements(s.cfg.Selectors.List)
	if err != nil {
		utils.Debugf("平台%s列表选择器'%s'查询失败: %v", s.name, s.cfg.Selectors.List, err)
		return results
	}

	for i, el := range elements {
		if len(results) >= limit {
			break
		}
		item := s.extractItem(el)
		if item == nil {
			utils.Debugf("平台%s第%d项抽取失败,跳过", s.name, i)
			continue
		}
		results = append(results, item)
	}
	return results
}

// extractItem 从单条结果元素抽取标题、链接和元信息
// 标题和链接缺一不可,摘要、来源、日期尽力而为
func (s *SogouSearcher) extractItem(el *rod.Element) *models.SearchResult {
	titleEl, err := el.Element(s.cfg.Selectors.Title)
	if err != nil {
		return nil
	}
	title, err := titleEl.Text()
	if err != nil || strings.TrimSpace(title) == "" {
		return nil
	}

	linkEl := titleEl
	if s.cfg.Selectors.Link != "" && s.cfg.Selectors.Link != s.cfg.Selectors.Title {
		if le, err := el.Element(s.cfg.Selectors.Link); err == nil {
			linkEl = le
		}
	}
	href, err := linkEl.Attribute("href")
	if err != nil || href == nil || *href == "" {
		return nil
	}

	return &models.SearchResult{
		Title:   cleanText(title),
		URL:     absoluteURL(*href, s.cfg.BaseURL),
		Source:  s.childText(el, s.cfg.Selectors.Source),
		Date:    s.childText(el, s.cfg.Selectors.Date),
		Snippet: s.childText(el, s.cfg.Selectors.Snippet),
	}
}

// childText 读取可选的子元素文本,失败返回空串
func (s *SogouSearcher) childText(el *rod.Element, sel string) string {
	if sel == "" {
		return ""
	}
	child, err := el.Element(sel)
	if err != nil {
		return ""
	}
	text, err := child.Text()
	if err != nil {
		return ""
	}
	return cleanText(text)
}

// nextPage 点击下一页并等待列表重新渲染
func (s *SogouSearcher) nextPage(page *rod.Page) bool {
	sel := s.cfg.Selectors.Next
	if sel == "" {
		return false
	}
	btn, err := page.Timeout(2 * time.Second).Element(sel)
	if err != nil {
		return false
	}
	if class, err := btn.Attribute("class"); err == nil && class != nil {
		lower := strings.ToLower(*class)
		if strings.Contains(lower, "disabled") || strings.Contains(lower, "nop") {
			return false
		}
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		utils.Debugf("平台%s点击下一页失败: %v", s.name, err)
		return false
	}
	if err := page.Timeout(5 * time.Second).WaitLoad(); err != nil {
		utils.Debugf("平台%s等待下一页加载失败: %v", s.name, err)
	}
	return s.waitForList(page)
}

// resolveRedirects 把结果中的搜狗跳转链批量解析为真实URL
// 解析失败的保留原始跳转链,由后续抓取阶段识别并跳过
func (s *SogouSearcher) resolveRedirects(page *rod.Page, results []*models.SearchResult) {
	var urls []string
	var indices []int
	for i, r := range results {
		if s.resolver.IsRedirect(r.URL) {
			urls = append(urls, r.URL)
			indices = append(indices, i)
		}
	}
	if len(urls) == 0 {
		return
	}

	utils.Infof("平台%s解析%d条跳转链", s.name, len(urls))
	resolved := s.resolver.ResolveBatch(page, urls)
	for i, idx := range indices {
		if i < len(resolved) && resolved[i] != "" {
			results[idx].URL = resolved[i]
		}
	}
}

func pageURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
