package search

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/RecoveryAshes/versearch/internal/anticrawl"
	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/models"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

// BingSearcher 必应静态搜索适配器
// 结果页不依赖JS渲染,直接走HTTP抓取,不占用浏览器标签页
type BingSearcher struct {
	cfg    core.PlatformConfig
	uaPool *anticrawl.UserAgentPool
}

// NewBingSearcher 创建必应搜索适配器
func NewBingSearcher(cfg core.PlatformConfig, uaPool *anticrawl.UserAgentPool) *BingSearcher {
	return &BingSearcher{cfg: cfg, uaPool: uaPool}
}

// Name 平台标识
func (b *BingSearcher) Name() string {
	return "bing"
}

// Search 执行必应搜索
// 必应不支持tsn式时间过滤,timeFilter被忽略
func (b *BingSearcher) Search(ctx context.Context, query string, maxResults int, timeFilter string) ([]*models.SearchResult, error) {
	query = sanitizeQuery(query)
	if query == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = resultsPerPage
	}
	if timeFilter != "" {
		utils.Debugf("平台bing不支持时间过滤'%s',忽略", timeFilter)
	}

	params := url.Values{}
	for k, v := range b.cfg.Params {
		params.Set(k, v)
	}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(maxResults))
	searchURL := b.cfg.SearchURL + "?" + params.Encode()
	utils.Infof("平台bing搜索: %s", searchURL)

	c := colly.NewCollector(colly.UserAgent(b.uaPool.Pick()))
	c.SetClient(&http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		Timeout: 15 * time.Second,
	})

	var results []*models.SearchResult
	c.OnHTML(b.cfg.Selectors.List, func(e *colly.HTMLElement) {
		if len(results) >= maxResults {
			return
		}
		title := cleanText(e.ChildText(b.cfg.Selectors.Title))
		href := e.ChildAttr(b.cfg.Selectors.Link, "href")
		if title == "" || href == "" {
			return
		}
		results = append(results, &models.SearchResult{
			Title:    title,
			URL:      absoluteURL(href, b.cfg.BaseURL),
			Source:   cleanText(e.ChildText(b.cfg.Selectors.Source)),
			Snippet:  cleanText(e.ChildText(b.cfg.Selectors.Snippet)),
			Platform: "bing",
		})
	})

	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("平台bing搜索失败: %w", err)
	}
	c.Wait()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	utils.Infof("平台bing搜索完成: %d条结果", len(results))
	return results, nil
}
