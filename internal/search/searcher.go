// Package search 聚合各平台的搜索适配器,提供统一的搜索入口
package search

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/RecoveryAshes/versearch/internal/models"
)

// 单平台单次搜索的结果数上限
const maxResultsLimit = 30

// 搜狗等聚合引擎每页返回的结果条数
const resultsPerPage = 10

// PlatformSearcher 平台搜索适配器接口
// 实现方负责查询清洗、结果页解析与跳转链解析,
// 返回的结果按页面顺序排列,数量不超过maxResults
type PlatformSearcher interface {
	// Name 平台标识(如 weixin / zhihu / bing)
	Name() string
	// Search 执行搜索,timeFilter为空表示不限时间
	Search(ctx context.Context, query string, maxResults int, timeFilter string) ([]*models.SearchResult, error)
}

var (
	dangerousChars = regexp.MustCompile(`[<>"']`)
	htmlTags       = regexp.MustCompile(`<[^>]+>`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// sanitizeQuery 清洗搜索词: 去除危险字符, 截断到100个字符
func sanitizeQuery(query string) string {
	query = dangerousChars.ReplaceAllString(query, "")
	query = strings.TrimSpace(query)

	runes := []rune(query)
	if len(runes) > 100 {
		query = string(runes[:100])
	}
	return query
}

// cleanText 去除HTML标签并折叠空白
func cleanText(text string) string {
	if text == "" {
		return ""
	}
	text = htmlTags.ReplaceAllString(text, "")
	text = whitespaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// absoluteURL 将结果页中的相对链接解析为绝对URL
func absoluteURL(link, base string) string {
	if link == "" {
		return ""
	}
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return baseURL.ResolveReference(ref).String()
}
