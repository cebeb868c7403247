package content

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"

	"github.com/RecoveryAshes/versearch/internal/anticrawl"
	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

// StaticFetcher 静态正文抓取器
// 对不需要JS渲染的站点直接走HTTP抓取,比浏览器路径快得多
type StaticFetcher struct {
	timeout time.Duration
	uaPool  *anticrawl.UserAgentPool
}

// NewStaticFetcher 创建静态抓取器
func NewStaticFetcher(timeout time.Duration, uaPool *anticrawl.UserAgentPool) *StaticFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StaticFetcher{timeout: timeout, uaPool: uaPool}
}

// Fetch 抓取页面并按配置的选择器抽取正文
// 所有选择器都未命中时回退为全文去标签文本
func (s *StaticFetcher) Fetch(pageURL string, pcfg core.PlatformConfig) (string, error) {
	c := colly.NewCollector(colly.UserAgent(s.uaPool.Pick()))
	c.SetClient(&http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		Timeout: s.timeout,
	})

	// 按Content-Encoding解压(brotli等),保证OnHTML拿到可解析的文档
	var rawBody []byte
	c.OnResponse(func(r *colly.Response) {
		decoded, err := decompressBody(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			utils.Warnf("解压响应失败: %v", err)
			return
		}
		r.Body = decoded
		rawBody = decoded
	})

	var content string
	for _, sel := range pcfg.Content.Main {
		c.OnHTML(sel, func(e *colly.HTMLElement) {
			if content != "" {
				return
			}
			for _, rm := range pcfg.Content.Remove {
				e.DOM.Find(rm).Remove()
			}
			if text := strings.TrimSpace(e.DOM.Text()); text != "" {
				content = text
			}
		})
	}

	if err := c.Visit(pageURL); err != nil {
		return "", fmt.Errorf("静态抓取失败: %w", err)
	}
	c.Wait()

	if content == "" && len(rawBody) > 0 {
		content = extractText(rawBody)
	}
	if content == "" {
		return "", fmt.Errorf("未抽取到正文: %s", pageURL)
	}
	return content, nil
}

// decompressBody 按Content-Encoding解压响应体,支持gzip/deflate/br
func decompressBody(contentEncoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return io.ReadAll(reader)

	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))

	case "":
		return body, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}

// extractText 全文去标签的兜底文本抽取,跳过script/style/noscript
func extractText(rawHTML []byte) string {
	doc, err := html.Parse(bytes.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(sb.String())
}
