package models

// ContentStatus 正文处理状态
type ContentStatus string

const (
	// StatusFetched 正文已抓取,未压缩
	StatusFetched ContentStatus = "fetched"
	// StatusCompressed 单篇压缩成功
	StatusCompressed ContentStatus = "compressed"
	// StatusBatchCompressed 批量压缩成功
	StatusBatchCompressed ContentStatus = "batch_compressed"
	// StatusTruncated 压缩失败或超限,降级为截断
	StatusTruncated ContentStatus = "truncated"
	// StatusFetchFailed 正文抓取失败
	StatusFetchFailed ContentStatus = "fetch_failed"
	// StatusOriginal 保留原文(空内容等场景)
	StatusOriginal ContentStatus = "original"
)

// SearchResult 单条搜索结果
// title/url由平台适配器产出后不再变更;content相关字段在
// 抓取→估算→压缩流水线中原地更新
type SearchResult struct {
	Title         string        `json:"title"`
	URL           string        `json:"url"`
	Source        string        `json:"source"`
	Date          string        `json:"date,omitempty"`
	Snippet       string        `json:"snippet,omitempty"`
	Content       string        `json:"content,omitempty"`
	ContentStatus ContentStatus `json:"content_status,omitempty"`
	ContentTokens int           `json:"content_tokens,omitempty"`
	Platform      string        `json:"platform,omitempty"`
}
