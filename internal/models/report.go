package models

import (
	"encoding/json"
	"time"
)

// SearchReport 一次搜索任务的完整报告
type SearchReport struct {
	// 任务信息
	TraceID   string   `json:"trace_id"`
	Query     string   `json:"query"`
	Platforms []string `json:"platforms"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	Stats SearchStats `json:"stats"`

	// 结果列表
	Results []*SearchResult `json:"results"`
}

// SearchStats 搜索任务的统计信息
type SearchStats struct {
	TotalResults    int `json:"total_results"`
	FetchedCount    int `json:"fetched_count"`
	CompressedCount int `json:"compressed_count"`
	TruncatedCount  int `json:"truncated_count"`
	FailedCount     int `json:"failed_count"`
	TotalTokens     int `json:"total_tokens"`
}

// CollectStats 从结果列表汇总统计信息
func CollectStats(results []*SearchResult) SearchStats {
	stats := SearchStats{TotalResults: len(results)}
	for _, r := range results {
		stats.TotalTokens += r.ContentTokens
		switch r.ContentStatus {
		case StatusFetched:
			stats.FetchedCount++
		case StatusCompressed, StatusBatchCompressed:
			stats.FetchedCount++
			stats.CompressedCount++
		case StatusTruncated:
			stats.FetchedCount++
			stats.TruncatedCount++
		case StatusFetchFailed:
			stats.FailedCount++
		}
	}
	return stats
}

// ToJSON 序列化为JSON
func (r *SearchReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *SearchReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
