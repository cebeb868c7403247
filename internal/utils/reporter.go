package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/versearch/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 搜索报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// SaveReport 生成并保存搜索报告
// 报告以JSON落盘,文件名带时间戳避免覆盖
func (r *Reporter) SaveReport(traceID, query string, platforms []string,
	startTime time.Time, results []*models.SearchResult) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	now := time.Now()
	report := models.SearchReport{
		TraceID:   traceID,
		Query:     query,
		Platforms: platforms,
		StartTime: startTime,
		EndTime:   now,
		Duration:  now.Sub(startTime).Seconds(),
		Stats:     models.CollectStats(results),
		Results:   results,
	}

	data, err := report.ToJSON()
	if err != nil {
		return "", fmt.Errorf("序列化报告失败: %w", err)
	}

	filename := fmt.Sprintf("search_%s_%s.json", now.Format("20060102_150405"), traceID)
	path := filepath.Join(r.outputDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	Infof("✅ 报告已生成: %s", path)
	return path, nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
