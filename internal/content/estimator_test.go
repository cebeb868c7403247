package content

import (
	"strings"
	"testing"

	"github.com/RecoveryAshes/versearch/internal/models"
)

// TestEstimate空文本 验证空文本估算为0
func TestEstimate空文本(t *testing.T) {
	e := NewTokenEstimator()
	if got := e.Estimate(""); got != 0 {
		t.Errorf("空文本应估算为0, 实际: %d", got)
	}
}

// TestEstimate单调性 验证更长的文本估算值不更小
func TestEstimate单调性(t *testing.T) {
	e := NewTokenEstimator()

	short := strings.Repeat("分布式系统设计", 10)
	long := strings.Repeat("分布式系统设计", 100)
	if e.Estimate(short) >= e.Estimate(long) {
		t.Errorf("长文本估算值应大于短文本: short=%d long=%d",
			e.Estimate(short), e.Estimate(long))
	}
}

// Test字符估算保守系数 验证中英文按不同系数估算
func Test字符估算保守系数(t *testing.T) {
	// 130个中文字符: 130/1.3 + 10 ≈ 110
	chinese := strings.Repeat("数据库缓存架构网络协", 13)
	if n := len([]rune(chinese)); n != 130 {
		t.Fatalf("测试数据长度错误: %d", n)
	}
	if got := heuristicEstimate(chinese); got < 105 || got > 115 {
		t.Errorf("130个中文字符应估算约110 tokens, 实际: %d", got)
	}

	// 350个英文字符: 350/3.5 + 10 ≈ 110
	english := strings.Repeat("abcdefghij", 35)
	if got := heuristicEstimate(english); got < 105 || got > 115 {
		t.Errorf("350个英文字符应估算约110 tokens, 实际: %d", got)
	}

	// 同样长度下中文估算应显著高于英文
	sameLen := strings.Repeat("a", 130)
	if heuristicEstimate(chinese) <= heuristicEstimate(sameLen) {
		t.Errorf("同长度中文估算应高于英文: 中文=%d 英文=%d",
			heuristicEstimate(chinese), heuristicEstimate(sameLen))
	}
}

// TestEstimateTotal 验证总量估算覆盖标题、摘要和正文
func TestEstimateTotal(t *testing.T) {
	e := NewTokenEstimator()

	results := []*models.SearchResult{
		{Title: "Go并发模型详解", Snippet: "goroutine与channel的使用", Content: strings.Repeat("正文内容", 50)},
		{Title: "另一篇文章", Snippet: ""},
	}

	want := e.Estimate(results[0].Title) + e.Estimate(results[0].Snippet) +
		e.Estimate(results[0].Content) + e.Estimate(results[1].Title)
	if got := e.EstimateTotal(results); got != want {
		t.Errorf("总量估算应为各字段之和%d, 实际: %d", want, got)
	}
}

// TestTruncate 验证截断按rune处理且附省略号
func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     string
	}{
		{"不超限原样返回", "短文本", 10, "短文本"},
		{"超限截断", "一二三四五六七八九十", 8, "一二三四五..."},
		{"极小额度", "一二三四五", 2, "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.text, tt.maxChars); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, 期望%q", tt.text, tt.maxChars, got, tt.want)
			}
		})
	}
}
