package content

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/versearch/internal/cache"
	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/models"
)

// stubFetcher 固定返回预设正文的抓取桩
type stubFetcher struct {
	mu       sync.Mutex
	contents map[string]string
	calls    int
}

func (s *stubFetcher) Fetch(pageURL, platform string, timeout time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.contents[pageURL]
}

func testProcessor(fetcher ArticleFetcher, thresholds core.ThresholdConfig) *Processor {
	cfg := core.CompressionConfig{
		Thresholds: thresholds,
		Fetch:      core.FetchConfig{Concurrency: 3, TimeoutSeconds: 5},
	}
	return NewProcessor(fetcher, noKeyCompressor(), NewTokenEstimator(),
		cache.NewSearchCache(time.Minute), cfg, core.CacheConfig{ContentTTL: 60, CompressedTTL: 60})
}

// TestProcess抓取与状态标记 验证抓取成功/失败的状态标记
func TestProcess抓取与状态标记(t *testing.T) {
	fetcher := &stubFetcher{contents: map[string]string{
		"https://mp.weixin.qq.com/s/a": "第一篇文章的正文",
	}}
	p := testProcessor(fetcher, core.ThresholdConfig{
		SingleArticle: 3000, TotalContent: 50000, FinalOutput: 80000,
	})

	results := []*models.SearchResult{
		{Title: "可抓取", URL: "https://mp.weixin.qq.com/s/a"},
		{Title: "抓取失败", URL: "https://mp.weixin.qq.com/s/missing"},
		{Title: "无URL"},
	}
	p.Process(context.Background(), results, "weixin", nil)

	if results[0].ContentStatus != models.StatusFetched || results[0].Content == "" {
		t.Errorf("抓取成功的条目状态应为fetched: %+v", results[0])
	}
	if results[0].ContentTokens <= 0 {
		t.Errorf("抓取成功的条目应有token估算: %d", results[0].ContentTokens)
	}
	if results[1].ContentStatus != models.StatusFetchFailed {
		t.Errorf("抓取失败的条目状态应为fetch_failed: %s", results[1].ContentStatus)
	}
	if results[2].ContentStatus != models.StatusFetchFailed {
		t.Errorf("无URL条目状态应为fetch_failed: %s", results[2].ContentStatus)
	}
}

// TestProcess正文缓存 验证第二次处理命中正文缓存不再抓取
func TestProcess正文缓存(t *testing.T) {
	fetcher := &stubFetcher{contents: map[string]string{
		"https://mp.weixin.qq.com/s/a": "缓存测试正文",
	}}
	p := testProcessor(fetcher, core.ThresholdConfig{
		SingleArticle: 3000, TotalContent: 50000, FinalOutput: 80000,
	})

	first := []*models.SearchResult{{Title: "文章", URL: "https://mp.weixin.qq.com/s/a"}}
	p.Process(context.Background(), first, "weixin", nil)
	if fetcher.calls != 1 {
		t.Fatalf("首次处理应抓取1次, 实际: %d", fetcher.calls)
	}

	second := []*models.SearchResult{{Title: "文章", URL: "https://mp.weixin.qq.com/s/a"}}
	p.Process(context.Background(), second, "weixin", nil)
	if fetcher.calls != 1 {
		t.Errorf("第二次处理应命中缓存不再抓取, 实际抓取次数: %d", fetcher.calls)
	}
	if second[0].Content != "缓存测试正文" || second[0].ContentStatus != models.StatusFetched {
		t.Errorf("缓存命中条目应有正文且状态为fetched: %+v", second[0])
	}
}

// TestProcess单篇压缩失败保留原文 验证压缩(截断路径)超限文章被处理
func TestProcess单篇超限压缩(t *testing.T) {
	long := strings.Repeat("这是超长文章的正文内容。", 500)
	fetcher := &stubFetcher{contents: map[string]string{
		"https://mp.weixin.qq.com/s/long": long,
	}}
	// 单篇阈值设得很低, 触发压缩(无密钥走截断)
	p := testProcessor(fetcher, core.ThresholdConfig{
		SingleArticle: 100, TotalContent: 50000, FinalOutput: 80000,
	})

	results := []*models.SearchResult{{Title: "长文", URL: "https://mp.weixin.qq.com/s/long"}}
	p.Process(context.Background(), results, "weixin", nil)

	if results[0].ContentStatus != models.StatusTruncated {
		t.Errorf("无密钥压缩应标记truncated, 实际: %s", results[0].ContentStatus)
	}
	if len([]rune(results[0].Content)) >= len([]rune(long)) {
		t.Errorf("压缩后内容应短于原文")
	}
}

// TestProcess最终按比例截断 验证总量超最终阈值时全体按比例截断
func TestProcess最终按比例截断(t *testing.T) {
	long := strings.Repeat("内容很长需要截断。", 300)
	fetcher := &stubFetcher{contents: map[string]string{
		"https://mp.weixin.qq.com/s/a": long,
		"https://mp.weixin.qq.com/s/b": long,
	}}
	// 单篇阈值高不触发单篇压缩; 总量阈值也高不触发批量; 最终阈值低触发截断
	p := testProcessor(fetcher, core.ThresholdConfig{
		SingleArticle: 100000, TotalContent: 100000, FinalOutput: 500,
	})

	results := []*models.SearchResult{
		{Title: "文章A", URL: "https://mp.weixin.qq.com/s/a"},
		{Title: "文章B", URL: "https://mp.weixin.qq.com/s/b"},
	}
	p.Process(context.Background(), results, "weixin", nil)

	for _, r := range results {
		if r.ContentStatus != models.StatusTruncated {
			t.Errorf("文章'%s'应被标记truncated, 实际: %s", r.Title, r.ContentStatus)
		}
		if len([]rune(r.Content)) >= len([]rune(long)) {
			t.Errorf("文章'%s'应被截断", r.Title)
		}
	}
}

// TestProcess进度回调 验证回调在抓取和压缩阶段被触发
func TestProcess进度回调(t *testing.T) {
	fetcher := &stubFetcher{contents: map[string]string{
		"https://mp.weixin.qq.com/s/a": "第一篇正文",
		"https://mp.weixin.qq.com/s/b": "第二篇正文",
	}}
	p := testProcessor(fetcher, core.ThresholdConfig{
		SingleArticle: 3000, TotalContent: 50000, FinalOutput: 80000,
	})

	var mu sync.Mutex
	stages := map[string]int{}
	progress := func(stage, message string, current, total int) {
		mu.Lock()
		defer mu.Unlock()
		stages[stage]++
		if total != 2 {
			t.Errorf("回调总数应为2, 实际: %d", total)
		}
	}

	results := []*models.SearchResult{
		{Title: "文章A", URL: "https://mp.weixin.qq.com/s/a"},
		{Title: "文章B", URL: "https://mp.weixin.qq.com/s/b"},
	}
	p.Process(context.Background(), results, "weixin", progress)

	if stages["fetch"] != 2 {
		t.Errorf("抓取阶段应回调2次, 实际: %d", stages["fetch"])
	}
	if stages["compress"] != 2 {
		t.Errorf("压缩阶段应回调2次, 实际: %d", stages["compress"])
	}
}

// TestProcess并发回调隔离 验证并发调用时各自的回调互不串扰
func TestProcess并发回调隔离(t *testing.T) {
	fetcher := &stubFetcher{contents: map[string]string{
		"https://mp.weixin.qq.com/s/a": "正文A",
		"https://mp.weixin.qq.com/s/b": "正文B",
	}}
	p := testProcessor(fetcher, core.ThresholdConfig{
		SingleArticle: 3000, TotalContent: 50000, FinalOutput: 80000,
	})

	run := func(url, title string) []string {
		var mu sync.Mutex
		var seen []string
		progress := func(stage, message string, current, total int) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, message)
		}
		p.Process(context.Background(),
			[]*models.SearchResult{{Title: title, URL: url}}, "weixin", progress)
		mu.Lock()
		defer mu.Unlock()
		return seen
	}

	var wg sync.WaitGroup
	var seenA, seenB []string
	wg.Add(2)
	go func() {
		defer wg.Done()
		seenA = run("https://mp.weixin.qq.com/s/a", "文章A")
	}()
	go func() {
		defer wg.Done()
		seenB = run("https://mp.weixin.qq.com/s/b", "文章B")
	}()
	wg.Wait()

	for _, msg := range seenA {
		if msg != "文章A" {
			t.Errorf("A的回调收到了其他调用的消息: %s", msg)
		}
	}
	for _, msg := range seenB {
		if msg != "文章B" {
			t.Errorf("B的回调收到了其他调用的消息: %s", msg)
		}
	}
	if len(seenA) == 0 || len(seenB) == 0 {
		t.Error("两个调用的回调都应被触发")
	}
}

// TestProcess空结果 验证空输入直接返回
func TestProcess空结果(t *testing.T) {
	p := testProcessor(&stubFetcher{}, core.ThresholdConfig{
		SingleArticle: 3000, TotalContent: 50000, FinalOutput: 80000,
	})
	if got := p.Process(context.Background(), nil, "weixin", nil); len(got) != 0 {
		t.Errorf("空输入应返回空结果: %v", got)
	}
}
