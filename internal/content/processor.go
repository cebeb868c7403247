package content

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/versearch/internal/cache"
	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/models"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

// 单篇压缩的目标token数
const perArticleTarget = 2000

// ArticleFetcher 正文抓取接口
type ArticleFetcher interface {
	Fetch(pageURL, platform string, timeout time.Duration) string
}

// ArticleCompressor 压缩接口
type ArticleCompressor interface {
	Compress(ctx context.Context, text string, maxTokens int) (string, models.ContentStatus)
	CompressBatch(ctx context.Context, results []*models.SearchResult, maxTotalTokens int)
}

// ProgressFunc 流水线进度回调(阶段名, 描述, 已完成数, 总数)
type ProgressFunc func(stage, message string, current, total int)

// Notify 触发回调,nil回调时不做任何事
func (fn ProgressFunc) Notify(stage, message string, current, total int) {
	if fn != nil {
		fn(stage, message, current, total)
	}
}

// Processor 内容处理流水线
// 并发抓取正文 -> 估算token -> 超限单篇压缩 -> 超限批量压缩 -> 兜底按比例截断;
// 任何单篇的失败只影响该篇,不中断整个流水线
type Processor struct {
	fetcher    ArticleFetcher
	compressor ArticleCompressor
	estimator  *TokenEstimator
	cache      *cache.SearchCache

	thresholds    core.ThresholdConfig
	concurrency   int
	fetchTimeout  time.Duration
	contentTTL    time.Duration
	compressedTTL time.Duration
}

// NewProcessor 创建内容处理器
func NewProcessor(fetcher ArticleFetcher, compressor ArticleCompressor, estimator *TokenEstimator,
	searchCache *cache.SearchCache, cfg core.CompressionConfig, cacheCfg core.CacheConfig) *Processor {
	concurrency := cfg.Fetch.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	fetchTimeout := time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	contentTTL := time.Duration(cacheCfg.ContentTTL) * time.Second
	if contentTTL <= 0 {
		contentTTL = time.Hour
	}
	compressedTTL := time.Duration(cacheCfg.CompressedTTL) * time.Second
	if compressedTTL <= 0 {
		compressedTTL = 24 * time.Hour
	}

	return &Processor{
		fetcher:       fetcher,
		compressor:    compressor,
		estimator:     estimator,
		cache:         searchCache,
		thresholds:    cfg.Thresholds,
		concurrency:   concurrency,
		fetchTimeout:  fetchTimeout,
		contentTTL:    contentTTL,
		compressedTTL: compressedTTL,
	}
}

// Process 为搜索结果补全并压缩正文
// progress在抓取和压缩两个阶段被回调,并发调用Process时各自独立
func (p *Processor) Process(ctx context.Context, results []*models.SearchResult, platform string, progress ProgressFunc) []*models.SearchResult {
	if len(results) == 0 {
		return results
	}
	utils.Infof("开始处理%d条结果的正文", len(results))

	// 1. 并发抓取正文(信号量限流)
	p.fetchAll(results, platform, progress)

	// 2-3. 逐篇估算token, 超阈值的单篇压缩
	for i, r := range results {
		progress.Notify("compress", r.Title, i+1, len(results))
		if r.Content == "" {
			continue
		}
		tokens := p.estimator.Estimate(r.Content)
		r.ContentTokens = tokens

		if tokens > p.thresholds.SingleArticle {
			utils.Infof("文章'%s'超过单篇阈值: %d tokens > %d,开始压缩",
				r.Title, tokens, p.thresholds.SingleArticle)

			urlHash := cache.URLHash(r.URL)
			if cached, ok := p.cache.GetCompressed(urlHash, perArticleTarget); ok {
				utils.Debugf("压缩结果缓存命中: %s", r.URL)
				r.Content = cached
				r.ContentStatus = models.StatusCompressed
				r.ContentTokens = p.estimator.Estimate(cached)
				continue
			}

			compressed, status := p.compressor.Compress(ctx, r.Content, perArticleTarget)
			if compressed != "" {
				r.Content = compressed
				r.ContentStatus = status
				r.ContentTokens = p.estimator.Estimate(compressed)
				utils.Infof("文章'%s'压缩完成: %d -> %d tokens", r.Title, tokens, r.ContentTokens)
				if status == models.StatusCompressed {
					p.cache.SetCompressed(urlHash, perArticleTarget, compressed, p.compressedTTL)
				}
			}
			// 压缩失败保留原文, 不丢弃
		}
	}

	// 4-5. 总量超阈值时批量压缩
	totalTokens := p.estimator.EstimateTotal(results)
	utils.Infof("单篇压缩后总token数: %d", totalTokens)

	if totalTokens > p.thresholds.TotalContent {
		utils.Infof("总token数%d超过阈值%d,开始批量压缩(目标%d)",
			totalTokens, p.thresholds.TotalContent, p.thresholds.FinalOutput)
		p.compressor.CompressBatch(ctx, results, p.thresholds.FinalOutput)
		totalTokens = p.estimator.EstimateTotal(results)
		utils.Infof("批量压缩后总token数: %d", totalTokens)
	}

	// 6. 兜底: 仍超最终阈值时按比例截断每篇正文
	if totalTokens > p.thresholds.FinalOutput {
		utils.Warnf("总token数%d仍超过最终阈值%d,按比例截断", totalTokens, p.thresholds.FinalOutput)
		for _, r := range results {
			if r.Content == "" {
				continue
			}
			runes := []rune(r.Content)
			targetChars := len(runes) * p.thresholds.FinalOutput / totalTokens
			if len(runes) > targetChars {
				r.Content = truncate(r.Content, targetChars)
				r.ContentStatus = models.StatusTruncated
				r.ContentTokens = p.estimator.Estimate(r.Content)
			}
		}
	}

	return results
}

// fetchAll 并发抓取所有结果的正文,先查正文缓存
func (p *Processor) fetchAll(results []*models.SearchResult, platform string, progress ProgressFunc) {
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	var done atomic.Int64

	for _, r := range results {
		wg.Add(1)
		go func(r *models.SearchResult) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer func() {
				progress.Notify("fetch", r.Title, int(done.Add(1)), len(results))
			}()

			if r.URL == "" {
				r.ContentStatus = models.StatusFetchFailed
				return
			}

			urlHash := cache.URLHash(r.URL)
			if cached, ok := p.cache.GetContent(urlHash); ok {
				utils.Debugf("正文缓存命中: %s", r.URL)
				r.Content = cached
				r.ContentStatus = models.StatusFetched
				return
			}

			content := p.fetcher.Fetch(r.URL, platform, p.fetchTimeout)
			if content == "" {
				r.ContentStatus = models.StatusFetchFailed
				return
			}
			r.Content = content
			r.ContentStatus = models.StatusFetched
			p.cache.SetContent(urlHash, content, p.contentTTL)
		}(r)
	}
	wg.Wait()
}
