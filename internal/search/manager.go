package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RecoveryAshes/versearch/internal/anticrawl"
	"github.com/RecoveryAshes/versearch/internal/browser"
	"github.com/RecoveryAshes/versearch/internal/cache"
	"github.com/RecoveryAshes/versearch/internal/content"
	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/models"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

// Options 单次搜索的可选参数
type Options struct {
	// MaxResults 结果数上限,0表示默认10,上限30
	MaxResults int
	// TimeFilter 时间过滤(day/week/month/year),空表示不限
	TimeFilter string
	// IncludeContent 是否抓取并压缩正文
	IncludeContent bool
	// NoCache 跳过结果缓存(不读也不写)
	NoCache bool
	// Progress 正文处理进度回调,可为nil
	Progress content.ProgressFunc
}

// Manager 统一搜索入口
// 串联限流、延迟、缓存、平台适配器和正文处理流水线;
// 适配器级的失败会传播,正文处理的失败只降级不中断
type Manager struct {
	mu        sync.RWMutex
	searchers map[string]PlatformSearcher

	cache      *cache.SearchCache
	rateLimits *anticrawl.RateLimitManager
	delays     *anticrawl.DelayManager
	processor  *content.Processor
	pool       *browser.Pool
	resultTTL  time.Duration
}

// NewManager 创建统一搜索管理器
// processor和pool允许为nil(纯搜索、不抓正文的场景)
func NewManager(searchCache *cache.SearchCache, rateLimits *anticrawl.RateLimitManager,
	delays *anticrawl.DelayManager, processor *content.Processor, pool *browser.Pool,
	cacheCfg core.CacheConfig) *Manager {
	resultTTL := time.Duration(cacheCfg.ResultTTL) * time.Second
	if resultTTL <= 0 {
		resultTTL = 5 * time.Minute
	}
	return &Manager{
		searchers:  make(map[string]PlatformSearcher),
		cache:      searchCache,
		rateLimits: rateLimits,
		delays:     delays,
		processor:  processor,
		pool:       pool,
		resultTTL:  resultTTL,
	}
}

// Register 注册平台适配器,同名覆盖
func (m *Manager) Register(s PlatformSearcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchers[s.Name()] = s
}

// Platforms 已注册的平台列表(有序)
func (m *Manager) Platforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.searchers))
	for name := range m.searchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Search 在单个平台上执行搜索
// 顺序: 参数校验 -> 限流 -> 缓存 -> 延迟 -> 适配器 -> 写缓存 -> 正文处理;
// 缓存命中直接返回,不消耗延迟窗口
func (m *Manager) Search(ctx context.Context, platform, query string, opts Options) ([]*models.SearchResult, error) {
	traceID := uuid.NewString()[:8]

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = resultsPerPage
	}
	if maxResults > maxResultsLimit {
		return nil, fmt.Errorf("%w: max_results不能超过%d", core.ErrInvalidParam, maxResultsLimit)
	}

	m.mu.RLock()
	searcher, ok := m.searchers[platform]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s,可用平台: %s",
			core.ErrPlatformNotFound, platform, strings.Join(m.Platforms(), ", "))
	}

	if err := m.rateLimits.Acquire(platform); err != nil {
		utils.Warnf("[%s] 平台%s被限流: %v", traceID, platform, err)
		return nil, err
	}

	key := m.cache.Key(platform, query, map[string]any{
		"max_results":     maxResults,
		"time_filter":     opts.TimeFilter,
		"include_content": opts.IncludeContent,
	})
	if !opts.NoCache {
		if cached, ok := m.cache.Get(key); ok {
			utils.Infof("[%s] 平台%s缓存命中: %s", traceID, platform, query)
			return cached.([]*models.SearchResult), nil
		}
	}

	m.delays.Apply(platform, false)

	utils.Infof("[%s] 平台%s搜索: %s (max_results=%d)", traceID, platform, query, maxResults)
	results, err := searcher.Search(ctx, query, maxResults, opts.TimeFilter)
	if err != nil {
		return nil, fmt.Errorf("平台%s搜索失败: %w", platform, err)
	}

	if opts.IncludeContent && m.processor != nil {
		// 正文处理的失败在流水线内部降级,不影响搜索结果本身
		results = m.processor.Process(ctx, results, platform, opts.Progress)
	}

	if !opts.NoCache {
		m.cache.SetWithTTL(key, results, m.resultTTL)
	}
	utils.Infof("[%s] 平台%s搜索完成: %d条结果", traceID, platform, len(results))
	return results, nil
}

// SearchMulti 在多个平台上搜索并聚合
// 单平台失败只记日志不中断,聚合结果按URL去重,先出现的保留
func (m *Manager) SearchMulti(ctx context.Context, platforms []string, query string, opts Options) ([]*models.SearchResult, error) {
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: 平台列表为空", core.ErrInvalidParam)
	}

	var merged []*models.SearchResult
	seen := make(map[string]bool)

	for _, platform := range platforms {
		results, err := m.Search(ctx, platform, query, opts)
		if err != nil {
			utils.Warnf("平台%s搜索失败,跳过: %v", platform, err)
			continue
		}
		for _, r := range results {
			if r.URL != "" && seen[r.URL] {
				continue
			}
			if r.URL != "" {
				seen[r.URL] = true
			}
			merged = append(merged, r)
		}
	}
	return merged, nil
}

// Close 释放浏览器等资源
func (m *Manager) Close() error {
	m.cache.Clear()
	if m.pool != nil {
		return m.pool.Close()
	}
	return nil
}
