// Package anticrawl 实现反爬防御的规避层: 限流、请求间隔、UA轮换与反爬响应检测
package anticrawl

import (
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

// OverflowPolicy 令牌耗尽时的处理策略
type OverflowPolicy string

const (
	// PolicyReject 立即拒绝
	PolicyReject OverflowPolicy = "reject"
	// PolicyDelay 等待下一个令牌后重试一次
	PolicyDelay OverflowPolicy = "delay"
	// PolicyQueue 排队(未实现,直接报错)
	PolicyQueue OverflowPolicy = "queue"
)

// TokenBucket 令牌桶限流器
// 令牌以refillRate每秒的速度连续回填,上限为maxTokens,
// 每次Acquire消耗1个令牌
type TokenBucket struct {
	mu         sync.Mutex
	maxTokens  float64
	tokens     float64
	refillRate float64 // 每秒回填令牌数
	lastRefill time.Time
	policy     OverflowPolicy
}

// NewTokenBucket 创建令牌桶
// maxTokens和refillRate必须为正数,否则构造失败
func NewTokenBucket(maxTokens int, refillRate float64, policy OverflowPolicy) (*TokenBucket, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: maxTokens必须为正数", core.ErrInvalidConfig)
	}
	if refillRate <= 0 {
		return nil, fmt.Errorf("%w: refillRate必须为正数", core.ErrInvalidConfig)
	}
	switch policy {
	case PolicyReject, PolicyDelay, PolicyQueue:
	default:
		return nil, fmt.Errorf("%w: 未知的溢出策略: %s", core.ErrInvalidConfig, policy)
	}

	return &TokenBucket{
		maxTokens:  float64(maxTokens),
		tokens:     float64(maxTokens),
		refillRate: refillRate,
		lastRefill: time.Now(),
		policy:     policy,
	}, nil
}

// refill 按流逝时间回填令牌,调用者必须持有锁
func (b *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.maxTokens, b.tokens+elapsed*b.refillRate)
		b.lastRefill = now
	}
}

// Acquire 获取一个令牌
// 令牌耗尽时按溢出策略处理: reject返回ErrRateLimitExceeded,
// delay睡眠到下一个令牌可用后重试一次,queue返回ErrQueueModeUnsupported
func (b *TokenBucket) Acquire() error {
	b.mu.Lock()
	b.refill()

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		b.mu.Unlock()
		return nil
	}

	switch b.policy {
	case PolicyReject:
		b.mu.Unlock()
		utils.Debug("令牌耗尽,拒绝请求")
		return core.ErrRateLimitExceeded

	case PolicyDelay:
		waitTime := time.Duration((1.0 - b.tokens) / b.refillRate * float64(time.Second))
		// 睡眠期间释放锁,避免串行化无关请求
		b.mu.Unlock()
		utils.Debugf("令牌耗尽,等待%.2f秒", waitTime.Seconds())
		time.Sleep(waitTime)

		b.mu.Lock()
		b.refill()
		if b.tokens >= 1.0 {
			b.tokens -= 1.0
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()
		return core.ErrRateLimitExceeded

	case PolicyQueue:
		b.mu.Unlock()
		return core.ErrQueueModeUnsupported

	default:
		b.mu.Unlock()
		return fmt.Errorf("%w: 未知的溢出策略: %s", core.ErrInvalidConfig, b.policy)
	}
}

// Tokens 返回当前可用令牌数(回填后),用于测试和监控
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// RateLimitManager 管理全局与平台级限流器
// 平台配置了专属桶时完全替代全局桶,不做叠加
type RateLimitManager struct {
	mu       sync.Mutex
	limiters map[string]*TokenBucket
	global   *TokenBucket
}

// NewRateLimitManager 根据反爬配置构建限流管理器
func NewRateLimitManager(cfg core.AntiCrawlConfig) (*RateLimitManager, error) {
	m := &RateLimitManager{limiters: make(map[string]*TokenBucket)}

	global := cfg.Global.RateLimit
	if !global.Enabled {
		utils.Info("限流已在配置中禁用")
		return m, nil
	}

	policy := OverflowPolicy(global.OnLimitExceeded)
	if policy == "" {
		policy = PolicyDelay
	}

	// 每分钟请求数换算为每秒回填速率
	refillRate := float64(global.MaxRequestsPerMinute) / 60.0
	bucket, err := NewTokenBucket(global.MaxRequestsPerMinute, refillRate, policy)
	if err != nil {
		return nil, fmt.Errorf("构建全局限流器失败: %w", err)
	}
	m.global = bucket
	utils.Infof("全局限流器已初始化: %d请求/分钟, 回填速率=%.2f令牌/秒",
		global.MaxRequestsPerMinute, refillRate)

	for name, platformCfg := range cfg.Platforms {
		if platformCfg.RateLimit == nil || platformCfg.RateLimit.MaxRequestsPerMinute <= 0 {
			continue
		}
		perMinute := platformCfg.RateLimit.MaxRequestsPerMinute
		platformRate := float64(perMinute) / 60.0
		b, err := NewTokenBucket(perMinute, platformRate, policy)
		if err != nil {
			return nil, fmt.Errorf("构建平台%s限流器失败: %w", name, err)
		}
		m.limiters[name] = b
		utils.Infof("平台'%s'限流器: %d请求/分钟, 回填速率=%.2f令牌/秒",
			name, perMinute, platformRate)
	}

	return m, nil
}

// Acquire 为平台获取一个令牌
// 优先使用平台专属限流器,否则回退到全局限流器;
// 未配置任何限流时直接放行
func (m *RateLimitManager) Acquire(platform string) error {
	m.mu.Lock()
	limiter, ok := m.limiters[platform]
	global := m.global
	m.mu.Unlock()

	if ok {
		if err := limiter.Acquire(); err != nil {
			utils.Warnf("平台'%s'触发限流", platform)
			return fmt.Errorf("平台'%s': %w", platform, err)
		}
		return nil
	}

	if global != nil {
		if err := global.Acquire(); err != nil {
			utils.Warnf("平台'%s'触发全局限流", platform)
			return fmt.Errorf("全局限流: %w", err)
		}
	}

	return nil
}
