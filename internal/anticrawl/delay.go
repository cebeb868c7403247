package anticrawl

import (
	"math/rand"
	"sync"
	"time"

	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

// 延迟应用时机
const (
	ApplyBeforeRequest   = "before_request"
	ApplyAfterRequest    = "after_request"
	ApplyBetweenRequests = "between_requests"
)

// DelayManager 请求间隔管理器
// 在限流之外附加随机延迟,避免固定节奏触发反爬;
// between_requests策略按平台记录上次请求时间,只睡眠补足最小间隔的差值
type DelayManager struct {
	cfg             core.AntiCrawlConfig
	mu              sync.Mutex
	lastRequestTime map[string]time.Time
}

// NewDelayManager 创建延迟管理器
func NewDelayManager(cfg core.AntiCrawlConfig) *DelayManager {
	return &DelayManager{
		cfg:             cfg,
		lastRequestTime: make(map[string]time.Time),
	}
}

// Apply 按配置为平台施加延迟
// cached为true时(缓存命中)完全跳过延迟
func (d *DelayManager) Apply(platform string, cached bool) {
	if cached {
		return
	}

	delayCfg := d.cfg.Global.Delay
	if !delayCfg.Enabled {
		return
	}

	switch delayCfg.ApplyTo {
	case ApplyBeforeRequest:
		delay := d.randomDelay(platform)
		if delay > 0 {
			utils.Debugf("平台%s请求前延迟%v", platform, delay)
			time.Sleep(delay)
		}

	case ApplyBetweenRequests:
		d.mu.Lock()
		last := d.lastRequestTime[platform]
		elapsed := time.Since(last)
		delay := d.randomDelay(platform)

		if elapsed < delay {
			wait := delay - elapsed
			utils.Debugf("平台%s请求间隔不足,补足延迟%v", platform, wait)
			// 持锁睡眠保证同平台请求的间隔语义
			time.Sleep(wait)
		}
		d.lastRequestTime[platform] = time.Now()
		d.mu.Unlock()

	case ApplyAfterRequest:
		// 延迟在ApplyAfter中施加,这里只记录时间
		d.mu.Lock()
		d.lastRequestTime[platform] = time.Now()
		d.mu.Unlock()
	}
}

// ApplyAfter 请求完成后施加延迟(apply_to为after_request时生效)
func (d *DelayManager) ApplyAfter(platform string) {
	delayCfg := d.cfg.Global.Delay
	if delayCfg.Enabled && delayCfg.ApplyTo == ApplyAfterRequest {
		delay := d.randomDelay(platform)
		if delay > 0 {
			utils.Debugf("平台%s请求后延迟%v", platform, delay)
			time.Sleep(delay)
		}
	}

	d.mu.Lock()
	d.lastRequestTime[platform] = time.Now()
	d.mu.Unlock()
}

// randomDelay 在平台或全局配置的区间内取随机延迟
func (d *DelayManager) randomDelay(platform string) time.Duration {
	minMs := d.cfg.Global.Delay.MinDelayMs
	maxMs := d.cfg.Global.Delay.MaxDelayMs

	// 平台级配置优先
	if p, ok := d.cfg.Platforms[platform]; ok && p.Delay != nil {
		minMs = p.Delay.MinDelayMs
		maxMs = p.Delay.MaxDelayMs
	}

	if minMs >= maxMs {
		return time.Duration(minMs) * time.Millisecond
	}
	return time.Duration(minMs+rand.Intn(maxMs-minMs+1)) * time.Millisecond
}
