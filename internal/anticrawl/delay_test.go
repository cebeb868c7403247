package anticrawl

import (
	"testing"
	"time"

	"github.com/RecoveryAshes/versearch/internal/core"
)

func delayConfig(applyTo string, minMs, maxMs int) core.AntiCrawlConfig {
	return core.AntiCrawlConfig{
		Global: core.GlobalAntiCrawl{
			Delay: core.DelayConfig{
				Enabled:    true,
				MinDelayMs: minMs,
				MaxDelayMs: maxMs,
				ApplyTo:    applyTo,
			},
		},
	}
}

// TestDelay缓存命中跳过 验证缓存命中时不施加任何延迟
func TestDelay缓存命中跳过(t *testing.T) {
	dm := NewDelayManager(delayConfig(ApplyBeforeRequest, 500, 500))

	start := time.Now()
	dm.Apply("weixin", true)
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("缓存命中应立即返回, 实际耗时: %v", elapsed)
	}
}

// TestDelay请求前延迟 验证before_request策略施加区间内延迟
func TestDelay请求前延迟(t *testing.T) {
	dm := NewDelayManager(delayConfig(ApplyBeforeRequest, 50, 100))

	start := time.Now()
	dm.Apply("weixin", false)
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond {
		t.Errorf("延迟应不少于50ms, 实际: %v", elapsed)
	}
}

// TestDelay请求间隔 验证between_requests只补足不足的间隔
func TestDelay请求间隔(t *testing.T) {
	dm := NewDelayManager(delayConfig(ApplyBetweenRequests, 100, 100))

	// 首次请求: 上次时间为零值, 间隔早已满足, 不应睡眠
	start := time.Now()
	dm.Apply("weixin", false)
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("首次请求不应延迟, 实际耗时: %v", elapsed)
	}

	// 紧接着的第二次请求需要补足约100ms
	start = time.Now()
	dm.Apply("weixin", false)
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("连续请求应补足间隔, 实际耗时: %v", elapsed)
	}

	// 不同平台互不影响
	start = time.Now()
	dm.Apply("zhihu", false)
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("其他平台首次请求不应延迟, 实际耗时: %v", elapsed)
	}
}

// TestDelay禁用 验证延迟禁用时立即返回
func TestDelay禁用(t *testing.T) {
	cfg := delayConfig(ApplyBeforeRequest, 500, 500)
	cfg.Global.Delay.Enabled = false
	dm := NewDelayManager(cfg)

	start := time.Now()
	dm.Apply("weixin", false)
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("禁用延迟应立即返回, 实际耗时: %v", elapsed)
	}
}

// TestDelay平台覆盖 验证平台级延迟区间优先于全局
func TestDelay平台覆盖(t *testing.T) {
	cfg := delayConfig(ApplyBeforeRequest, 500, 600)
	cfg.Platforms = map[string]core.PlatformAntiCrawl{
		"weixin": {
			Delay: &core.DelayConfig{MinDelayMs: 10, MaxDelayMs: 20},
		},
	}
	dm := NewDelayManager(cfg)

	start := time.Now()
	dm.Apply("weixin", false)
	elapsed := time.Since(start)
	if elapsed >= 300*time.Millisecond {
		t.Errorf("平台覆盖后延迟应远小于全局区间, 实际: %v", elapsed)
	}
}

// TestDelay区间退化 验证min>=max时取min
func TestDelay区间退化(t *testing.T) {
	dm := NewDelayManager(delayConfig(ApplyBeforeRequest, 80, 30))

	start := time.Now()
	dm.Apply("weixin", false)
	elapsed := time.Since(start)
	if elapsed < 60*time.Millisecond {
		t.Errorf("min>=max时应取min=80ms, 实际: %v", elapsed)
	}
}
