package browser

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

const (
	safetyReserveMemory = 1024 * 1024 * 1024 // 1GB
	tabMemoryUsage      = 100 * 1024 * 1024  // 单标签页估算100MB
	defaultMaxPages     = 16
)

// PageBudget 标签页预算
// 根据系统可用内存和CPU核数估算安全的并发标签页上限,
// 超预算时拒绝创建新标签页
type PageBudget struct {
	mu          sync.Mutex
	limit       int
	totalMemory uint64
	cachedMax   int
	cachedAt    time.Time
}

// NewPageBudget 创建标签页预算,limit为0时按资源自动计算
func NewPageBudget(limit int) *PageBudget {
	var totalMem uint64
	if vmStat, err := mem.VirtualMemory(); err != nil {
		utils.Warnf("获取系统内存失败,使用默认值4GB: %v", err)
		totalMem = 4 * 1024 * 1024 * 1024
	} else {
		totalMem = vmStat.Total
		utils.Debugf("系统总内存: %.2f GB", float64(totalMem)/(1024*1024*1024))
	}

	return &PageBudget{limit: limit, totalMemory: totalMem}
}

// Max 返回当前允许的标签页建议上限(结果缓存1秒)
func (b *PageBudget) Max() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 {
		return b.limit
	}
	if time.Since(b.cachedAt) < time.Second && b.cachedMax > 0 {
		return b.cachedMax
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	available := int64(b.totalMemory) - int64(memStats.Alloc) - safetyReserveMemory
	byMemory := 1
	if available > 0 {
		byMemory = int(available / tabMemoryUsage)
		if byMemory < 1 {
			byMemory = 1
		}
	}

	result := min(byMemory, runtime.NumCPU(), defaultMaxPages)
	if result < 1 {
		result = 1
	}

	b.cachedMax = result
	b.cachedAt = time.Now()
	return result
}

// Acquire 申请第current个标签页的额度,超出预算时拒绝
func (b *PageBudget) Acquire(current int) error {
	if maxPages := b.Max(); current > maxPages {
		utils.Warnf("标签页数%d超出资源预算%d,拒绝创建", current, maxPages)
		return fmt.Errorf("%w: 当前%d, 上限%d", core.ErrPageBudgetExceeded, current, maxPages)
	}
	return nil
}
