package browser

import (
	"errors"
	"testing"

	"github.com/RecoveryAshes/versearch/internal/core"
)

func TestPageBudget固定上限(t *testing.T) {
	budget := NewPageBudget(2)

	if got := budget.Max(); got != 2 {
		t.Errorf("上限错误: 期望 2, 得到 %d", got)
	}
	if err := budget.Acquire(1); err != nil {
		t.Errorf("预算内申请不应失败: %v", err)
	}
	if err := budget.Acquire(2); err != nil {
		t.Errorf("达到上限的申请不应失败: %v", err)
	}
}

func TestPageBudget超预算拒绝(t *testing.T) {
	budget := NewPageBudget(2)

	err := budget.Acquire(3)
	if err == nil {
		t.Fatal("超出预算的申请应该被拒绝")
	}
	if !errors.Is(err, core.ErrPageBudgetExceeded) {
		t.Errorf("错误类型不匹配: %v", err)
	}
}

func TestPageBudget自动计算(t *testing.T) {
	budget := NewPageBudget(0)

	maxPages := budget.Max()
	if maxPages < 1 {
		t.Errorf("自动计算的上限至少为1, 得到 %d", maxPages)
	}
	if maxPages > defaultMaxPages {
		t.Errorf("自动计算的上限不应超过%d, 得到 %d", defaultMaxPages, maxPages)
	}
	if err := budget.Acquire(1); err != nil {
		t.Errorf("至少一个标签页的申请不应失败: %v", err)
	}
}
