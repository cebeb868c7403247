package core

import "errors"

// 错误类型定义
var (
	// ErrRateLimitExceeded 限流拒绝,调用方可稍后重试
	ErrRateLimitExceeded = errors.New("请求超出速率限制")
	// ErrQueueModeUnsupported queue溢出策略未实现
	ErrQueueModeUnsupported = errors.New("queue溢出策略未实现")
	// ErrPlatformNotFound 平台未注册
	ErrPlatformNotFound = errors.New("平台未注册")
	// ErrInvalidConfig 配置不合法
	ErrInvalidConfig = errors.New("配置不合法")
	// ErrInvalidParam 调用参数不合法
	ErrInvalidParam = errors.New("参数不合法")
	// ErrBrowserNotRunning 浏览器未启动或已关闭
	ErrBrowserNotRunning = errors.New("浏览器未启动")
	// ErrPageBudgetExceeded 标签页数超出资源预算
	ErrPageBudgetExceeded = errors.New("标签页数超出资源预算")
)
