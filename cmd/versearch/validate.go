package main

import "fmt"

// ValidateFlags 验证命令行标志
func ValidateFlags(platforms []string, maxResults int, timeFilter string, batchDelay int) error {
	// 验证平台列表
	if len(platforms) == 0 {
		return fmt.Errorf("至少指定一个平台")
	}

	// 验证结果数
	if maxResults < 1 || maxResults > 30 {
		return fmt.Errorf("结果数必须在1-30之间,当前值: %d", maxResults)
	}

	// 验证时间过滤
	if timeFilter != "" {
		validFilters := map[string]bool{
			"day":   true,
			"week":  true,
			"month": true,
			"year":  true,
		}
		if !validFilters[timeFilter] {
			return fmt.Errorf("无效的时间过滤: %s (有效值: day, week, month, year)", timeFilter)
		}
	}

	// 验证批量延迟
	if batchDelay < 0 || batchDelay > 60 {
		return fmt.Errorf("批量延迟必须在0-60秒之间,当前值: %d", batchDelay)
	}

	return nil
}
