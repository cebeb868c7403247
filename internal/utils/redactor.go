package utils

// RedactSecret 脱敏密钥类字符串,用于日志输出
// 足够长时显示前4位+后4位,否则完全隐藏
func RedactSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}
