package models

// DetectionKind 反爬响应类型
type DetectionKind string

const (
	DetectionNone      DetectionKind = "none"
	DetectionLoginWall DetectionKind = "login_wall"
	DetectionCaptcha   DetectionKind = "captcha"
	DetectionIPBan     DetectionKind = "ip_ban"
	DetectionRateLimit DetectionKind = "rate_limit"
)

// DetectionResult 反爬检测结果
// 始终是对一次页面快照的完整分类,不会部分填充
type DetectionResult struct {
	Detected   bool          `json:"detected"`
	Kind       DetectionKind `json:"kind"`
	Confidence float64       `json:"confidence"`
	Details    string        `json:"details,omitempty"`
}

// NoDetection 未检测到反爬的结果
func NoDetection() DetectionResult {
	return DetectionResult{Detected: false, Kind: DetectionNone, Confidence: 0.0}
}
