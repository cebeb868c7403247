package content

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/RecoveryAshes/versearch/internal/models"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

// 保守估算系数: 宁可高估不可低估
const (
	chineseCharsPerToken = 1.3 // 实际约1.5-2字/token
	englishCharsPerToken = 3.5 // 实际约4字/token
	safetyMargin         = 10
)

// TokenEstimator token估算器
// 优先使用tiktoken精确编码,编码器加载失败时退化为字符系数估算;
// 零值可直接使用(走估算路径)
type TokenEstimator struct {
	once sync.Once
	tkm  *tiktoken.Tiktoken
}

// NewTokenEstimator 创建估算器
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{}
}

func (e *TokenEstimator) encoder() *tiktoken.Tiktoken {
	e.once.Do(func() {
		tkm, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			utils.Warnf("加载tiktoken编码器失败,退化为字符估算: %v", err)
			return
		}
		e.tkm = tkm
	})
	return e.tkm
}

// Estimate 估算文本的token数
func (e *TokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if tkm := e.encoder(); tkm != nil {
		return len(tkm.Encode(text, nil, nil))
	}
	return heuristicEstimate(text)
}

// heuristicEstimate 中英文分开按保守系数估算,附加安全余量
func heuristicEstimate(text string) int {
	runes := []rune(text)
	chinese := 0
	for _, r := range runes {
		if r >= 0x4e00 && r <= 0x9fff {
			chinese++
		}
	}
	other := len(runes) - chinese

	tokens := float64(chinese)/chineseCharsPerToken + float64(other)/englishCharsPerToken
	return int(tokens) + safetyMargin
}

// EstimateTotal 估算一组搜索结果的总token数(标题+摘要+正文)
func (e *TokenEstimator) EstimateTotal(results []*models.SearchResult) int {
	total := 0
	for _, r := range results {
		if r.Title != "" {
			total += e.Estimate(r.Title)
		}
		if r.Snippet != "" {
			total += e.Estimate(r.Snippet)
		}
		if r.Content != "" {
			total += e.Estimate(r.Content)
		}
	}
	return total
}
