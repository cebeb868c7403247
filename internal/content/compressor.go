package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/models"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

// 压缩提示词
const (
	singleCompressPrompt = `你是专业的内容压缩专家,请将下面的文章压缩为精炼版本。

压缩要求:
1. 保留核心观点和主要论据
2. 保留关键数据、数字、日期
3. 保留专业术语和技术细节
4. 保留结论和建议
5. 删除冗余描述、重复内容、过渡语句
6. 压缩后保持逻辑连贯

文章类型识别与处理:
- 技术文章: 保留代码示例(可缩短)、技术原理、实现步骤
- 新闻报道: 保留5W1H(时间、地点、人物、事件、原因、方式)
- 观点文章: 保留核心论点、关键论据、最终结论
- 教程指南: 保留关键步骤、注意事项、常见问题

输出格式: 直接输出压缩后的内容,不要任何前缀或解释。`

	batchCompressPrompt = `你是专业的内容整合专家,请将下面的多篇文章整合压缩为结构化摘要。

整合要求:
1. 识别每篇文章的核心观点
2. 合并相同/相似观点,标注来源
3. 保留差异化观点和独特见解
4. 提取共同的关键数据和结论
5. 保持各文章之间的可区分性

输出格式:
## 综合摘要
[整体主题与共同观点]

## 分篇要点
### 文章1: [标题]
- 核心观点: ...
- 关键数据: ...

### 文章2: [标题]
- 核心观点: ...
- 独特见解: ...

## 差异对比(如有)
[各文章观点的差异]`
)

// Compressor 内容压缩器
// 调用DeepSeek兼容的chat-completion接口压缩文章;
// 未配置API密钥或调用失败时退化为硬截断
type Compressor struct {
	client *openai.Client
	cfg    core.CompressionAPIConfig
}

// NewCompressor 创建压缩器
// 密钥从配置指定的环境变量读取,缺失时client为nil,压缩走截断路径
func NewCompressor(cfg core.CompressionAPIConfig) *Compressor {
	c := &Compressor{cfg: cfg}

	apiKey := os.Getenv(cfg.KeyEnv)
	if apiKey == "" {
		utils.Warnf("环境变量%s未设置,压缩将退化为截断", cfg.KeyEnv)
		return c
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	c.client = &client
	utils.Infof("压缩API客户端已初始化: model=%s, key=%s", cfg.Model, utils.RedactSecret(apiKey))
	return c
}

// Compress 压缩单篇内容到约maxTokens
// 返回压缩后文本和状态(compressed/truncated/original)
func (c *Compressor) Compress(ctx context.Context, text string, maxTokens int) (string, models.ContentStatus) {
	if text == "" {
		return "", models.StatusOriginal
	}
	if c.client == nil {
		utils.Warnf("压缩API不可用,截断处理: %d字符 -> %d tokens", len([]rune(text)), maxTokens)
		return truncate(text, maxTokens), models.StatusTruncated
	}

	// 超时随内容长度伸缩, 60-120秒
	timeout := boundedTimeout(float64(len(text))/100, 60, 120)
	utils.Infof("压缩内容: %d字符 -> 目标%d tokens (超时%.1fs)", len([]rune(text)), maxTokens, timeout.Seconds())

	user := fmt.Sprintf("请将以下内容压缩到约%d tokens:\n\n%s", maxTokens, text)
	compressed, err := c.complete(ctx, singleCompressPrompt, user, maxTokens, timeout)
	if err == nil {
		return compressed, models.StatusCompressed
	}

	switch {
	case isRateLimited(err):
		// 被限流: 等待后重试一次
		utils.Warnf("压缩API限流,5秒后重试")
		time.Sleep(5 * time.Second)
		if compressed, err = c.complete(ctx, singleCompressPrompt, user, maxTokens, timeout); err == nil {
			return compressed, models.StatusCompressed
		}
		utils.Errorf("限流重试失败: %v", err)

	case errors.Is(err, context.DeadlineExceeded):
		// 超时: 回退后用加倍的超时重试一次
		retryTimeout := min(180*time.Second, timeout*2)
		utils.Infof("压缩超时%.1fs,以%.1fs超时重试", timeout.Seconds(), retryTimeout.Seconds())
		time.Sleep(2 * time.Second)
		if compressed, err = c.complete(ctx, singleCompressPrompt, user, maxTokens, retryTimeout); err == nil {
			return compressed, models.StatusCompressed
		}
		utils.Warnf("压缩重试失败: %v,截断处理", err)

	default:
		utils.Errorf("压缩失败: %v,截断处理", err)
	}

	return truncate(text, maxTokens), models.StatusTruncated
}

// CompressBatch 把多篇文章整合压缩为一份结构化摘要
// 成功时所有条目的正文替换为同一份摘要;失败时按均分额度逐篇截断
func (c *Compressor) CompressBatch(ctx context.Context, results []*models.SearchResult, maxTotalTokens int) {
	if len(results) == 0 {
		return
	}

	var parts []string
	for i, r := range results {
		if r.Content == "" {
			continue
		}
		title := r.Title
		if title == "" {
			title = fmt.Sprintf("文章%d", i+1)
		}
		parts = append(parts, fmt.Sprintf("### 文章%d: %s\n\n%s", i+1, title, r.Content))
	}
	combined := strings.Join(parts, "\n\n")

	if c.client == nil {
		c.truncateEach(results, maxTotalTokens)
		return
	}

	// 批量压缩超时120-300秒
	timeout := boundedTimeout(float64(len(combined))/50, 120, 300)
	utils.Infof("批量压缩: %d字符, 目标%d tokens, 超时%.1fs", len([]rune(combined)), maxTotalTokens, timeout.Seconds())

	user := fmt.Sprintf("请将以下文章整合压缩到约%d tokens:\n\n%s", maxTotalTokens, combined)
	digest, err := c.complete(ctx, batchCompressPrompt, user, maxTotalTokens, timeout)
	if err != nil {
		utils.Errorf("批量压缩失败: %v,逐篇截断", err)
		c.truncateEach(results, maxTotalTokens)
		return
	}

	for _, r := range results {
		r.Content = digest
		r.ContentStatus = models.StatusBatchCompressed
	}
}

// truncateEach 批量压缩的截断回退: 总额度均分到每篇
func (c *Compressor) truncateEach(results []*models.SearchResult, maxTotalTokens int) {
	perArticle := maxTotalTokens / len(results)
	for _, r := range results {
		if r.Content == "" {
			continue
		}
		r.Content = truncate(r.Content, perArticle)
		r.ContentStatus = models.StatusTruncated
	}
}

func (c *Compressor) complete(ctx context.Context, system, user string, maxTokens int, timeout time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	temperature := c.cfg.Temperature
	if temperature <= 0 {
		temperature = 0.3
	}

	resp, err := c.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("压缩API响应无choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// isRateLimited 判断是否为API限流错误(HTTP 429)
func isRateLimited(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}

func boundedTimeout(seconds, low, high float64) time.Duration {
	return time.Duration(min(high, max(low, seconds)) * float64(time.Second))
}

// truncate 按字符数硬截断并附省略号,按rune切分避免截断多字节字符
func truncate(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	if maxChars <= 3 {
		return "..."
	}
	return string(runes[:maxChars-3]) + "..."
}
