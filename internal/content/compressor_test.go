package content

import (
	"context"
	"strings"
	"testing"

	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/models"
)

// noKeyCompressor 不配置API密钥的压缩器,所有压缩走截断路径
func noKeyCompressor() *Compressor {
	return NewCompressor(core.CompressionAPIConfig{
		KeyEnv: "VERSEARCH_TEST_MISSING_KEY",
		Model:  "deepseek-chat",
	})
}

// TestCompress无密钥截断 验证无API凭证时退化为截断
func TestCompress无密钥截断(t *testing.T) {
	c := noKeyCompressor()

	text := strings.Repeat("这是一段很长的文章内容。", 100)
	got, status := c.Compress(context.Background(), text, 100)

	if status != models.StatusTruncated {
		t.Errorf("无密钥时状态应为truncated, 实际: %s", status)
	}
	if n := len([]rune(got)); n > 100 {
		t.Errorf("截断结果不应超过100字符, 实际: %d", n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("截断结果应以省略号结尾: %q", got[len(got)-9:])
	}
}

// TestCompress空内容 验证空内容直接返回original
func TestCompress空内容(t *testing.T) {
	c := noKeyCompressor()

	got, status := c.Compress(context.Background(), "", 100)
	if got != "" || status != models.StatusOriginal {
		t.Errorf("空内容应返回(\"\", original), 实际: (%q, %s)", got, status)
	}
}

// TestCompress不超限原样保留 验证截断路径下短内容不加省略号
func TestCompress不超限原样保留(t *testing.T) {
	c := noKeyCompressor()

	text := "短内容"
	got, status := c.Compress(context.Background(), text, 100)
	if got != text {
		t.Errorf("不超限内容应原样返回, 实际: %q", got)
	}
	if status != models.StatusTruncated {
		t.Errorf("无密钥路径状态应为truncated, 实际: %s", status)
	}
}

// TestCompressBatch无密钥均分截断 验证批量失败回退为逐篇均分截断
func TestCompressBatch无密钥均分截断(t *testing.T) {
	c := noKeyCompressor()

	long := strings.Repeat("批量压缩测试内容。", 200)
	results := []*models.SearchResult{
		{Title: "文章一", Content: long},
		{Title: "文章二", Content: long},
		{Title: "无正文"},
		{Title: "文章三", Content: long},
	}

	c.CompressBatch(context.Background(), results, 300)

	perArticle := 300 / len(results)
	for _, r := range results {
		if r.Title == "无正文" {
			if r.Content != "" || r.ContentStatus != "" {
				t.Errorf("无正文条目不应被修改: %+v", r)
			}
			continue
		}
		if r.ContentStatus != models.StatusTruncated {
			t.Errorf("文章'%s'状态应为truncated, 实际: %s", r.Title, r.ContentStatus)
		}
		if n := len([]rune(r.Content)); n > perArticle {
			t.Errorf("文章'%s'截断后不应超过%d字符, 实际: %d", r.Title, perArticle, n)
		}
	}
}
