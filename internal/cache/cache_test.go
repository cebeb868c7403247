package cache

import (
	"testing"
	"time"
)

// TestKeyDeterministic 测试缓存键生成的确定性
func TestKeyDeterministic(t *testing.T) {
	c := NewSearchCache(time.Minute)

	params := map[string]any{"max_results": 10, "time_filter": "week"}
	key1 := c.Key("weixin", "golang并发", params)
	key2 := c.Key("weixin", "golang并发", map[string]any{"time_filter": "week", "max_results": 10})

	if key1 != key2 {
		t.Errorf("相同输入应产生相同键: %s != %s", key1, key2)
	}

	tests := []struct {
		name     string
		platform string
		query    string
		params   map[string]any
	}{
		{"平台不同", "zhihu", "golang并发", params},
		{"查询词不同", "weixin", "rust并发", params},
		{"参数不同", "weixin", "golang并发", map[string]any{"max_results": 20, "time_filter": "week"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Key(tt.platform, tt.query, tt.params); got == key1 {
				t.Errorf("不同输入不应产生相同键: %s", got)
			}
		})
	}
}

// TestTTLExpiration 测试TTL过期边界
func TestTTLExpiration(t *testing.T) {
	ttl := 100 * time.Millisecond
	c := NewSearchCache(ttl)

	c.Set("k", "v")

	// TTL内读取命中
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Errorf("TTL内应命中: ok=%v, v=%v", ok, v)
	}

	// 等待过期
	time.Sleep(ttl + 50*time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("TTL后应未命中")
	}

	// 过期条目应被惰性淘汰
	if c.Len() != 0 {
		t.Errorf("过期条目应被删除,剩余%d条", c.Len())
	}
}

// TestCustomTTL 测试正文缓存的自定义TTL
func TestCustomTTL(t *testing.T) {
	// 默认TTL很短,自定义TTL较长
	c := NewSearchCache(50 * time.Millisecond)

	hash := URLHash("https://mp.weixin.qq.com/s/abc")
	c.SetContent(hash, "文章正文", time.Minute)

	time.Sleep(100 * time.Millisecond)

	// 默认TTL已过,但自定义TTL条目仍有效
	if content, ok := c.GetContent(hash); !ok || content != "文章正文" {
		t.Errorf("自定义TTL条目应仍然有效: ok=%v", ok)
	}
}

// TestCompressedCacheKey 测试压缩缓存键包含maxTokens
func TestCompressedCacheKey(t *testing.T) {
	c := NewSearchCache(time.Minute)

	hash := URLHash("https://zhihu.com/question/1")
	c.SetCompressed(hash, 2000, "压缩后内容", time.Minute)

	if _, ok := c.GetCompressed(hash, 3000); ok {
		t.Error("不同maxTokens不应命中同一压缩缓存")
	}
	if v, ok := c.GetCompressed(hash, 2000); !ok || v != "压缩后内容" {
		t.Errorf("相同maxTokens应命中: ok=%v", ok)
	}
}

// TestURLHash 测试URL哈希稳定性
func TestURLHash(t *testing.T) {
	h1 := URLHash("https://example.com/a")
	h2 := URLHash("https://example.com/a")
	h3 := URLHash("https://example.com/b")

	if h1 != h2 {
		t.Error("相同URL应产生相同哈希")
	}
	if h1 == h3 {
		t.Error("不同URL不应产生相同哈希")
	}
	if len(h1) != 32 {
		t.Errorf("MD5十六进制长度应为32,得到%d", len(h1))
	}
}
