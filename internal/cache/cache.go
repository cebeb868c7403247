// Package cache 提供带TTL的进程内搜索缓存
package cache

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// entry 缓存条目,过期时间在写入时确定
type entry struct {
	value    any
	expireAt time.Time
}

// SearchCache 带TTL的内存缓存
// 条目在读取时惰性淘汰,无后台清理goroutine
type SearchCache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
}

// NewSearchCache 创建缓存,ttl为默认存活时间
func NewSearchCache(ttl time.Duration) *SearchCache {
	return &SearchCache{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

// Key 生成缓存键: md5(platform:query:json(params))
// params经JSON序列化,键按字典序排列,保证相同输入产生相同键
func (c *SearchCache) Key(platform, query string, params map[string]any) string {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		paramsJSON = []byte("{}")
	}
	keyStr := fmt.Sprintf("%s:%s:%s", platform, query, paramsJSON)
	return fmt.Sprintf("%x", md5.Sum([]byte(keyStr)))
}

// Get 读取缓存值,过期条目被删除并返回未命中
func (c *SearchCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !time.Now().Before(e.expireAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set 写入缓存值,使用默认TTL
func (c *SearchCache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL 写入缓存值并指定存活时间
func (c *SearchCache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expireAt: time.Now().Add(ttl)}
}

// Clear 清空所有缓存条目
func (c *SearchCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len 返回当前条目数(含尚未惰性淘汰的过期条目)
func (c *SearchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetContent 读取缓存的文章正文
func (c *SearchCache) GetContent(urlHash string) (string, bool) {
	v, ok := c.Get("content:" + urlHash)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// SetContent 缓存文章正文,使用自定义TTL
func (c *SearchCache) SetContent(urlHash, content string, ttl time.Duration) {
	c.SetWithTTL("content:"+urlHash, content, ttl)
}

// GetCompressed 读取缓存的压缩正文,maxTokens参与键组成
func (c *SearchCache) GetCompressed(urlHash string, maxTokens int) (string, bool) {
	v, ok := c.Get(fmt.Sprintf("compressed:%s:%d", urlHash, maxTokens))
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// SetCompressed 缓存压缩正文
func (c *SearchCache) SetCompressed(urlHash string, maxTokens int, content string, ttl time.Duration) {
	c.SetWithTTL(fmt.Sprintf("compressed:%s:%d", urlHash, maxTokens), content, ttl)
}

// URLHash 生成URL哈希,用作正文缓存键
func URLHash(url string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(url)))
}
