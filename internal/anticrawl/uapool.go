package anticrawl

import (
	"math/rand"
	"sync"
)

// 默认UA池,配置未提供user_agents时使用
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// UserAgentPool 随机UA池
// 每个新建页面取一个随机UA,降低指纹一致性
type UserAgentPool struct {
	mu     sync.Mutex
	agents []string
}

// NewUserAgentPool 创建UA池,agents为空时使用内置默认池
func NewUserAgentPool(agents []string) *UserAgentPool {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	pool := make([]string, len(agents))
	copy(pool, agents)
	return &UserAgentPool{agents: pool}
}

// Pick 随机取一个UA
func (p *UserAgentPool) Pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[rand.Intn(len(p.agents))]
}

// Size 池内UA数量
func (p *UserAgentPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.agents)
}
