package crawlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/RecoveryAshes/sitecloner/internal/utils"
	"github.com/temoto/robotstxt"
)

// RobotsGuard robots.txt 策略(默认关闭)
// 每个主机只拉取一次robots.txt; 拉取或解析失败时放行
type RobotsGuard struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsGuard 创建robots.txt检查器
func NewRobotsGuard(client *http.Client, userAgent string) *RobotsGuard {
	if client == nil {
		client = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = "*"
	}
	return &RobotsGuard{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed 判断页面URL是否允许抓取
func (g *RobotsGuard) Allowed(ctx context.Context, pageURL string) bool {
	if g == nil {
		return true
	}
	u, err := url.Parse(pageURL)
	if err != nil || !u.IsAbs() {
		return false
	}

	rules, err := g.rules(ctx, u)
	if err != nil {
		utils.Debugf("robots.txt 不可用,放行 [%s]: %v", u.Host, err)
		return true
	}

	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return rules.TestAgent(p, g.userAgent)
}

func (g *RobotsGuard) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	g.mu.Lock()
	defer g.mu.Unlock()

	if data, ok := g.cache[host]; ok {
		return data, nil
	}

	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构造robots请求失败: %w", err)
	}
	if g.userAgent != "*" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("获取robots.txt失败: %w", err)
	}
	defer resp.Body.Close()

	// FromResponse 对4xx返回全部允许, 5xx返回全部禁止
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("解析robots.txt失败: %w", err)
	}

	g.cache[host] = data
	return data, nil
}
