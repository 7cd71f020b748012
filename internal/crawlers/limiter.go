package crawlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter 按主机限制资源请求速率
type HostLimiter struct {
	perSecond float64
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter 创建主机限速器, perSecond<=0 时返回nil(不限速)
func NewHostLimiter(perSecond float64) *HostLimiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		perSecond: perSecond,
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Wait 阻塞直到该主机允许下一次请求,或ctx结束
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || host == "" {
		return nil
	}
	return h.limiterFor(host).Wait(ctx)
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	host = strings.ToLower(host)

	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(h.perSecond), h.burst)
		h.limiters[host] = l
	}
	return l
}

// Interval 同一主机两次请求之间的最小间隔
func (h *HostLimiter) Interval() time.Duration {
	if h == nil {
		return 0
	}
	return time.Duration(float64(time.Second) / h.perSecond)
}
