package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

var errPoolClosed = errors.New("标签页池已关闭")

// PagePool 复用浏览器标签页
// slots 限制同时借出的标签页数; idle 保存已重置、可直接复用的标签页
type PagePool struct {
	browser *rod.Browser
	slots   chan struct{}
	idle    chan *rod.Page

	mu     sync.Mutex
	open   map[*rod.Page]struct{}
	closed bool
}

// NewPagePool size 为页面并发数, 小于1时按1处理
func NewPagePool(browser *rod.Browser, size int) *PagePool {
	if size < 1 {
		size = 1
	}
	return &PagePool{
		browser: browser,
		slots:   make(chan struct{}, size),
		idle:    make(chan *rod.Page, size),
		open:    make(map[*rod.Page]struct{}, size),
	}
}

// AcquirePage 借出一个标签页, 所有标签页都在使用时阻塞到ctx结束
func (pp *PagePool) AcquirePage(ctx context.Context) (*rod.Page, error) {
	select {
	case pp.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.closed {
		<-pp.slots
		return nil, errPoolClosed
	}
	select {
	case page := <-pp.idle:
		return page, nil
	default:
	}
	page, err := pp.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		<-pp.slots
		return nil, fmt.Errorf("创建标签页失败(浏览器可能已崩溃): %w", err)
	}
	pp.open[page] = struct{}{}
	log.Debug().Int("tabs", len(pp.open)).Msg("创建新标签页")
	return page, nil
}

// ReleasePage 重置标签页后放回池中; 重置失败的标签页直接关闭
func (pp *PagePool) ReleasePage(page *rod.Page) {
	if page == nil {
		return
	}
	defer func() { <-pp.slots }()

	if err := resetPage(page); err != nil {
		log.Warn().Err(err).Msg("重置标签页失败, 关闭该标签页")
		pp.discard(page)
		return
	}

	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.closed {
		return
	}
	pp.idle <- page
}

// resetPage 停止页面上的后续请求并清除会话状态
// 同一标签页先后渲染的两个页面不共享cookie和storage
func resetPage(page *rod.Page) error {
	if err := page.Navigate("about:blank"); err != nil {
		return fmt.Errorf("导航到空白页失败: %w", err)
	}
	if err := page.SetCookies(nil); err != nil {
		return fmt.Errorf("清理cookie失败: %w", err)
	}
	_, err := page.Evaluate(rod.Eval(`() => {
		try { localStorage.clear(); sessionStorage.clear(); } catch (e) {}
	}`))
	if err != nil {
		return fmt.Errorf("清理存储失败: %w", err)
	}
	return nil
}

func (pp *PagePool) discard(page *rod.Page) {
	pp.mu.Lock()
	delete(pp.open, page)
	pp.mu.Unlock()

	if err := page.Close(); err != nil {
		log.Debug().Err(err).Msg("关闭标签页失败")
	}
}

// Close 关闭所有标签页, 之后的 AcquirePage 返回错误
func (pp *PagePool) Close() {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.closed {
		return
	}
	pp.closed = true
	for page := range pp.open {
		if err := page.Close(); err != nil {
			log.Debug().Err(err).Msg("关闭标签页失败")
		}
	}
	pp.open = nil
}
