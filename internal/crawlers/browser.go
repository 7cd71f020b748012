package crawlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/sitecloner/internal/models"
	"github.com/RecoveryAshes/sitecloner/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserOptions 浏览器渲染器配置
type BrowserOptions struct {
	Headless          bool
	NavigationTimeout time.Duration // 单页导航+渲染超时
	NetworkIdle       time.Duration // 网络静默判定时间
	Tabs              int           // 标签页数(页面并发数)
	Headers           models.HeaderProvider
	BinPath           string // 浏览器可执行文件路径,为空时自动查找/下载
}

// BrowserRenderer 基于go-rod的无头浏览器渲染器
type BrowserRenderer struct {
	browser *rod.Browser
	pool    *PagePool
	opts    BrowserOptions
}

// skipBrowserHeaders 由浏览器自身管理的头部,不通过额外头部覆盖
var skipBrowserHeaders = map[string]struct{}{
	"User-Agent":      {},
	"Accept-Encoding": {},
	"Host":            {},
	"Content-Length":  {},
	"Connection":      {},
}

// NewBrowserRenderer 启动浏览器并创建渲染器
// 浏览器无法启动时返回 ErrRendererUnavailable
func NewBrowserRenderer(opts BrowserOptions) (*BrowserRenderer, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.NetworkIdle <= 0 {
		opts.NetworkIdle = 500 * time.Millisecond
	}

	browser, err := launchBrowser(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}

	utils.Warnf("浏览器已配置为跳过HTTPS证书验证,适用于内网/开发环境的自签名证书")

	return &BrowserRenderer{
		browser: browser,
		pool:    NewPagePool(browser, opts.Tabs),
		opts:    opts,
	}, nil
}

// launchBrowser 启动浏览器
func launchBrowser(opts BrowserOptions) (*rod.Browser, error) {
	l := launcher.New().Headless(opts.Headless)
	if opts.BinPath != "" {
		l = l.Bin(opts.BinPath)
	}

	// 忽略证书错误,允许访问自签名、过期或主机名不匹配的HTTPS站点
	l = l.Set("ignore-certificate-errors")
	utils.Debugf("浏览器启动参数: --ignore-certificate-errors (跳过TLS证书验证)")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	utils.Debugf("浏览器已启动: %s", controlURL)
	return browser, nil
}

// Render 导航到页面,等待网络静默,返回DOM中的资源引用
func (r *BrowserRenderer) Render(ctx context.Context, pageURL string) (raw *models.RawPage, err error) {
	// 浏览器操作panic转换为页面错误
	defer func() {
		if rec := recover(); rec != nil {
			utils.Errorf("页面渲染panic: URL=%s, 错误=%v", pageURL, rec)
			err = fmt.Errorf("页面渲染panic: %v", rec)
		}
	}()

	page, err := r.pool.AcquirePage(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取标签页失败: %w", err)
	}
	defer r.pool.ReleasePage(page)

	p := page.Context(ctx).Timeout(r.opts.NavigationTimeout)
	defer p.CancelTimeout()

	restore, err := r.applyHeaders(p)
	if err != nil {
		utils.Warnf("设置HTTP头部失败 [%s]: %v", pageURL, err)
	}
	if restore != nil {
		defer restore()
	}

	waitIdle := p.WaitRequestIdle(r.opts.NetworkIdle, nil, nil, nil)

	if err := p.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("导航失败: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("等待页面加载失败: %w", err)
	}
	waitIdle()

	result, err := p.Evaluate(&rod.EvalOptions{JS: extractScript})
	if err != nil {
		return nil, fmt.Errorf("执行JavaScript提取资源失败: %w", err)
	}

	raw = &models.RawPage{}
	if err := json.Unmarshal([]byte(result.Value.Str()), raw); err != nil {
		return nil, fmt.Errorf("解析提取结果失败: %w", err)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("获取页面HTML失败: %w", err)
	}
	raw.HTML = html

	if info, err := p.Info(); err == nil && info.URL != "" {
		raw.FinalURL = info.URL
	}
	if raw.FinalURL == "" {
		raw.FinalURL = pageURL
	}

	utils.Debugf("页面渲染完成: %s", raw.FinalURL)
	return raw, nil
}

// applyHeaders 通过额外头部和UA覆盖应用自定义HTTP头部
func (r *BrowserRenderer) applyHeaders(p *rod.Page) (func(), error) {
	if r.opts.Headers == nil {
		return nil, nil
	}
	headers, err := r.opts.Headers.GetHeaders()
	if err != nil {
		return nil, err
	}

	if ua := headers.Get("User-Agent"); ua != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			return nil, err
		}
	}

	dict := extraHeaderPairs(headers)
	if len(dict) == 0 {
		return nil, nil
	}
	return p.SetExtraHeaders(dict)
}

// extraHeaderPairs 把头部展开为 [name, value, name, value ...]
func extraHeaderPairs(headers http.Header) []string {
	var dict []string
	for name, values := range headers {
		canonical := http.CanonicalHeaderKey(name)
		if _, skip := skipBrowserHeaders[canonical]; skip {
			continue
		}
		if len(values) == 0 {
			continue
		}
		dict = append(dict, canonical, strings.Join(values, ", "))
	}
	return dict
}

// Close 关闭标签页池和浏览器
func (r *BrowserRenderer) Close() error {
	r.pool.Close()
	if err := r.browser.Close(); err != nil {
		return fmt.Errorf("关闭浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已关闭")
	return nil
}

// extractScript 在页面中收集资源引用,返回JSON字符串
// 返回的URL保持DOM属性的原始值,由Extractor统一解析和过滤
const extractScript = `() => {
	const attr = (sel, name) => Array.from(document.querySelectorAll(sel))
		.map(el => el.getAttribute(name))
		.filter(v => v !== null && v !== '');
	const srcset = (sel) => Array.from(document.querySelectorAll(sel))
		.flatMap(el => (el.getAttribute('srcset') || '').split(','))
		.map(s => s.trim().split(/\s+/)[0])
		.filter(Boolean);
	const text = (sel) => Array.from(document.querySelectorAll(sel))
		.map(el => el.textContent || '')
		.filter(t => t.trim() !== '');
	const meta = (name) => {
		const el = document.querySelector('meta[name="' + name + '"]');
		return el ? (el.getAttribute('content') || '') : '';
	};
	const forms = Array.from(document.querySelectorAll('form')).map(f => ({
		action: f.getAttribute('action') || '',
		method: (f.getAttribute('method') || 'GET').toUpperCase(),
		fields: Array.from(f.querySelectorAll('input, select, textarea')).map(i => ({
			name: i.getAttribute('name') || '',
			type: i.getAttribute('type') || i.tagName.toLowerCase()
		}))
	}));
	return JSON.stringify({
		final_url: location.href,
		images: attr('img[src]', 'src')
			.concat(srcset('img[srcset], picture source[srcset]'))
			.concat(attr('video[poster]', 'poster'))
			.concat(attr('input[type="image"][src]', 'src')),
		stylesheets: attr('link[rel~="stylesheet"][href]', 'href'),
		inline_css: text('style'),
		scripts: attr('script[src]', 'src'),
		inline_js: Array.from(document.querySelectorAll('script:not([src])'))
			.filter(s => !s.type || /javascript|module/i.test(s.type))
			.map(s => s.textContent || '')
			.filter(t => t.trim() !== ''),
		media: attr('video[src], audio[src], video source[src], audio source[src], track[src]', 'src'),
		embeds: attr('embed[src]', 'src').concat(attr('object[data]', 'data')),
		icons: attr('link[rel~="icon"][href], link[rel="apple-touch-icon"][href], link[rel="manifest"][href]', 'href'),
		links: attr('a[href], area[href]', 'href'),
		forms: forms,
		meta: {
			title: document.title || '',
			description: meta('description'),
			language: document.documentElement.getAttribute('lang') || ''
		}
	});
}`
