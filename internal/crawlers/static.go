package crawlers

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/sitecloner/internal/mirror"
	"github.com/RecoveryAshes/sitecloner/internal/models"
	"github.com/RecoveryAshes/sitecloner/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// StaticOptions 静态渲染器配置
type StaticOptions struct {
	Timeout time.Duration // 单页请求超时
	MaxBody int           // 页面最大字节数
	Headers models.HeaderProvider
	Client  *http.Client // 自定义HTTP客户端(测试用)
}

// StaticRenderer 静态渲染器(使用Colly)
// 不执行JavaScript,只解析服务端返回的HTML
type StaticRenderer struct {
	collector *colly.Collector
	headers   models.HeaderProvider
}

// NewStaticRenderer 创建静态渲染器
func NewStaticRenderer(opts StaticOptions) *StaticRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = models.MaxAssetSize
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true, // 跳过证书验证,允许访问自签名、过期或主机名不匹配的HTTPS站点
				},
			},
		}
	}

	// 不设置AllowedDomains和MaxDepth,访问范围完全由Frontier控制
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(opts.MaxBody),
	)
	c.SetClient(client)
	c.SetRequestTimeout(opts.Timeout)
	utils.Debugf("静态渲染器: TLS证书验证已禁用, 请求超时 %v", opts.Timeout)

	return &StaticRenderer{
		collector: c,
		headers:   opts.Headers,
	}
}

// Render 请求页面并解析资源引用
func (sr *StaticRenderer) Render(ctx context.Context, pageURL string) (*models.RawPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 每次渲染使用独立的collector副本,回调之间互不干扰
	c := sr.collector.Clone()

	raw := &models.RawPage{Meta: make(map[string]string)}
	var (
		mu       sync.Mutex
		fetchErr error
	)
	add := func(dst *[]string, v string) {
		if v == "" {
			return
		}
		mu.Lock()
		*dst = append(*dst, v)
		mu.Unlock()
	}

	c.OnRequest(func(r *colly.Request) {
		if sr.headers == nil {
			return
		}
		headers, err := sr.headers.GetHeaders()
		if err != nil {
			utils.Warnf("获取HTTP头部失败: %v", err)
			return
		}
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})

	c.OnResponse(func(r *colly.Response) {
		if encoding := r.Headers.Get("Content-Encoding"); encoding != "" {
			body, err := decompressResponse(encoding, r.Body)
			if err != nil {
				utils.Warnf("解压响应失败 [%s] (编码=%s): %v", r.Request.URL, encoding, err)
			} else {
				r.Body = body
			}
		}
		raw.FinalURL = r.Request.URL.String()
		raw.HTML = string(r.Body)
	})

	c.OnHTML("img[src]", func(e *colly.HTMLElement) {
		add(&raw.Images, e.Request.AbsoluteURL(e.Attr("src")))
	})
	c.OnHTML("img[srcset], picture source[srcset]", func(e *colly.HTMLElement) {
		for _, candidate := range strings.Split(e.Attr("srcset"), ",") {
			if fields := strings.Fields(candidate); len(fields) > 0 {
				add(&raw.Images, e.Request.AbsoluteURL(fields[0]))
			}
		}
	})
	c.OnHTML("video[poster]", func(e *colly.HTMLElement) {
		add(&raw.Images, e.Request.AbsoluteURL(e.Attr("poster")))
	})
	c.OnHTML("link[href]", func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		for _, rel := range strings.Fields(strings.ToLower(e.Attr("rel"))) {
			switch rel {
			case "stylesheet":
				add(&raw.Stylesheets, href)
				return
			case "icon", "apple-touch-icon", "manifest":
				add(&raw.Icons, href)
				return
			}
		}
	})
	c.OnHTML("style", func(e *colly.HTMLElement) {
		if strings.TrimSpace(e.Text) != "" {
			add(&raw.InlineCSS, e.Text)
		}
	})
	c.OnHTML("script", func(e *colly.HTMLElement) {
		if src := e.Attr("src"); src != "" {
			add(&raw.Scripts, e.Request.AbsoluteURL(src))
			return
		}
		typ := strings.ToLower(e.Attr("type"))
		if typ != "" && !strings.Contains(typ, "javascript") && typ != "module" {
			return
		}
		if strings.TrimSpace(e.Text) != "" {
			add(&raw.InlineJS, e.Text)
		}
	})
	c.OnHTML("video[src], audio[src], video source[src], audio source[src], track[src]", func(e *colly.HTMLElement) {
		add(&raw.Media, e.Request.AbsoluteURL(e.Attr("src")))
	})
	c.OnHTML("embed[src]", func(e *colly.HTMLElement) {
		add(&raw.Embeds, e.Request.AbsoluteURL(e.Attr("src")))
	})
	c.OnHTML("object[data]", func(e *colly.HTMLElement) {
		add(&raw.Embeds, e.Request.AbsoluteURL(e.Attr("data")))
	})
	c.OnHTML("a[href], area[href]", func(e *colly.HTMLElement) {
		add(&raw.Links, e.Request.AbsoluteURL(e.Attr("href")))
	})
	c.OnHTML("form", func(e *colly.HTMLElement) {
		form := models.FormDescriptor{
			Action: e.Attr("action"),
			Method: strings.ToUpper(e.Attr("method")),
		}
		if form.Action != "" {
			form.Action = e.Request.AbsoluteURL(form.Action)
		}
		e.DOM.Find("input, select, textarea").Each(func(_ int, field *goquery.Selection) {
			typ := field.AttrOr("type", "")
			if typ == "" {
				typ = goquery.NodeName(field)
			}
			form.Fields = append(form.Fields, models.FormField{Name: field.AttrOr("name", ""), Type: typ})
		})
		mu.Lock()
		raw.Forms = append(raw.Forms, form)
		mu.Unlock()
	})
	c.OnHTML("title", func(e *colly.HTMLElement) {
		mu.Lock()
		if raw.Meta[models.MetaTitle] == "" {
			raw.Meta[models.MetaTitle] = strings.TrimSpace(e.Text)
		}
		mu.Unlock()
	})
	c.OnHTML(`meta[name="description"]`, func(e *colly.HTMLElement) {
		mu.Lock()
		raw.Meta[models.MetaDescription] = e.Attr("content")
		mu.Unlock()
	})
	c.OnHTML("html[lang]", func(e *colly.HTMLElement) {
		mu.Lock()
		raw.Meta[models.MetaLanguage] = e.Attr("lang")
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 300 {
			fetchErr = &mirror.FetchError{Kind: mirror.KindHTTPStatus, StatusCode: r.StatusCode, Err: err}
			return
		}
		fetchErr = &mirror.FetchError{Kind: mirror.KindOf(err), Err: err}
	})

	// colly的同步请求不接受context,在单独的goroutine中执行以便响应取消
	done := make(chan error, 1)
	go func() {
		done <- c.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if fetchErr != nil {
			return nil, fetchErr
		}
		if err != nil {
			return nil, fmt.Errorf("请求页面失败: %w", err)
		}
	}

	if raw.FinalURL == "" {
		raw.FinalURL = pageURL
	}
	utils.Debugf("静态页面解析完成: %s (图片=%d, 样式=%d, 脚本=%d, 链接=%d)",
		raw.FinalURL, len(raw.Images), len(raw.Stylesheets), len(raw.Scripts), len(raw.Links))
	return raw, nil
}

// Close 静态渲染器无需释放资源
func (sr *StaticRenderer) Close() error {
	return nil
}

// decompressResponse 根据Content-Encoding头部解压响应体
// 支持 gzip, deflate, br (Brotli); colly已自动解压gzip时按魔数识别,原样返回
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip", "x-gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)

	case "deflate":
		reader, err := newDeflateReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "identity":
		return body, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
