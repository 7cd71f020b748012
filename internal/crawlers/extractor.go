package crawlers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/RecoveryAshes/sitecloner/internal/mirror"
	"github.com/RecoveryAshes/sitecloner/internal/models"
	"github.com/RecoveryAshes/sitecloner/internal/utils"
)

// MetaFinalURL 页面元数据中的最终URL键
const MetaFinalURL = "final_url"

// Extractor 页面提取器
// 职责: 调用渲染协作方加载页面,把原始引用过滤、规范化为快照
type Extractor struct {
	renderer Renderer
	siteHost string
	now      func() time.Time
}

// NewExtractor 创建页面提取器
func NewExtractor(r Renderer, siteHost string) *Extractor {
	return &Extractor{
		renderer: r,
		siteHost: strings.ToLower(siteHost),
		now:      time.Now,
	}
}

// Extract 加载一个页面并返回快照
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*models.PageSnapshot, error) {
	raw, err := e.renderer.Render(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("渲染页面失败: %w", err)
	}
	return e.Normalize(pageURL, raw), nil
}

// Normalize 把渲染结果规范化为页面快照
// 相对URL以最终URL为基准解析; 无法解析的URL和不可抓取的URL被静默丢弃
func (e *Extractor) Normalize(pageURL string, raw *models.RawPage) *models.PageSnapshot {
	finalURL := raw.FinalURL
	if finalURL == "" {
		finalURL = pageURL
	}
	base, err := url.Parse(finalURL)
	if err != nil {
		base, _ = url.Parse(pageURL)
	}

	resolve := func(ref string) (string, bool) {
		return resolveReference(base, ref)
	}

	snap := &models.PageSnapshot{
		URL:       pageURL,
		FinalURL:  finalURL,
		HTML:      raw.HTML,
		Metadata:  make(map[string]string),
		FetchedAt: e.now(),
	}

	// 资源引用
	seenAssets := make(map[string]struct{})
	addAssets := func(refs []string, kind models.AssetKind) {
		for _, ref := range refs {
			abs, ok := resolve(ref)
			if !ok {
				continue
			}
			if _, dup := seenAssets[abs]; dup {
				continue
			}
			seenAssets[abs] = struct{}{}
			snap.Assets = append(snap.Assets, models.AssetReference{URL: abs, Kind: kind})
		}
	}
	addAssets(raw.Images, models.AssetImage)
	addAssets(raw.Icons, models.AssetImage)
	addAssets(raw.Media, models.AssetMedia)
	addAssets(raw.Embeds, models.AssetEmbed)

	// 样式
	seenStyles := make(map[string]struct{})
	for _, ref := range raw.Stylesheets {
		abs, ok := resolve(ref)
		if !ok {
			continue
		}
		if _, dup := seenStyles[abs]; dup {
			continue
		}
		seenStyles[abs] = struct{}{}
		snap.Styles = append(snap.Styles, models.StyleResource{URL: abs})
	}
	for _, css := range raw.InlineCSS {
		if strings.TrimSpace(css) != "" {
			snap.Styles = append(snap.Styles, models.StyleResource{Inline: css})
		}
	}

	// 脚本
	seenScripts := make(map[string]struct{})
	for _, ref := range raw.Scripts {
		abs, ok := resolve(ref)
		if !ok {
			continue
		}
		if _, dup := seenScripts[abs]; dup {
			continue
		}
		seenScripts[abs] = struct{}{}
		snap.Scripts = append(snap.Scripts, models.ScriptResource{URL: abs})
	}
	for _, js := range raw.InlineJS {
		if strings.TrimSpace(js) != "" {
			snap.Scripts = append(snap.Scripts, models.ScriptResource{Inline: js})
		}
	}

	// 表单
	for _, form := range raw.Forms {
		f := form
		if abs, ok := resolve(form.Action); ok {
			f.Action = abs
		} else {
			f.Action = ""
		}
		if f.Method == "" {
			f.Method = "GET"
		}
		f.Method = strings.ToUpper(f.Method)
		snap.Forms = append(snap.Forms, f)
	}

	// 同源链接
	self := map[string]struct{}{
		normalizeKey(pageURL):  {},
		normalizeKey(finalURL): {},
	}
	seenLinks := make(map[string]struct{})
	for _, ref := range raw.Links {
		abs, ok := resolve(ref)
		if !ok {
			continue
		}
		if !e.sameOrigin(abs) {
			continue
		}
		key := normalizeKey(abs)
		if _, isSelf := self[key]; isSelf {
			continue
		}
		if _, dup := seenLinks[key]; dup {
			continue
		}
		seenLinks[key] = struct{}{}
		snap.Links = append(snap.Links, abs)
	}

	// 元数据
	for k, v := range raw.Meta {
		snap.Metadata[k] = strings.TrimSpace(v)
	}
	snap.Metadata[models.MetaTimestamp] = snap.FetchedAt.UTC().Format(time.RFC3339)
	snap.Metadata[MetaFinalURL] = finalURL

	utils.Debugf("页面提取完成: %s (资源=%d, 样式=%d, 脚本=%d, 链接=%d)",
		pageURL, len(snap.Assets), len(snap.Styles), len(snap.Scripts), len(snap.Links))

	return snap
}

func (e *Extractor) sameOrigin(absURL string) bool {
	u, err := url.Parse(absURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, e.siteHost)
}

// resolveReference 以base解析引用,只保留http/https绝对URL,并去掉片段
func resolveReference(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || mirror.HasNonFetchableScheme(ref) {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	abs := u
	if base != nil {
		abs = base.ResolveReference(u)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String(), true
}
