package crawlers

import (
	"regexp"
	"strings"

	"github.com/RecoveryAshes/sitecloner/internal/models"
)

var (
	cssURLPattern    = regexp.MustCompile(`(?i)url\(\s*(?:'([^']*)'|"([^"]*)"|([^)'"\s]*))\s*\)`)
	cssImportPattern = regexp.MustCompile(`(?i)@import\s+(?:'([^']+)'|"([^"]+)")`)
	cssCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// fontExtensions 字体文件扩展名
var fontExtensions = []string{".woff2", ".woff", ".ttf", ".otf", ".eot"}

// CSSReference 样式表中的引用(原始形式,未解析为绝对URL)
type CSSReference struct {
	URL  string
	Kind models.AssetKind
}

// ScanCSS 提取样式表中 url(...) 和 @import 引用
// @import 的目标作为样式表返回,其他引用按扩展名区分字体和图片
func ScanCSS(css string) []CSSReference {
	css = cssCommentRegex.ReplaceAllString(css, "")

	var refs []CSSReference
	seen := make(map[string]struct{})
	add := func(ref string, kind models.AssetKind) {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return
		}
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, CSSReference{URL: ref, Kind: kind})
	}

	for _, m := range cssImportPattern.FindAllStringSubmatch(css, -1) {
		add(firstNonEmpty(m[1:]...), models.AssetStylesheet)
	}

	for _, m := range cssURLPattern.FindAllStringSubmatchIndex(css, -1) {
		ref := ""
		for g := 1; g <= 3; g++ {
			if m[2*g] >= 0 && m[2*g+1] > m[2*g] {
				ref = css[m[2*g]:m[2*g+1]]
				break
			}
		}
		// @import url(...) 也是样式表
		prefix := strings.ToLower(strings.TrimSpace(css[max(0, m[0]-16):m[0]]))
		if strings.HasSuffix(prefix, "@import") {
			add(ref, models.AssetStylesheet)
			continue
		}
		add(ref, kindFromCSSRef(ref))
	}
	return refs
}

func kindFromCSSRef(ref string) models.AssetKind {
	lower := strings.ToLower(ref)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range fontExtensions {
		if strings.HasSuffix(lower, ext) {
			return models.AssetFont
		}
	}
	if strings.HasSuffix(lower, ".css") {
		return models.AssetStylesheet
	}
	return models.AssetImage
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
