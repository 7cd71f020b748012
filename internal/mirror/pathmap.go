package mirror

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// AssetsDir 跨域资源及无法解析URL的回退目录
	AssetsDir = "assets"

	// APIDir API风格端点的落盘目录
	APIDir = "api"

	// maxSegmentLen 单个路径段的最大长度,超出部分折叠为哈希
	maxSegmentLen = 180
)

// versionedAPIPattern 版本化API路径 (/v1/, /v2/ ...)
var versionedAPIPattern = regexp.MustCompile(`/v\d+/`)

// illegalChars 常见文件系统上的非法字符
var illegalChars = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	`"`, "_",
	"|", "_",
	"?", "_",
	"*", "_",
	`\`, "_",
)

// DefaultAPISegments 默认的API路径段
var DefaultAPISegments = []string{"api", "graphql", "rest"}

// PathMapper 把资源URL映射为输出目录下的本地文件路径
// 对同一参数的重复调用总是返回相同的路径,结果永远不会逃逸出输出根目录
type PathMapper struct {
	root        string
	siteHost    string
	apiSegments map[string]struct{}
}

// NewPathMapper 创建路径映射器
// outputRoot 为站点目录(所有结果都位于其下), siteHost 为当前站点主机名(含端口)
func NewPathMapper(outputRoot, siteHost string) *PathMapper {
	root, err := filepath.Abs(outputRoot)
	if err != nil {
		root = filepath.Clean(outputRoot)
	}

	m := &PathMapper{
		root:        root,
		siteHost:    strings.ToLower(siteHost),
		apiSegments: make(map[string]struct{}),
	}
	for _, seg := range DefaultAPISegments {
		m.apiSegments[seg] = struct{}{}
	}
	return m
}

// Root 返回输出根目录(绝对路径)
func (m *PathMapper) Root() string {
	return m.root
}

// Resolve 计算资源URL的本地路径
// 第二个返回值为false表示该URL不可抓取,不应生成任何路径;
// 其他任何输入(包括无法解析的URL)都会得到一个位于根目录下的路径
func (m *PathMapper) Resolve(rawURL, defaultExt string) (string, bool) {
	if IsNonFetchable(rawURL) {
		return "", false
	}
	trimmed := strings.TrimSpace(rawURL)

	u, err := url.Parse(trimmed)
	if err != nil || (u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https") {
		return m.fallbackPath(trimmed, defaultExt), true
	}

	prefix := ""
	if u.Host != "" && !strings.EqualFold(u.Host, m.siteHost) {
		prefix = path.Join(AssetsDir, SiteDirName(u.Host))
	}

	rel := m.mapPath(u.Path, defaultExt)
	if u.RawQuery != "" {
		rel = withSuffix(rel, "_"+shortHash(u.RawQuery, 8))
	}

	segments := sanitizeSegments(rel)
	if len(segments) == 0 {
		segments = []string{"index" + defaultExt}
	}

	parts := make([]string, 0, len(segments)+2)
	parts = append(parts, m.root)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, segments...)
	full := filepath.Join(parts...)

	if !m.contains(full) {
		return m.fallbackPath(trimmed, defaultExt), true
	}

	// 文件与已存在的目录同名时追加扩展名
	if info, err := os.Stat(full); err == nil && info.IsDir() {
		ext := defaultExt
		if ext == "" {
			ext = ".file"
		}
		full += ext
	}

	return full, true
}

// mapPath 按扩展名/API/目录规则补全URL路径
func (m *PathMapper) mapPath(p, defaultExt string) string {
	if p == "" {
		p = "/"
	}

	trailing := strings.HasSuffix(p, "/")
	hasExt := !trailing && path.Ext(p) != ""
	if hasExt || defaultExt == "" {
		return strings.TrimSuffix(p, "/")
	}

	if m.isAPIPath(p) {
		name := strings.ReplaceAll(strings.Trim(p, "/"), "/", "_")
		return "/" + APIDir + "/" + name + ".json"
	}

	if trailing {
		if versionedAPIPattern.MatchString(p) {
			return strings.TrimRight(p, "/") + ".js"
		}
		return p + "index" + defaultExt
	}

	return p + defaultExt
}

func (m *PathMapper) isAPIPath(p string) bool {
	for _, seg := range strings.Split(strings.ToLower(p), "/") {
		if _, ok := m.apiSegments[seg]; ok {
			return true
		}
	}
	return false
}

func (m *PathMapper) contains(full string) bool {
	rel, err := filepath.Rel(m.root, full)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// fallbackPath 无法正常映射时使用的哈希路径
func (m *PathMapper) fallbackPath(rawURL, defaultExt string) string {
	return filepath.Join(m.root, AssetsDir, shortHash(rawURL, 16)+defaultExt)
}

// sanitizeSegments 拆分路径并清理每一段
// 空段、"." 和 ".." 直接丢弃,因此结果不可能包含上级目录引用
func sanitizeSegments(p string) []string {
	raw := strings.Split(p, "/")
	out := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		seg = illegalChars.Replace(seg)
		seg = strings.Map(func(r rune) rune {
			if r < 0x20 || r == 0x7f {
				return '_'
			}
			return r
		}, seg)
		seg = strings.TrimRight(seg, " .")
		if seg == "" || seg == ".." {
			seg = "_"
		}
		if len(seg) > maxSegmentLen {
			ext := path.Ext(seg)
			if len(ext) > 16 {
				ext = ""
			}
			// 截断点回退到字符边界,避免切开多字节字符
			cut := maxSegmentLen - len(ext) - 9
			for cut > 0 && !utf8.RuneStart(seg[cut]) {
				cut--
			}
			seg = seg[:cut] + "_" + shortHash(seg, 8) + ext
		}
		out = append(out, seg)
	}
	return out
}

// SiteDirName 主机名转换为可用作目录名的形式 (example.com:8080 -> example.com_8080)
func SiteDirName(host string) string {
	name := illegalChars.Replace(strings.ToLower(host))
	name = strings.Trim(name, ". ")
	if name == "" {
		return "unknown"
	}
	return name
}

// WithHashSuffix 在扩展名之前插入URL的短哈希,用于消除路径冲突
func WithHashSuffix(localPath, rawURL string) string {
	return withSuffix(localPath, "_"+shortHash(rawURL, 8))
}

func withSuffix(p, suffix string) string {
	ext := path.Ext(p)
	if strings.Contains(ext, "/") || strings.Contains(ext, string(filepath.Separator)) {
		ext = ""
	}
	return strings.TrimSuffix(p, ext) + suffix + ext
}

func shortHash(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)[:n]
}
