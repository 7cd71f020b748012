package mirror

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPathMapper_Resolve(t *testing.T) {
	root := t.TempDir()
	m := NewPathMapper(root, "example.test")

	tests := []struct {
		name string
		url  string
		ext  string
		want string
	}{
		{"站点根目录", "https://example.test/", ".html", "index.html"},
		{"空路径", "https://example.test", ".html", "index.html"},
		{"同源样式表", "https://example.test/s.css", ".css", "s.css"},
		{"跨域图片", "https://cdn.test/logo.png", ".png", "assets/cdn.test/logo.png"},
		{"无扩展名页面", "https://example.test/about", ".html", "about.html"},
		{"目录形式页面", "https://example.test/about/", ".html", "about/index.html"},
		{"忽略片段", "https://example.test/about/#team", ".html", "about/index.html"},
		{"API端点", "https://example.test/api/users", ".js", "api/api_users.json"},
		{"GraphQL端点", "https://example.test/graphql", ".js", "api/graphql.json"},
		{"版本化API目录", "https://example.test/v1/items/", ".html", "v1/items.js"},
		{"带扩展名的API路径不变", "https://example.test/api/data.json", ".js", "api/data.json"},
		{"端口视为跨域", "https://example.test:8443/x.png", ".png", "assets/example.test_8443/x.png"},
		{"非法字符替换", "https://example.test/a%3Cb%3E%7C.png", ".png", "a_b__.png"},
		{"无默认扩展名", "https://example.test/LICENSE", "", "LICENSE"},
		{"无默认扩展名的目录", "https://example.test/docs/", "", "docs"},
		{"主机名大小写", "https://EXAMPLE.test/s.css", ".css", "s.css"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Resolve(tt.url, tt.ext)
			if !ok {
				t.Fatalf("Resolve(%q) 被拒绝", tt.url)
			}
			want := filepath.Join(m.Root(), filepath.FromSlash(tt.want))
			if got != want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.url, got, want)
			}
		})
	}
}

func TestPathMapper_QueryString(t *testing.T) {
	m := NewPathMapper(t.TempDir(), "example.test")

	a, _ := m.Resolve("https://example.test/app.js?v=1", ".js")
	b, _ := m.Resolve("https://example.test/app.js?v=2", ".js")
	plain, _ := m.Resolve("https://example.test/app.js", ".js")

	if a == b {
		t.Errorf("不同查询参数应映射到不同路径: %s", a)
	}
	if a == plain {
		t.Errorf("带查询参数的URL不应与无参数URL冲突: %s", a)
	}
	want := filepath.Join(m.Root(), "app_"+shortHash("v=1", 8)+".js")
	if a != want {
		t.Errorf("Resolve() = %q, want %q", a, want)
	}
}

func TestPathMapper_Rejects(t *testing.T) {
	m := NewPathMapper(t.TempDir(), "example.test")

	tests := []struct {
		name string
		url  string
	}{
		{"data URI", "data:image/png;base64,iVBORw0KGgo="},
		{"javascript伪协议", "javascript:void(0)"},
		{"大写javascript伪协议", "JavaScript:alert(1)"},
		{"空白页", "about:blank"},
		{"空字符串", ""},
		{"只有空白", "   "},
		{"单斜杠", "/"},
		{"双斜杠", "//"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, ok := m.Resolve(tt.url, ".png"); ok {
				t.Errorf("Resolve(%q) = %q, 应被拒绝", tt.url, got)
			}
		})
	}
}

func TestPathMapper_NoTraversal(t *testing.T) {
	root := t.TempDir()
	m := NewPathMapper(root, "example.test")

	urls := []string{
		"https://example.test/../../etc/passwd",
		"https://example.test/a/%2e%2e/%2e%2e/%2e%2e/secret.txt",
		"https://example.test/a/..%2f..%2f..%2fsecret",
		"https://evil.test/..%5c..%5cwindows%5csystem.ini",
		"https://../../x.png",
		"/../../../../tmp/x.css",
		"..\\..\\boot.ini",
	}

	prefix := m.Root() + string(filepath.Separator)
	for _, u := range urls {
		got, ok := m.Resolve(u, ".html")
		if !ok {
			continue
		}
		if !strings.HasPrefix(got, prefix) {
			t.Errorf("Resolve(%q) = %q 逃逸出根目录", u, got)
		}
		if strings.Contains(got, "..") && strings.Contains(got, ".."+string(filepath.Separator)) {
			t.Errorf("Resolve(%q) = %q 包含上级目录引用", u, got)
		}
	}
}

func TestPathMapper_Fallback(t *testing.T) {
	m := NewPathMapper(t.TempDir(), "example.test")

	tests := []struct {
		name string
		url  string
	}{
		{"无法解析的URL", "http://[::1"},
		{"不支持的协议", "ftp://example.test/file.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Resolve(tt.url, ".bin")
			if !ok {
				t.Fatalf("Resolve(%q) 应返回回退路径", tt.url)
			}
			want := filepath.Join(m.Root(), AssetsDir, shortHash(tt.url, 16)+".bin")
			if got != want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.url, got, want)
			}
		})
	}
}

func TestPathMapper_DirectoryCollision(t *testing.T) {
	root := t.TempDir()
	m := NewPathMapper(root, "example.test")

	if err := os.MkdirAll(filepath.Join(m.Root(), "lib.js"), 0755); err != nil {
		t.Fatal(err)
	}

	got, _ := m.Resolve("https://example.test/lib.js", ".js")
	want := filepath.Join(m.Root(), "lib.js.js")
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestPathMapper_Idempotent(t *testing.T) {
	m := NewPathMapper(t.TempDir(), "example.test")

	urls := []string{
		"https://example.test/",
		"https://example.test/a/b/c?x=1",
		"https://cdn.test/img/logo.png",
		"http://[::1",
	}
	for _, u := range urls {
		first, ok1 := m.Resolve(u, ".html")
		second, ok2 := m.Resolve(u, ".html")
		if first != second || ok1 != ok2 {
			t.Errorf("Resolve(%q) 不稳定: %q vs %q", u, first, second)
		}
	}
}

func TestPathMapper_LongSegment(t *testing.T) {
	m := NewPathMapper(t.TempDir(), "example.test")

	long := strings.Repeat("a", 400) + ".png"
	got, ok := m.Resolve("https://example.test/"+long, ".png")
	if !ok {
		t.Fatal("长路径不应被拒绝")
	}
	base := filepath.Base(got)
	if len(base) > maxSegmentLen {
		t.Errorf("文件名长度 %d 超过上限", len(base))
	}
	if filepath.Ext(base) != ".png" {
		t.Errorf("应保留扩展名: %s", base)
	}
}

func TestPathMapper_LongMultibyteSegment(t *testing.T) {
	m := NewPathMapper(t.TempDir(), "example.test")

	tests := []struct {
		name string
		seg  string
	}{
		{"中文文件名", strings.Repeat("中", 200) + ".png"},
		{"混合字节", "x" + strings.Repeat("é", 150) + ".png"},
		{"无扩展名", strings.Repeat("文", 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Resolve("https://example.test/"+url.PathEscape(tt.seg), ".png")
			if !ok {
				t.Fatal("长路径不应被拒绝")
			}
			base := filepath.Base(got)
			if !utf8.ValidString(base) {
				t.Errorf("截断后文件名不是合法UTF-8: %q", base)
			}
			if len(base) > maxSegmentLen {
				t.Errorf("文件名长度 %d 超过上限", len(base))
			}
			if filepath.Ext(base) != ".png" {
				t.Errorf("应保留扩展名: %s", base)
			}
		})
	}
}

func TestSiteDirName(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"example.com", "example.com"},
		{"Example.COM:8080", "example.com_8080"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		if got := SiteDirName(tt.host); got != tt.want {
			t.Errorf("SiteDirName(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestWithHashSuffix(t *testing.T) {
	got := WithHashSuffix("/out/a/b.css", "https://x.test/b.css")
	want := "/out/a/b_" + shortHash("https://x.test/b.css", 8) + ".css"
	if got != want {
		t.Errorf("WithHashSuffix() = %q, want %q", got, want)
	}
}
