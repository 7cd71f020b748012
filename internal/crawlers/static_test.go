package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RecoveryAshes/sitecloner/internal/mirror"
	"github.com/RecoveryAshes/sitecloner/internal/models"
	"github.com/andybalholm/brotli"
)

const staticTestPage = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
<title> 测试页面 </title>
<meta name="description" content="用于测试">
<link rel="stylesheet" href="/css/site.css">
<link rel="icon" href="/favicon.ico">
<style>.hero{background:url(/img/hero.jpg)}</style>
<script src="/js/app.js"></script>
<script>console.log("inline")</script>
<script type="application/ld+json">{"@type":"Thing"}</script>
</head>
<body>
<img src="/img/a.png" srcset="/img/a-2x.png 2x, /img/a-3x.png 3x">
<video src="/media/v.mp4" poster="/img/poster.jpg"></video>
<embed src="/files/doc.pdf">
<a href="/about">关于</a>
<a href="https://other.test/">外链</a>
<form action="/search" method="post"><input name="q" type="text"><select name="s"></select></form>
</body>
</html>`

func TestStaticRenderer_Render(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Clone-Test") != "yes" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(staticTestPage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := NewStaticRenderer(StaticOptions{
		Timeout: 5 * time.Second,
		Headers: staticHeaders{"X-Clone-Test": {"yes"}},
	})
	defer r.Close()

	raw, err := r.Render(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if raw.FinalURL != srv.URL+"/" {
		t.Errorf("FinalURL = %s", raw.FinalURL)
	}
	if raw.HTML != staticTestPage {
		t.Error("HTML 应为服务端返回的原始内容")
	}

	checks := []struct {
		name string
		got  []string
		want []string
	}{
		{"图片", raw.Images, []string{srv.URL + "/img/a.png", srv.URL + "/img/a-2x.png", srv.URL + "/img/a-3x.png", srv.URL + "/img/poster.jpg"}},
		{"样式表", raw.Stylesheets, []string{srv.URL + "/css/site.css"}},
		{"图标", raw.Icons, []string{srv.URL + "/favicon.ico"}},
		{"脚本", raw.Scripts, []string{srv.URL + "/js/app.js"}},
		{"媒体", raw.Media, []string{srv.URL + "/media/v.mp4"}},
		{"嵌入", raw.Embeds, []string{srv.URL + "/files/doc.pdf"}},
		{"链接", raw.Links, []string{srv.URL + "/about", "https://other.test/"}},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if !sameSet(c.got, c.want) {
				t.Errorf("got %v, want %v", c.got, c.want)
			}
		})
	}

	if len(raw.InlineCSS) != 1 {
		t.Errorf("InlineCSS = %v", raw.InlineCSS)
	}
	if len(raw.InlineJS) != 1 || raw.InlineJS[0] != `console.log("inline")` {
		t.Errorf("InlineJS = %v", raw.InlineJS)
	}
	if len(raw.Forms) != 1 || raw.Forms[0].Method != "POST" || len(raw.Forms[0].Fields) != 2 {
		t.Fatalf("Forms = %+v", raw.Forms)
	}
	if raw.Forms[0].Fields[1].Type != "select" {
		t.Errorf("select字段类型 = %q", raw.Forms[0].Fields[1].Type)
	}
	if raw.Meta[models.MetaTitle] != "测试页面" || raw.Meta[models.MetaDescription] != "用于测试" || raw.Meta[models.MetaLanguage] != "zh-CN" {
		t.Errorf("Meta = %v", raw.Meta)
	}
}

func TestStaticRenderer_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := NewStaticRenderer(StaticOptions{Timeout: 5 * time.Second})
	_, err := r.Render(context.Background(), srv.URL+"/missing")
	if err == nil {
		t.Fatal("404页面应返回错误")
	}
	var fe *mirror.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Errorf("err = %v, 应为 HTTP 404", err)
	}
}

func TestStaticRenderer_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewStaticRenderer(StaticOptions{})
	if _, err := r.Render(ctx, "http://127.0.0.1:1/"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDecompressResponse(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	bw.Write([]byte("<html>br</html>"))
	bw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
		want     string
	}{
		{"brotli", "br", buf.Bytes(), "<html>br</html>"},
		{"zlib格式的deflate", "deflate", zlibBytes(t, "<html>zlib</html>"), "<html>zlib</html>"},
		{"原始deflate流", "deflate", flateBytes(t, "<html>raw</html>"), "<html>raw</html>"},
		{"已解压的gzip", "gzip", []byte("<html>plain</html>"), "<html>plain</html>"},
		{"无编码", "", []byte("x"), "x"},
		{"未知编码原样返回", "zstd", []byte("y"), "y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decompressResponse(tt.encoding, tt.body)
			if err != nil {
				t.Fatalf("decompressResponse: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func zlibBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	return buf.Bytes()
}

func flateBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(s))
	fw.Close()
	return buf.Bytes()
}

func sameSet(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[string]int)
	for _, g := range got {
		seen[g]++
	}
	for _, w := range want {
		if seen[w] == 0 {
			return false
		}
		seen[w]--
	}
	return true
}
