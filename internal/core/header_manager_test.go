package core

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// newTestHeaderManager 头部配置文件放在临时目录,避免在工作目录生成模板
func newTestHeaderManager(t *testing.T, fileContent string, cli []string) *HeaderManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "headers.yaml")
	if fileContent != "" {
		if err := os.WriteFile(path, []byte(fileContent), 0644); err != nil {
			t.Fatal(err)
		}
	}
	hm, err := NewHeaderManager(path, cli)
	if err != nil {
		t.Fatalf("NewHeaderManager: %v", err)
	}
	return hm
}

func TestHeaderManager_Priority(t *testing.T) {
	file := "headers:\n  User-Agent: \"FileBot/1.0\"\n  Referer: \"https://file.test/\"\n"

	tests := []struct {
		name   string
		cli    []string
		header string
		want   string
	}{
		{"默认头部", nil, "Accept-Encoding", "gzip, deflate, br"},
		{"配置文件覆盖默认", nil, "User-Agent", "FileBot/1.0"},
		{"配置文件新增", nil, "Referer", "https://file.test/"},
		{"命令行覆盖配置文件", []string{"User-Agent: CliBot/2.0"}, "User-Agent", "CliBot/2.0"},
		{"命令行新增", []string{"Cookie: session=abc"}, "Cookie", "session=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm := newTestHeaderManager(t, file, tt.cli)
			h, err := hm.GetHeaders()
			if err != nil {
				t.Fatalf("GetHeaders: %v", err)
			}
			if got := h.Get(tt.header); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestHeaderManager_Errors(t *testing.T) {
	t.Run("命令行格式错误", func(t *testing.T) {
		if _, err := NewHeaderManager("", []string{"InvalidFormat"}); err == nil {
			t.Error("缺少冒号应返回错误")
		}
	})

	t.Run("禁止头部", func(t *testing.T) {
		hm := newTestHeaderManager(t, "", []string{"Host: example.com"})
		if _, err := hm.GetHeaders(); err == nil {
			t.Error("Host头部应验证失败")
		}
		// 错误被缓存
		if _, err := hm.GetHeaders(); err == nil {
			t.Error("再次调用应返回同样的错误")
		}
	})

	t.Run("配置文件中的非法值", func(t *testing.T) {
		hm := newTestHeaderManager(t, "headers:\n  X-Bad: \"line\\nbreak\"\n", nil)
		if _, err := hm.GetHeaders(); err == nil {
			t.Error("包含换行的值应验证失败")
		}
	})
}

func TestHeaderManager_ReturnsCopies(t *testing.T) {
	hm := newTestHeaderManager(t, "", nil)
	h1, err := hm.GetHeaders()
	if err != nil {
		t.Fatal(err)
	}
	h1.Set("User-Agent", "mutated")

	h2, _ := hm.GetHeaders()
	if h2.Get("User-Agent") != DefaultUserAgent {
		t.Errorf("修改返回值不应影响缓存, User-Agent = %q", h2.Get("User-Agent"))
	}
}

func TestHeaderManager_Concurrent(t *testing.T) {
	hm := newTestHeaderManager(t, "", []string{"X-Mirror: 1"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := hm.GetHeaders()
			if err != nil || h.Get("X-Mirror") != "1" {
				t.Errorf("GetHeaders = %v, %v", h, err)
			}
		}()
	}
	wg.Wait()
}

func TestHeaderManager_GetSafeHeaders(t *testing.T) {
	hm := newTestHeaderManager(t, "", []string{
		"Authorization: Bearer secret-token-12345",
		"X-API-Key: api-key-67890",
		"Cookie: session=abcdefghijkl",
	})

	safe := hm.GetSafeHeaders()
	tests := []struct {
		header string
		want   string
	}{
		{"Authorization", "Bearer ***"},
		{"X-Api-Key", "api-***7890"},
		{"Cookie", "sess***ijkl"},
		{"User-Agent", DefaultUserAgent},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if safe[tt.header] != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, safe[tt.header], tt.want)
			}
		})
	}
}

func TestDefaultHeaderProvider(t *testing.T) {
	p := DefaultHeaderProvider()
	h, err := p.GetHeaders()
	if err != nil {
		t.Fatal(err)
	}
	h.Del("User-Agent")

	h2, _ := p.GetHeaders()
	if h2.Get("User-Agent") == "" {
		t.Error("返回值应为副本")
	}
}
