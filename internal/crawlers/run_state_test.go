package crawlers

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/RecoveryAshes/sitecloner/internal/mirror"
	"github.com/RecoveryAshes/sitecloner/internal/models"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"去掉片段", "https://example.test/a#x", "https://example.test/a"},
		{"空路径补斜杠", "https://example.test", "https://example.test/"},
		{"主机名小写", "https://EXAMPLE.test/A", "https://example.test/A"},
		{"保留查询参数", "https://example.test/a?b=1#c", "https://example.test/a?b=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeKey(tt.in); got != tt.want {
				t.Errorf("normalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRunState_TryVisitConcurrent(t *testing.T) {
	s := NewRunState()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// 片段不同但指向同一页面
			if s.TryVisit(fmt.Sprintf("https://example.test/page#%d", i)) {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("同一URL应只被调度一次, 实际 %d 次", wins)
	}
	if got := s.Stats().VisitedPages; got != 1 {
		t.Errorf("VisitedPages = %d, want 1", got)
	}
	if got := len(s.VisitedURLs()); got != 1 {
		t.Errorf("VisitedURLs 长度 = %d, want 1", got)
	}
}

func TestRunState_ClaimAlias(t *testing.T) {
	s := NewRunState()
	s.TryVisit("https://example.test/")

	if s.ClaimAlias("https://example.test/") {
		t.Error("重定向到已访问页面时应返回false")
	}
	if !s.ClaimAlias("https://example.test/home") {
		t.Error("新的最终URL应登记成功")
	}
	if !s.IsVisited("https://example.test/home") {
		t.Error("登记的别名应视为已访问")
	}
	if s.TryVisit("https://example.test/home") {
		t.Error("别名不应再被调度")
	}
	if got := s.Stats().VisitedPages; got != 1 {
		t.Errorf("别名不计入已访问页面数, VisitedPages = %d", got)
	}
}

func TestRunState_TryDispatch(t *testing.T) {
	s := NewRunState()

	if !s.TryDispatch("https://cdn.test/a.png") {
		t.Fatal("首次分发应成功")
	}
	if s.TryDispatch("https://cdn.test/a.png#frag") {
		t.Error("同一资源不应重复分发")
	}
}

func TestRunState_PageAssetExclusive(t *testing.T) {
	s := NewRunState()

	var pages, assets int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := fmt.Sprintf("https://example.test/photo.jpg#%d", i)
			if i%2 == 0 {
				if s.TryVisit(u) {
					atomic.AddInt32(&pages, 1)
				}
				return
			}
			if s.TryDispatch(u) {
				atomic.AddInt32(&assets, 1)
			}
		}(i)
	}
	wg.Wait()

	if pages+assets != 1 {
		t.Errorf("同一URL只能作为页面或资源之一, pages=%d assets=%d", pages, assets)
	}

	s.TryDispatch("https://example.test/file.pdf")
	if s.ClaimAlias("https://example.test/file.pdf") {
		t.Error("已分发的资源不应登记为重定向别名")
	}
	if !s.IsDispatched("https://example.test/file.pdf#p2") {
		t.Error("IsDispatched 应忽略片段")
	}
}

func TestRunState_ResolvePagePath(t *testing.T) {
	m := mirror.NewPathMapper(t.TempDir(), "example.test")
	s := NewRunState()

	asset, ok := s.ResolvePath(m, "https://example.test/dl", ".bin")
	if !ok {
		t.Fatal("ResolvePath 被拒绝")
	}
	if p, ok := s.ResolvePagePath(m, "https://example.test/dl"); ok {
		t.Errorf("资源已声明的URL不应再得到页面路径: %s", p)
	}

	page, ok := s.ResolvePagePath(m, "https://example.test/about")
	if !ok {
		t.Fatal("ResolvePagePath 被拒绝")
	}
	if again, _ := s.ResolvePagePath(m, "https://example.test/about"); again != page {
		t.Errorf("同一页面应得到同一路径: %s != %s", again, page)
	}
	if p, ok := s.ResolvePath(m, "https://example.test/about", ".html"); ok {
		t.Errorf("页面已声明的URL不应再作为资源路径: %s", p)
	}

	// 不同URL映射到同一文件时,无论类型都追加哈希后缀
	clash, _ := s.ResolvePath(m, "https://example.test/about.html", ".html")
	if clash == page || clash == asset {
		t.Errorf("资源不应覆盖页面文件: %s", clash)
	}
}

func TestRunState_ResolvePathCollision(t *testing.T) {
	m := mirror.NewPathMapper(t.TempDir(), "example.test")
	s := NewRunState()

	// 主机名大小写不同被视为同一URL
	a, ok := s.ResolvePath(m, "https://example.test/Logo.png", ".png")
	if !ok {
		t.Fatal("ResolvePath 被拒绝")
	}
	again, _ := s.ResolvePath(m, "https://EXAMPLE.test/Logo.png", ".png")
	if a != again {
		t.Errorf("同一URL应得到同一路径: %s != %s", a, again)
	}

	// 片段不同的URL映射到相同文件,但规范化后是同一个URL
	frag, _ := s.ResolvePath(m, "https://example.test/Logo.png#x", ".png")
	if frag != a {
		t.Errorf("片段不应影响路径: %s != %s", frag, a)
	}

	// 无扩展名URL和显式 .html 的URL映射到同一文件
	p1, _ := s.ResolvePath(m, "https://example.test/about", ".html")
	p2, _ := s.ResolvePath(m, "https://example.test/about.html", ".html")
	if p1 == p2 {
		t.Errorf("不同URL不应共享同一路径: %s", p1)
	}
	if p2 != mirror.WithHashSuffix(p1, normalizeKey("https://example.test/about.html")) {
		t.Errorf("冲突路径应追加URL哈希后缀, got %s", p2)
	}

	if _, ok := s.ResolvePath(m, "data:image/png;base64,AAAA", ".png"); ok {
		t.Error("不可抓取URL不应得到路径")
	}
}

func TestRunState_RecordOutcome(t *testing.T) {
	s := NewRunState()

	s.RecordOutcome(models.DownloadOutcome{URL: "https://example.test/a.css", Status: models.OutcomeSuccess, Bytes: 10})
	s.RecordOutcome(models.DownloadOutcome{URL: "https://example.test/a.css", Status: models.OutcomeSuccess, Skipped: true})
	s.RecordOutcome(models.DownloadOutcome{URL: "https://tracker.test/p.gif", Status: models.OutcomeIgnorableFailure})
	s.RecordOutcome(models.DownloadOutcome{
		URL:    "https://example.test/missing.png",
		Status: models.OutcomeReportableFailure,
		Kind:   string(mirror.KindHTTPStatus),
		Err:    errors.New("HTTP 404"),
	})

	stats := s.Stats()
	if stats.DownloadedAssets != 1 {
		t.Errorf("DownloadedAssets = %d, want 1", stats.DownloadedAssets)
	}
	if stats.SkippedExisting != 1 {
		t.Errorf("SkippedExisting = %d, want 1", stats.SkippedExisting)
	}
	if stats.IgnoredFailures != 1 {
		t.Errorf("IgnoredFailures = %d, want 1", stats.IgnoredFailures)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.TotalBytes != 10 {
		t.Errorf("TotalBytes = %d, want 10", stats.TotalBytes)
	}

	errs := s.Errors()
	if len(errs) != 1 || errs[0].Stage != models.StageAsset || errs[0].Message != "HTTP 404" {
		t.Errorf("错误记录不符合预期: %+v", errs)
	}
	if got := s.DownloadedURLs(); len(got) != 1 || got[0] != "https://example.test/a.css" {
		t.Errorf("DownloadedURLs = %v", got)
	}
}
