package crawlers

import (
	"net/url"
	"strings"
	"sync"

	"github.com/RecoveryAshes/sitecloner/internal/mirror"
	"github.com/RecoveryAshes/sitecloner/internal/models"
)

// RunState 单次运行的共享状态
// 职责: 已访问集合、已分发/已下载资源集合、路径声明、错误列表和统计
// 每次运行创建一个新的实例,运行结束即丢弃,不跨运行持久化
type RunState struct {
	mu sync.Mutex

	// 已调度提取的页面URL (调度时加入,而非完成时)
	visited      map[string]struct{}
	visitedOrder []string

	// 重定向后的最终URL,只用于去重,不计入已访问列表
	aliases map[string]struct{}

	// 已分发给下载器的资源URL
	dispatched map[string]struct{}

	// 已成功落盘的资源URL (只追加)
	downloaded      map[string]struct{}
	downloadedOrder []string

	// URL -> 本地路径, 本地路径 -> URL
	paths  map[string]string
	claims map[string]string
	// 本地路径 -> 是否由页面声明; 页面和资源不共用同一个文件
	pageClaims map[string]bool

	errors []models.CloneError
	stats  models.CloneStats
}

// NewRunState 创建运行状态
func NewRunState() *RunState {
	return &RunState{
		visited:    make(map[string]struct{}),
		aliases:    make(map[string]struct{}),
		dispatched: make(map[string]struct{}),
		downloaded: make(map[string]struct{}),
		paths:      make(map[string]string),
		claims:     make(map[string]string),
		pageClaims: make(map[string]bool),
	}
}

// normalizeKey 去掉片段部分,使 /a#x 和 /a 视为同一URL
func normalizeKey(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		u.Host = strings.ToLower(u.Host)
		u.Scheme = strings.ToLower(u.Scheme)
		if u.Path == "" {
			u.Path = "/"
		}
		return u.String()
	}
	return s
}

// TryVisit 原子地检查并加入已访问集合
// 返回false表示该URL已被调度过,或已作为资源分发
func (s *RunState) TryVisit(rawURL string) bool {
	key := normalizeKey(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.visited[key]; ok {
		return false
	}
	if _, ok := s.aliases[key]; ok {
		return false
	}
	if _, ok := s.dispatched[key]; ok {
		return false
	}
	s.visited[key] = struct{}{}
	s.visitedOrder = append(s.visitedOrder, rawURL)
	s.stats.VisitedPages++
	return true
}

// ClaimAlias 登记重定向后的最终URL
// 返回false表示最终URL已被访问过(重定向到已访问页面)
func (s *RunState) ClaimAlias(finalURL string) bool {
	key := normalizeKey(finalURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.visited[key]; ok {
		return false
	}
	if _, ok := s.aliases[key]; ok {
		return false
	}
	if _, ok := s.dispatched[key]; ok {
		return false
	}
	s.aliases[key] = struct{}{}
	return true
}

// IsDispatched 检查URL是否已作为资源分发
func (s *RunState) IsDispatched(rawURL string) bool {
	key := normalizeKey(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.dispatched[key]
	return ok
}

// IsVisited 检查URL是否已被调度
func (s *RunState) IsVisited(rawURL string) bool {
	key := normalizeKey(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.visited[key]
	if !ok {
		_, ok = s.aliases[key]
	}
	return ok
}

// TryDispatch 原子地登记资源分发,同一资源在一次运行中只分发一次
// 已作为页面调度的URL不再作为资源下载
func (s *RunState) TryDispatch(rawURL string) bool {
	key := normalizeKey(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dispatched[key]; ok {
		return false
	}
	if _, ok := s.visited[key]; ok {
		return false
	}
	if _, ok := s.aliases[key]; ok {
		return false
	}
	s.dispatched[key] = struct{}{}
	return true
}

// ResolvePath 计算并声明资源的本地路径
// 同一URL总是得到同一路径; 两个不同URL映射到同一文件时,后者追加URL哈希后缀
func (s *RunState) ResolvePath(m *mirror.PathMapper, rawURL, defaultExt string) (string, bool) {
	return s.claimPath(m, rawURL, defaultExt, false)
}

// ResolvePagePath 声明页面HTML的本地路径
// 该路径已被资源声明时返回false,页面不会覆盖已下载的资源
func (s *RunState) ResolvePagePath(m *mirror.PathMapper, pageURL string) (string, bool) {
	return s.claimPath(m, pageURL, models.AssetPage.DefaultExtension(), true)
}

func (s *RunState) claimPath(m *mirror.PathMapper, rawURL, defaultExt string, page bool) (string, bool) {
	key := normalizeKey(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.paths[key]; ok {
		if s.pageClaims[p] != page {
			return "", false
		}
		return p, true
	}

	p, ok := m.Resolve(rawURL, defaultExt)
	if !ok {
		return "", false
	}

	if owner, taken := s.claims[p]; taken && owner != key {
		p = mirror.WithHashSuffix(p, key)
	}
	s.claims[p] = key
	s.paths[key] = p
	s.pageClaims[p] = page
	return p, true
}

// RecordOutcome 记录一次下载结果
func (s *RunState) RecordOutcome(o models.DownloadOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch o.Status {
	case models.OutcomeSuccess:
		key := normalizeKey(o.URL)
		if _, ok := s.downloaded[key]; !ok {
			s.downloaded[key] = struct{}{}
			s.downloadedOrder = append(s.downloadedOrder, o.URL)
			s.stats.DownloadedAssets++
		}
		if o.Skipped {
			s.stats.SkippedExisting++
		}
		s.stats.TotalBytes += o.Bytes
	case models.OutcomeIgnorableFailure:
		s.stats.IgnoredFailures++
	case models.OutcomeReportableFailure:
		msg := ""
		if o.Err != nil {
			msg = o.Err.Error()
		}
		s.errors = append(s.errors, models.CloneError{
			URL:     o.URL,
			Stage:   models.StageAsset,
			Kind:    o.Kind,
			Message: msg,
		})
		s.stats.Errors++
	}
}

// RecordError 记录一个可报告错误
func (s *RunState) RecordError(e models.CloneError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors = append(s.errors, e)
	s.stats.Errors++
}

// AddPageBytes 页面HTML写入后累计字节数
func (s *RunState) AddPageBytes(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalBytes += n
}

// VisitedURLs 已访问URL列表(按调度顺序)
func (s *RunState) VisitedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.visitedOrder))
	copy(out, s.visitedOrder)
	return out
}

// DownloadedURLs 已下载资源URL列表(按完成顺序)
func (s *RunState) DownloadedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.downloadedOrder))
	copy(out, s.downloadedOrder)
	return out
}

// Errors 错误列表副本
func (s *RunState) Errors() []models.CloneError {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.CloneError, len(s.errors))
	copy(out, s.errors)
	return out
}

// Stats 统计快照
func (s *RunState) Stats() models.CloneStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

// Progress 生成进度信号
func (s *RunState) Progress(pageURL string, depth int) models.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.Progress{
		URL:              pageURL,
		Depth:            depth,
		VisitedPages:     s.stats.VisitedPages,
		DownloadedAssets: s.stats.DownloadedAssets,
		Errors:           s.stats.Errors,
	}
}
