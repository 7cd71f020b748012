package crawlers

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/sitecloner/internal/mirror"
	"github.com/RecoveryAshes/sitecloner/internal/models"
	"github.com/RecoveryAshes/sitecloner/internal/utils"
	"golang.org/x/sync/errgroup"
)

// PageExtractor 页面提取接口 (*Extractor 实现)
type PageExtractor interface {
	Extract(ctx context.Context, pageURL string) (*models.PageSnapshot, error)
}

// AssetDownloader 资源下载接口 (*AssetFetcher 实现)
type AssetDownloader interface {
	Fetch(ctx context.Context, rawURL, localPath string, timeout time.Duration) models.DownloadOutcome
}

// ProgressFunc 页面完成后的进度回调
type ProgressFunc func(models.Progress)

// FrontierConfig 递归控制参数
type FrontierConfig struct {
	MaxDepth        int           // 最大链接跟随深度
	Delay           time.Duration // 页面提取之间的冷却时间
	PageWorkers     int           // 页面并发数
	AssetWorkers    int           // 单页资源下载并发数
	AssetTimeout    time.Duration // 单个资源下载超时
	FollowCSSAssets bool          // 下载样式表中引用的字体/图片
}

// FrontierDeps 递归控制器依赖
type FrontierDeps struct {
	Extractor PageExtractor
	Fetcher   AssetDownloader
	Mapper    *mirror.PathMapper
	State     *RunState
	Robots    *RobotsGuard // 可选
	Progress  ProgressFunc // 可选
}

// Frontier 爬取边界/递归控制器
// 按层(广度优先)消费待提取页面; 每个URL在一次运行中最多被提取一次
type Frontier struct {
	cfg  FrontierConfig
	deps FrontierDeps

	// 页面间隔调度: 上一次页面开始或结束的时间
	delayMu  sync.Mutex
	lastMark time.Time
}

// NewFrontier 创建递归控制器
func NewFrontier(cfg FrontierConfig, deps FrontierDeps) *Frontier {
	if cfg.PageWorkers < 1 {
		cfg.PageWorkers = 1
	}
	if cfg.AssetWorkers < 1 {
		cfg.AssetWorkers = 1
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	if deps.State == nil {
		deps.State = NewRunState()
	}
	return &Frontier{cfg: cfg, deps: deps}
}

// State 返回运行状态
func (f *Frontier) State() *RunState {
	return f.deps.State
}

// Run 从入口URL开始递归提取
// 单页失败不会中断运行; 只有ctx被取消时返回错误
func (f *Frontier) Run(ctx context.Context, seed string) error {
	level := []models.CrawlTarget{{URL: seed, Depth: 0}}

	for len(level) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		utils.Debugf("开始处理深度 %d, 待提取页面数: %d", level[0].Depth, len(level))

		var (
			next   []models.CrawlTarget
			nextMu sync.Mutex
			g      errgroup.Group
		)
		g.SetLimit(f.cfg.PageWorkers)

		// 整层先加入已访问集合再启动提取,同层页面引用的资源不会抢占页面URL
		claimed := make([]models.CrawlTarget, 0, len(level))
		for _, target := range level {
			if f.deps.State.TryVisit(target.URL) {
				claimed = append(claimed, target)
			}
		}

		for _, target := range claimed {
			if ctx.Err() != nil {
				break
			}

			target := target
			g.Go(func() error {
				if err := f.waitDelay(ctx); err != nil {
					return nil
				}
				discovered := f.processPage(ctx, target)
				f.markDelay()
				if len(discovered) > 0 {
					nextMu.Lock()
					next = append(next, discovered...)
					nextMu.Unlock()
				}
				return nil
			})
		}
		g.Wait()

		if err := ctx.Err(); err != nil {
			return err
		}
		level = next
	}
	return nil
}

// waitDelay 两次页面提取之间插入冷却时间
func (f *Frontier) waitDelay(ctx context.Context) error {
	f.delayMu.Lock()
	defer f.delayMu.Unlock()

	if f.cfg.Delay > 0 && !f.lastMark.IsZero() {
		wait := time.Until(f.lastMark.Add(f.cfg.Delay))
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	f.lastMark = time.Now()
	return nil
}

func (f *Frontier) markDelay() {
	f.delayMu.Lock()
	f.lastMark = time.Now()
	f.delayMu.Unlock()
}

// processPage 提取、落盘并扩展一个页面,返回下一层的目标
func (f *Frontier) processPage(ctx context.Context, target models.CrawlTarget) []models.CrawlTarget {
	state := f.deps.State
	defer f.reportProgress(target)

	utils.Infof("🌐 提取页面: %s (深度: %d)", target.URL, target.Depth)

	snap, err := f.deps.Extractor.Extract(ctx, target.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		utils.Warnf("页面提取失败 [%s]: %v", target.URL, err)
		state.RecordError(models.CloneError{
			URL:     target.URL,
			Stage:   models.StagePage,
			Kind:    string(pageErrorKind(err)),
			Message: err.Error(),
		})
		return nil
	}

	// 重定向到已访问页面时只写入原URL的路径,不再下载资源和扩展链接
	redirected := snap.FinalURL != "" && normalizeKey(snap.FinalURL) != normalizeKey(target.URL)
	if redirected && !state.ClaimAlias(snap.FinalURL) {
		utils.Debugf("页面重定向到已访问URL: %s -> %s", target.URL, snap.FinalURL)
		f.writePage(target.URL, snap)
		return nil
	}

	f.writePage(target.URL, snap)
	if redirected {
		// 最终URL的映射路径也写入,指向它的本地链接同样可用
		f.writePage(snap.FinalURL, snap)
	}
	f.materialize(ctx, f.collectJobs(snap))

	if target.Depth >= f.cfg.MaxDepth {
		return nil
	}

	var discovered []models.CrawlTarget
	for _, link := range snap.Links {
		// 指向文件的链接已作为资源下载
		if _, isAsset := linkedAssetKind(link); isAsset {
			continue
		}
		if state.IsVisited(link) || state.IsDispatched(link) {
			continue
		}
		if f.deps.Robots != nil && !f.deps.Robots.Allowed(ctx, link) {
			utils.Debugf("robots.txt 禁止抓取: %s", link)
			continue
		}
		discovered = append(discovered, models.CrawlTarget{
			URL:       link,
			Depth:     target.Depth + 1,
			SourceURL: target.URL,
		})
	}
	if len(discovered) > 0 {
		utils.Infof("从页面发现了 %d 个同源链接: %s", len(discovered), target.URL)
	}
	return discovered
}

// writePage 把页面HTML写入其映射路径
func (f *Frontier) writePage(pageURL string, snap *models.PageSnapshot) {
	state := f.deps.State

	path, ok := state.ResolvePagePath(f.deps.Mapper, pageURL)
	if !ok {
		utils.Debugf("页面路径已被资源占用,跳过写入: %s", pageURL)
		return
	}

	n, err := writeFileAtomic(path, strings.NewReader(snap.HTML), 0)
	if err != nil {
		utils.Warnf("写入页面失败 [%s]: %v", pageURL, err)
		state.RecordError(models.CloneError{
			URL:     pageURL,
			Stage:   models.StageWrite,
			Kind:    string(mirror.KindIO),
			Message: err.Error(),
		})
		return
	}
	state.AddPageBytes(n)
	utils.Debugf("页面已保存: %s -> %s", pageURL, path)
}

// assetJob 一个待下载资源
type assetJob struct {
	url  string
	kind models.AssetKind
}

// collectJobs 汇总页面的所有资源,同一资源在一次运行中只分发一次
func (f *Frontier) collectJobs(snap *models.PageSnapshot) []assetJob {
	var jobs []assetJob
	add := func(rawURL string, kind models.AssetKind) {
		if mirror.IsNonFetchable(rawURL) {
			return
		}
		if !f.deps.State.TryDispatch(rawURL) {
			return
		}
		jobs = append(jobs, assetJob{url: rawURL, kind: kind})
	}

	for _, a := range snap.Assets {
		add(a.URL, a.Kind)
	}
	for _, s := range snap.Styles {
		if s.IsInline() {
			if f.cfg.FollowCSSAssets {
				for _, ref := range f.cssReferences(snap.FinalURL, s.Inline) {
					add(ref.URL, ref.Kind)
				}
			}
			continue
		}
		add(s.URL, models.AssetStylesheet)
	}
	for _, s := range snap.Scripts {
		if !s.IsInline() {
			add(s.URL, models.AssetScript)
		}
	}
	for _, link := range snap.Links {
		if kind, ok := linkedAssetKind(link); ok {
			add(link, kind)
		}
	}
	return jobs
}

// linkedFileKinds 链接目标按扩展名识别为文件,而不是页面
var linkedFileKinds = map[string]models.AssetKind{
	".jpg": models.AssetImage, ".jpeg": models.AssetImage, ".png": models.AssetImage,
	".gif": models.AssetImage, ".webp": models.AssetImage, ".svg": models.AssetImage,
	".ico": models.AssetImage, ".bmp": models.AssetImage, ".avif": models.AssetImage,

	".css": models.AssetStylesheet,
	".js":  models.AssetScript, ".mjs": models.AssetScript,

	".mp4": models.AssetMedia, ".webm": models.AssetMedia, ".ogg": models.AssetMedia,
	".mp3": models.AssetMedia, ".wav": models.AssetMedia, ".m4a": models.AssetMedia,
	".mov": models.AssetMedia,

	".woff2": models.AssetFont, ".woff": models.AssetFont, ".ttf": models.AssetFont,
	".otf": models.AssetFont, ".eot": models.AssetFont,

	".pdf": models.AssetEmbed, ".zip": models.AssetEmbed, ".gz": models.AssetEmbed,
	".tar": models.AssetEmbed, ".rar": models.AssetEmbed, ".7z": models.AssetEmbed,
	".dmg": models.AssetEmbed, ".exe": models.AssetEmbed, ".apk": models.AssetEmbed,
	".doc": models.AssetEmbed, ".docx": models.AssetEmbed, ".xls": models.AssetEmbed,
	".xlsx": models.AssetEmbed, ".ppt": models.AssetEmbed, ".pptx": models.AssetEmbed,
	".csv": models.AssetEmbed,
}

// linkedAssetKind 判断链接是否指向文件(图片、文档、压缩包等)
func linkedAssetKind(link string) (models.AssetKind, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	kind, ok := linkedFileKinds[strings.ToLower(path.Ext(u.Path))]
	return kind, ok
}

// materialize 以有界并发下载资源
// 样式表下载完成后,其中引用的字体/图片会进入下一批
func (f *Frontier) materialize(ctx context.Context, jobs []assetJob) {
	state := f.deps.State

	for len(jobs) > 0 {
		var (
			more   []assetJob
			moreMu sync.Mutex
			g      errgroup.Group
		)
		g.SetLimit(f.cfg.AssetWorkers)

		for _, job := range jobs {
			// 在两次下载之间检查取消
			if ctx.Err() != nil {
				break
			}

			// 路径在分发前按顺序解析,保证冲突后缀的分配与并发顺序无关
			path, ok := state.ResolvePath(f.deps.Mapper, job.url, job.kind.DefaultExtension())
			if !ok {
				continue
			}

			job := job
			g.Go(func() error {
				outcome := f.deps.Fetcher.Fetch(ctx, job.url, path, f.cfg.AssetTimeout)
				if ctx.Err() != nil && !outcome.OK() {
					return nil
				}
				state.RecordOutcome(outcome)

				if outcome.OK() && job.kind == models.AssetStylesheet && f.cfg.FollowCSSAssets {
					refs := f.stylesheetJobs(job.url, path)
					if len(refs) > 0 {
						moreMu.Lock()
						more = append(more, refs...)
						moreMu.Unlock()
					}
				}
				return nil
			})
		}
		g.Wait()

		if ctx.Err() != nil {
			return
		}
		jobs = more
	}
}

// stylesheetJobs 读取已落盘的样式表并生成子资源任务
func (f *Frontier) stylesheetJobs(cssURL, path string) []assetJob {
	data, err := os.ReadFile(path)
	if err != nil {
		utils.Debugf("读取样式表失败 [%s]: %v", path, err)
		return nil
	}

	var jobs []assetJob
	for _, ref := range f.cssReferences(cssURL, string(data)) {
		if f.deps.State.TryDispatch(ref.URL) {
			jobs = append(jobs, assetJob{url: ref.URL, kind: ref.Kind})
		}
	}
	return jobs
}

// cssReferences 解析样式表中的引用为绝对URL
func (f *Frontier) cssReferences(baseURL, css string) []CSSReference {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var out []CSSReference
	for _, ref := range ScanCSS(css) {
		abs, ok := resolveReference(base, ref.URL)
		if !ok {
			continue
		}
		out = append(out, CSSReference{URL: abs, Kind: ref.Kind})
	}
	return out
}

func (f *Frontier) reportProgress(target models.CrawlTarget) {
	if f.deps.Progress == nil {
		return
	}
	f.deps.Progress(f.deps.State.Progress(target.URL, target.Depth))
}

// pageErrorKind 页面失败的类型,无法识别时归为导航错误
func pageErrorKind(err error) mirror.ErrorKind {
	kind := mirror.KindOf(err)
	if kind == mirror.KindUnknown || errors.Is(err, ErrRendererUnavailable) {
		return mirror.KindNavigation
	}
	return kind
}
