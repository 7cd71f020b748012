package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/sitecloner/internal/crawlers"
	"github.com/RecoveryAshes/sitecloner/internal/mirror"
	"github.com/RecoveryAshes/sitecloner/internal/models"
	"github.com/RecoveryAshes/sitecloner/internal/utils"
)

// ErrOutputRoot 站点输出目录无法创建
var ErrOutputRoot = errors.New("无法创建输出目录")

// robotsUserAgent robots.txt 规则匹配使用的UA
const robotsUserAgent = "sitecloner"

// Option Cloner 可选项
type Option func(*Cloner)

// WithRenderer 使用外部提供的渲染器,Clone 结束后不会关闭它
func WithRenderer(r crawlers.Renderer) Option {
	return func(c *Cloner) {
		c.renderer = r
	}
}

// WithProgress 每个页面完成后回调
func WithProgress(fn func(models.Progress)) Option {
	return func(c *Cloner) {
		c.progress = fn
	}
}

// WithClassifier 替换默认的失败分类表
func WithClassifier(table mirror.ClassifierTable) Option {
	return func(c *Cloner) {
		c.classifier = mirror.NewClassifier(table)
	}
}

// WithReports 是否写入 reports/<site>/ 下的报告文件 (默认写入)
func WithReports(enabled bool) Option {
	return func(c *Cloner) {
		c.reports = enabled
	}
}

// WithResourceMonitor 替换资源检查器
func WithResourceMonitor(m *crawlers.ResourceMonitor) Option {
	return func(c *Cloner) {
		c.monitor = m
	}
}

// Cloner 运行协调器
// 每次 Clone 使用全新的运行状态,多次调用互不影响
type Cloner struct {
	config    models.CloneConfig
	seedURL   string
	host      string
	outputDir string
	headers   models.HeaderProvider

	renderer   crawlers.Renderer
	progress   func(models.Progress)
	classifier *mirror.Classifier
	monitor    *crawlers.ResourceMonitor
	reports    bool
}

// NewCloner 创建运行协调器
func NewCloner(seedURL string, cfg models.CloneConfig, outputDir string, headers models.HeaderProvider, opts ...Option) (*Cloner, error) {
	if err := models.ValidateURL(seedURL); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}
	parsed, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("解析URL失败: %w", err)
	}
	if outputDir == "" {
		outputDir = "output"
	}

	c := &Cloner{
		config:    cfg,
		seedURL:   seedURL,
		host:      strings.ToLower(parsed.Host),
		outputDir: outputDir,
		headers:   headers,
		reports:   true,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.classifier == nil {
		c.classifier = mirror.NewClassifier(mirror.DefaultClassifierTable())
	}
	if c.monitor == nil {
		c.monitor = crawlers.NewResourceMonitor(crawlers.ResourceMonitorConfig{
			SafetyReserveMemory: int64(cfg.SafetyReserveMemory) * 1024 * 1024,
			CPULoadThreshold:    cfg.CPULoadThreshold,
		})
	}
	return c, nil
}

// SiteDir 本次运行的站点目录
func (c *Cloner) SiteDir() string {
	return filepath.Join(c.outputDir, mirror.SiteDirName(c.host))
}

// Clone 执行一次完整的克隆
// 只有致命错误(渲染器无法启动、输出目录无法创建)会返回error;
// 单个页面或资源的失败记录在结果的错误列表中
func (c *Cloner) Clone(ctx context.Context) (*models.CloneResult, error) {
	result := &models.CloneResult{
		RunID:     models.NewRunID(),
		SeedURL:   c.seedURL,
		SiteDir:   c.SiteDir(),
		StartedAt: time.Now(),
	}

	runLog := utils.RunLogger(result.RunID, c.host)
	runLog.Info().Str("seed", c.seedURL).Msg("🚀 开始克隆")
	utils.Infof("模式: %s, 深度: %d, 页面间隔: %v", c.config.Mode, c.config.MaxDepth, c.config.Delay())
	utils.Infof("站点目录: %s", result.SiteDir)

	if err := os.MkdirAll(result.SiteDir, 0755); err != nil {
		utils.Errorf("创建站点目录失败: %v", err)
		return nil, fmt.Errorf("%w [%s]: %v", ErrOutputRoot, result.SiteDir, err)
	}

	renderer, release, err := c.openRenderer()
	if err != nil {
		utils.Errorf("初始化页面渲染器失败: %v", err)
		return nil, err
	}
	defer release()

	limiter := crawlers.NewHostLimiter(c.config.AssetRateLimit)
	if limiter != nil {
		utils.Infof("资源请求限速: 每个主机最小间隔 %v", limiter.Interval())
	}

	fetcher, err := crawlers.NewAssetFetcher(crawlers.FetcherOptions{
		Headers:    c.headers,
		Classifier: c.classifier,
		Limiter:    limiter,
		MaxBytes:   c.config.MaxAssetBytes,
	})
	if err != nil {
		return nil, err
	}

	var robots *crawlers.RobotsGuard
	if c.config.RespectRobots {
		robots = crawlers.NewRobotsGuard(fetcher.Client(), robotsUserAgent)
		if !robots.Allowed(ctx, c.seedURL) {
			utils.Warnf("robots.txt 禁止抓取入口URL: %s", c.seedURL)
		}
	}

	assetWorkers := c.monitor.CalculateMaxWorkers(c.config.AssetWorkers)
	if assetWorkers < c.config.AssetWorkers {
		utils.Infof("根据系统资源将资源下载并发数从 %d 调整为 %d", c.config.AssetWorkers, assetWorkers)
	}

	state := crawlers.NewRunState()
	frontier := crawlers.NewFrontier(crawlers.FrontierConfig{
		MaxDepth:        c.config.MaxDepth,
		Delay:           c.config.Delay(),
		PageWorkers:     c.config.PageWorkers,
		AssetWorkers:    assetWorkers,
		AssetTimeout:    c.config.AssetTimeoutDuration(),
		FollowCSSAssets: c.config.FollowCSSAssets,
	}, crawlers.FrontierDeps{
		Extractor: crawlers.NewExtractor(renderer, c.host),
		Fetcher:   fetcher,
		Mapper:    mirror.NewPathMapper(result.SiteDir, c.host),
		State:     state,
		Robots:    robots,
		Progress:  c.progress,
	})

	result.Status = models.RunStatusCompleted
	if err := frontier.Run(ctx, c.seedURL); err != nil {
		utils.Warnf("克隆被取消: %v", err)
		result.Status = models.RunStatusCancelled
	}

	result.FinishedAt = time.Now()
	result.Stats = state.Stats()
	result.Stats.Duration = result.FinishedAt.Sub(result.StartedAt).Seconds()
	result.VisitedURLs = state.VisitedURLs()
	result.DownloadedAssets = state.DownloadedURLs()
	result.Errors = state.Errors()

	if c.reports {
		reporter := utils.NewReporter(c.outputDir, mirror.SiteDirName(c.host))
		if err := reporter.GenerateReport(result, c.config); err != nil {
			utils.Warnf("生成报告失败: %v", err)
		}
	}

	runLog.Info().
		Str("status", string(result.Status)).
		Int("pages", result.Stats.VisitedPages).
		Int("assets", result.Stats.DownloadedAssets).
		Int("errors", result.Stats.Errors).
		Float64("duration", result.Stats.Duration).
		Msg("✅ 克隆结束")
	return result, nil
}

// openRenderer 按模式创建渲染器; 外部提供的渲染器不由本次运行关闭
func (c *Cloner) openRenderer() (crawlers.Renderer, func(), error) {
	if c.renderer != nil {
		return c.renderer, func() {}, nil
	}

	var (
		r   crawlers.Renderer
		err error
	)
	switch c.config.Mode {
	case models.ModeStatic:
		r = crawlers.NewStaticRenderer(crawlers.StaticOptions{
			Timeout: c.config.NavigationTimeoutDuration(),
			Headers: c.headers,
		})
	default:
		r, err = crawlers.NewBrowserRenderer(crawlers.BrowserOptions{
			Headless:          c.config.Headless,
			NavigationTimeout: c.config.NavigationTimeoutDuration(),
			NetworkIdle:       time.Duration(c.config.NetworkIdle) * time.Millisecond,
			Tabs:              c.config.PageWorkers,
			Headers:           c.headers,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	return r, func() {
		if err := r.Close(); err != nil {
			utils.Warnf("关闭渲染器失败: %v", err)
		}
	}, nil
}

// Clone 以默认配置克隆一个站点
// 站点目录为 outputRoot/<host>, 返回访问页面数、下载资源数和错误列表
func Clone(ctx context.Context, seedURL string, maxDepth int, delay time.Duration, outputRoot string, opts ...Option) (*models.CloneResult, error) {
	cfg := models.DefaultCloneConfig()
	cfg.MaxDepth = maxDepth
	cfg.DelayMs = int(delay / time.Millisecond)

	c, err := NewCloner(seedURL, cfg, outputRoot, DefaultHeaderProvider(), opts...)
	if err != nil {
		return nil, err
	}
	return c.Clone(ctx)
}
