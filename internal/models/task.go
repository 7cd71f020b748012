package models

import (
	"fmt"
	"time"
)

// CloneMode 页面提取模式
type CloneMode string

const (
	ModeBrowser CloneMode = "browser" // 无头浏览器渲染(go-rod)
	ModeStatic  CloneMode = "static"  // 静态HTML(Colly),不执行JavaScript
)

// RunStatus 运行状态
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed" // 已完成
	RunStatusCancelled RunStatus = "cancelled" // 已取消
	RunStatusFailed    RunStatus = "failed"    // 致命错误
)

// CloneConfig 克隆配置
type CloneConfig struct {
	MaxDepth          int       `json:"max_depth" mapstructure:"max_depth"`                   // 最大链接跟随深度 (默认:1)
	DelayMs           int       `json:"delay_ms" mapstructure:"delay_ms"`                     // 页面之间的冷却时间(毫秒)
	Mode              CloneMode `json:"mode" mapstructure:"mode"`                             // 提取模式 (默认:browser)
	NavigationTimeout int       `json:"navigation_timeout" mapstructure:"navigation_timeout"` // 单页导航超时(秒)
	NetworkIdle       int       `json:"network_idle" mapstructure:"network_idle"`             // 网络静默判定时间(毫秒)
	AssetTimeout      int       `json:"asset_timeout" mapstructure:"asset_timeout"`           // 单个资源下载超时(秒)
	AssetWorkers      int       `json:"asset_workers" mapstructure:"asset_workers"`           // 单页资源下载并发数
	PageWorkers       int       `json:"page_workers" mapstructure:"page_workers"`             // 页面提取并发数 (默认:1)
	Headless          bool      `json:"headless" mapstructure:"headless"`                     // 无头模式 (默认:true)
	MaxAssetBytes     int64     `json:"max_asset_bytes" mapstructure:"max_asset_bytes"`       // 单个资源最大字节数
	AssetRateLimit    float64   `json:"asset_rate_limit" mapstructure:"asset_rate_limit"`     // 每个主机每秒请求数,0表示不限制
	RespectRobots     bool      `json:"respect_robots" mapstructure:"respect_robots"`         // 是否遵守robots.txt
	FollowCSSAssets   bool      `json:"follow_css_assets" mapstructure:"follow_css_assets"`   // 是否下载样式表中引用的字体和图片

	// 资源监控配置
	SafetyReserveMemory int `json:"safety_reserve_memory" mapstructure:"safety_reserve_memory"` // MB
	CPULoadThreshold    int `json:"cpu_load_threshold" mapstructure:"cpu_load_threshold"`       // %
}

// DefaultCloneConfig 默认克隆配置
func DefaultCloneConfig() CloneConfig {
	return CloneConfig{
		MaxDepth:            1,
		DelayMs:             500,
		Mode:                ModeBrowser,
		NavigationTimeout:   30,
		NetworkIdle:         500,
		AssetTimeout:        15,
		AssetWorkers:        8,
		PageWorkers:         1,
		Headless:            true,
		MaxAssetBytes:       MaxAssetSize,
		FollowCSSAssets:     true,
		SafetyReserveMemory: 512,
		CPULoadThreshold:    90,
	}
}

// Validate 验证配置
func (c *CloneConfig) Validate() error {
	if c.MaxDepth < 0 || c.MaxDepth > 10 {
		return fmt.Errorf("深度必须在0-10之间")
	}
	if c.DelayMs < 0 || c.DelayMs > 60000 {
		return fmt.Errorf("页面间隔必须在0-60000毫秒之间")
	}
	if c.Mode != ModeBrowser && c.Mode != ModeStatic {
		return fmt.Errorf("无效的提取模式: %s", c.Mode)
	}
	if c.AssetWorkers < 1 || c.AssetWorkers > 64 {
		return fmt.Errorf("资源下载并发数必须在1-64之间")
	}
	if c.PageWorkers < 1 || c.PageWorkers > 16 {
		return fmt.Errorf("页面并发数必须在1-16之间")
	}
	if c.AssetTimeout < 1 || c.AssetTimeout > 300 {
		return fmt.Errorf("资源下载超时必须在1-300秒之间")
	}
	if c.NavigationTimeout < 1 || c.NavigationTimeout > 300 {
		return fmt.Errorf("导航超时必须在1-300秒之间")
	}
	if c.AssetRateLimit < 0 {
		return fmt.Errorf("资源下载速率不能为负数")
	}
	return nil
}

// Delay 页面间隔
func (c CloneConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// AssetTimeoutDuration 单个资源下载超时
func (c CloneConfig) AssetTimeoutDuration() time.Duration {
	return time.Duration(c.AssetTimeout) * time.Second
}

// NavigationTimeoutDuration 单页导航超时
func (c CloneConfig) NavigationTimeoutDuration() time.Duration {
	return time.Duration(c.NavigationTimeout) * time.Second
}

// CloneStats 运行统计
type CloneStats struct {
	VisitedPages     int     `json:"visited_pages"`     // 已提取页面数
	DownloadedAssets int     `json:"downloaded_assets"` // 已落盘资源数(含已存在跳过的)
	SkippedExisting  int     `json:"skipped_existing"`  // 已存在而跳过下载的资源数
	IgnoredFailures  int     `json:"ignored_failures"`  // 可忽略失败数
	Errors           int     `json:"errors"`            // 可报告错误数
	TotalBytes       int64   `json:"total_bytes"`       // 本次写入字节数
	Duration         float64 `json:"duration"`          // 总耗时(秒)
}

// ErrorStage 错误发生阶段
type ErrorStage string

const (
	StagePage  ErrorStage = "page"  // 页面提取
	StageAsset ErrorStage = "asset" // 资源下载
	StageWrite ErrorStage = "write" // 页面写入
)

// CloneError 单个可报告错误
type CloneError struct {
	URL     string     `json:"url"`
	Stage   ErrorStage `json:"stage"`
	Kind    string     `json:"kind"`
	Message string     `json:"message"`
}

// Error 实现error接口
func (e CloneError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Stage, e.URL, e.Message)
}

// CloneResult 一次运行的结果摘要
type CloneResult struct {
	RunID            string       `json:"run_id"`
	SeedURL          string       `json:"seed_url"`
	SiteDir          string       `json:"site_dir"`
	Status           RunStatus    `json:"status"`
	Stats            CloneStats   `json:"stats"`
	VisitedURLs      []string     `json:"visited_urls"`
	DownloadedAssets []string     `json:"downloaded_assets"`
	Errors           []CloneError `json:"errors"`
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
}

// Progress 每个页面完成后的进度信号
type Progress struct {
	URL              string
	Depth            int
	VisitedPages     int
	DownloadedAssets int
	Errors           int
}
