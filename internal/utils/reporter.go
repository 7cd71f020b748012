package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/sitecloner/internal/models"
	"github.com/schollz/progressbar/v3"
)

const (
	// VisitedURLsFile 已访问页面列表
	VisitedURLsFile = "visited_urls.txt"
	// DownloadedAssetsFile 已下载资源列表
	DownloadedAssetsFile = "downloaded_assets.txt"
	// ReportFile 运行清单
	ReportFile = "clone_report.json"
)

// Reporter 报告生成器
// 输出交给外部站点地图/报告生成器的扁平列表和JSON清单
type Reporter struct {
	outputDir string
	domain    string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string, domain string) *Reporter {
	return &Reporter{
		outputDir: outputDir,
		domain:    domain,
	}
}

// Dir 报告目录 <outputDir>/reports/<domain>
func (r *Reporter) Dir() string {
	return filepath.Join(r.outputDir, "reports", r.domain)
}

// GenerateReport 写入三个报告文件
func (r *Reporter) GenerateReport(result *models.CloneResult, config models.CloneConfig) error {
	dir := r.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}

	if err := writeLines(filepath.Join(dir, VisitedURLsFile), result.VisitedURLs); err != nil {
		return err
	}
	if err := writeLines(filepath.Join(dir, DownloadedAssetsFile), result.DownloadedAssets); err != nil {
		return err
	}

	manifest := models.NewRunManifest(result, r.domain, config)
	if err := manifest.SaveToFile(filepath.Join(dir, ReportFile)); err != nil {
		return fmt.Errorf("保存运行清单失败: %w", err)
	}

	Infof("报告已保存: %s", dir)
	return nil
}

// writeLines 每行一个URL
func writeLines(path string, lines []string) error {
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", filepath.Base(path), err)
	}
	return nil
}

// PrintSummary 打印运行摘要
func PrintSummary(result *models.CloneResult) {
	s := result.Stats
	Info("==================================================")
	Infof("克隆完成: %s (%s)", result.SeedURL, result.Status)
	Infof("页面: %d  资源: %d (已存在跳过 %d)", s.VisitedPages, s.DownloadedAssets, s.SkippedExisting)
	Infof("错误: %d  可忽略失败: %d", s.Errors, s.IgnoredFailures)
	Infof("写入: %.2f MB  耗时: %.2f秒", float64(s.TotalBytes)/(1024*1024), s.Duration)
	Infof("站点目录: %s", result.SiteDir)
	Info("==================================================")

	if len(result.Errors) > 0 {
		Warnf("共 %d 个错误:", len(result.Errors))
		for _, e := range result.Errors {
			Warnf("  - %s", e.Error())
		}
	}
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("page"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// NewPageProgress 页面总数未知,以旋转进度条显示每个完成的页面
// 返回的finish在运行结束后调用
func NewPageProgress(label string) (func(models.Progress), func()) {
	bar := NewProgressBar(-1, label)
	update := func(p models.Progress) {
		bar.Describe(fmt.Sprintf("%s 资源:%d 错误:%d", label, p.DownloadedAssets, p.Errors))
		_ = bar.Add(1)
	}
	finish := func() {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	return update, finish
}
