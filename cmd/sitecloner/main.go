package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RecoveryAshes/sitecloner/internal/core"
	"github.com/RecoveryAshes/sitecloner/internal/crawlers"
	"github.com/RecoveryAshes/sitecloner/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	configFile     string
	headersFile    string
	logLevel       string
	headers        []string
	validateConfig bool
	noProgress     bool

	targetURL     string
	urlFile       string
	depth         int
	delayMs       int
	mode          string
	assetWorkers  int
	pageWorkers   int
	headless      bool
	respectRobots bool
	outputDir     string

	batchDelay      int
	continueOnError bool
)

// appConfig 在 PersistentPreRunE 中加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "sitecloner",
	Short: "网站克隆/镜像工具",
	Long: `sitecloner - 将网站渲染后的页面和静态资源镜像到本地目录

  • 浏览器模式(go-rod)执行JavaScript后提取资源,静态模式(colly)只解析HTML
  • 按深度递归跟随同源链接,每个URL在一次运行中只提取一次
  • 样式表中引用的字体和图片一并下载
  • 统计/追踪域名的失败只记录诊断日志,不计入错误

示例:
  sitecloner -u https://example.com -d 2
  sitecloner -u https://example.com -m static --delay 0 -o mirror
  sitecloner -f urls.txt -H "Cookie: session=xxx"
  sitecloner --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		cfg.MergeCLIFlags(collectOverrides(cmd))

		logConfig := cfg.LogConfig()
		logConfig.NoConsole = urlFile != "" && !noProgress
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		appConfig = cfg
		return nil
	},
	RunE: runClone,
}

// collectOverrides 只收集显式设置过的参数
func collectOverrides(cmd *cobra.Command) core.CLIOverrides {
	var o core.CLIOverrides
	flags := cmd.Flags()
	if flags.Changed("depth") {
		o.MaxDepth = &depth
	}
	if flags.Changed("delay") {
		o.DelayMs = &delayMs
	}
	if flags.Changed("mode") {
		o.Mode = &mode
	}
	if flags.Changed("asset-workers") {
		o.AssetWorkers = &assetWorkers
	}
	if flags.Changed("page-workers") {
		o.PageWorkers = &pageWorkers
	}
	if flags.Changed("headless") {
		o.Headless = &headless
	}
	if flags.Changed("respect-robots") {
		o.RespectRobots = &respectRobots
	}
	if flags.Changed("output") {
		o.OutputDir = &outputDir
	}
	if flags.Changed("log-level") {
		o.LogLevel = &logLevel
	}
	if flags.Changed("batch-delay") {
		o.BatchDelay = &batchDelay
	}
	if flags.Changed("continue-on-error") {
		o.ContinueOnError = &continueOnError
	}
	return o
}

func runClone(cmd *cobra.Command, args []string) error {
	if headersFile == "" {
		headersFile = appConfig.Output.HeadersFile
	}
	headerManager, err := core.NewHeaderManager(headersFile, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}

	if validateConfig {
		return printHeaderCheck(headerManager)
	}

	if targetURL == "" && urlFile == "" {
		return cmd.Help()
	}

	seed, err := NormalizeURL(targetURL)
	if err != nil {
		return fmt.Errorf("无效的目标URL: %w", err)
	}
	if err := ValidateFlags(seed, urlFile, appConfig.Crawl); err != nil {
		return err
	}
	if _, err := headerManager.GetHeaders(); err != nil {
		return fmt.Errorf("HTTP头部配置无效: %w", err)
	}

	// Ctrl+C 取消运行,已完成的页面和资源保留在磁盘上
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []core.Option{
		core.WithClassifier(appConfig.Classifier),
		core.WithReports(appConfig.Output.Reports),
	}

	if urlFile != "" {
		urls, err := utils.ReadURLsFromFile(urlFile)
		if err != nil {
			return err
		}
		if !noProgress {
			update, finish := utils.NewPageProgress("克隆中")
			defer finish()
			opts = append(opts, core.WithProgress(update))
		}

		batch := core.NewBatchCloner(appConfig.Crawl, appConfig.Output.BaseDir,
			time.Duration(appConfig.Resource.BatchDelay)*time.Second,
			appConfig.Resource.ContinueOnError, headerManager, opts...)
		summary := batch.CloneBatch(ctx, urls)
		if summary.FailCount > 0 {
			return fmt.Errorf("%d 个站点克隆失败", summary.FailCount)
		}
		return nil
	}

	cloner, err := core.NewCloner(seed, appConfig.Crawl, appConfig.Output.BaseDir, headerManager, opts...)
	if err != nil {
		return err
	}
	result, err := cloner.Clone(ctx)
	if err != nil {
		if errors.Is(err, crawlers.ErrRendererUnavailable) {
			utils.Warn("浏览器无法启动,可以使用 --mode static 在不执行JavaScript的情况下克隆")
		}
		return fmt.Errorf("克隆失败: %w", err)
	}

	utils.PrintSummary(result)
	return nil
}

func printHeaderCheck(hm *core.HeaderManager) error {
	utils.Info("🔍 验证HTTP头部配置...")
	if err := hm.LoadConfig(); err != nil {
		return fmt.Errorf("加载头部配置失败: %w", err)
	}
	if err := hm.Validate(); err != nil {
		return fmt.Errorf("头部配置验证失败: %w", err)
	}
	if err := appConfig.Crawl.Validate(); err != nil {
		return fmt.Errorf("克隆配置验证失败: %w", err)
	}

	safe := hm.GetSafeHeaders()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safe))
	for name, value := range safe {
		utils.Infof("  %s: %s", name, value)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sitecloner %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().StringVar(&headersFile, "headers-file", "", "HTTP头部配置文件 (默认 configs/headers.yaml)")
	rootCmd.PersistentFlags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	rootCmd.Flags().StringVarP(&targetURL, "url", "u", "", "入口URL")
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含URL列表的文件路径")
	rootCmd.Flags().IntVarP(&depth, "depth", "d", 1, "链接跟随深度 (0-10)")
	rootCmd.Flags().IntVar(&delayMs, "delay", 500, "页面之间的间隔(毫秒)")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "browser", "提取模式 (browser|static)")
	rootCmd.Flags().IntVar(&assetWorkers, "asset-workers", 8, "单页资源下载并发数")
	rootCmd.Flags().IntVar(&pageWorkers, "page-workers", 1, "页面提取并发数")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().BoolVar(&respectRobots, "respect-robots", false, "遵守robots.txt")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "output", "输出目录")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "批量模式下不显示进度条")

	rootCmd.Flags().IntVar(&batchDelay, "batch-delay", 0, "批量模式站点之间的间隔(秒)")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "批量模式遇到错误继续处理")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
