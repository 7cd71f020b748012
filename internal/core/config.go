package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/sitecloner/internal/mirror"
	"github.com/RecoveryAshes/sitecloner/internal/models"
	"github.com/RecoveryAshes/sitecloner/internal/utils"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Crawl      models.CloneConfig     `mapstructure:"crawl"`
	Classifier mirror.ClassifierTable `mapstructure:"classifier"`
	Logging    LoggingConfig          `mapstructure:"logging"`
	Output     OutputConfig           `mapstructure:"output"`
	Resource   ResourceConfig         `mapstructure:"resource"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir     string `mapstructure:"base_dir"`
	Reports     bool   `mapstructure:"reports"`      // 是否写入报告文件
	HeadersFile string `mapstructure:"headers_file"` // HTTP头部配置文件
}

// ResourceConfig 批量模式配置
type ResourceConfig struct {
	BatchDelay      int  `mapstructure:"batch_delay"` // 秒
	ContinueOnError bool `mapstructure:"continue_on_error"`
}

// LoadConfig 加载配置文件
// configPath为空时依次搜索 ./configs, 当前目录, ~/.sitecloner; 找不到配置文件时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".sitecloner"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
		utils.Debugf("未找到配置文件,使用默认配置")
	} else {
		utils.Debugf("已加载配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &config, nil
}

// setDefaults 默认值与 models.DefaultCloneConfig 保持一致
func setDefaults(v *viper.Viper) {
	d := models.DefaultCloneConfig()
	v.SetDefault("crawl.max_depth", d.MaxDepth)
	v.SetDefault("crawl.delay_ms", d.DelayMs)
	v.SetDefault("crawl.mode", string(d.Mode))
	v.SetDefault("crawl.navigation_timeout", d.NavigationTimeout)
	v.SetDefault("crawl.network_idle", d.NetworkIdle)
	v.SetDefault("crawl.asset_timeout", d.AssetTimeout)
	v.SetDefault("crawl.asset_workers", d.AssetWorkers)
	v.SetDefault("crawl.page_workers", d.PageWorkers)
	v.SetDefault("crawl.headless", d.Headless)
	v.SetDefault("crawl.max_asset_bytes", d.MaxAssetBytes)
	v.SetDefault("crawl.asset_rate_limit", d.AssetRateLimit)
	v.SetDefault("crawl.respect_robots", d.RespectRobots)
	v.SetDefault("crawl.follow_css_assets", d.FollowCSSAssets)
	v.SetDefault("crawl.safety_reserve_memory", d.SafetyReserveMemory)
	v.SetDefault("crawl.cpu_load_threshold", d.CPULoadThreshold)

	table := mirror.DefaultClassifierTable()
	v.SetDefault("classifier.ignorable_hosts", table.IgnorableHosts)
	v.SetDefault("classifier.ignorable_statuses", table.IgnorableStatuses)
	v.SetDefault("classifier.transient_kinds", table.TransientKinds)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.reports", true)
	v.SetDefault("output.headers_file", "")

	v.SetDefault("resource.batch_delay", 0)
	v.SetDefault("resource.continue_on_error", true)
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// CLIOverrides 命令行显式设置的参数
// 指针为nil表示未设置,保留配置文件中的值
type CLIOverrides struct {
	MaxDepth      *int
	DelayMs       *int
	Mode          *string
	AssetWorkers  *int
	PageWorkers   *int
	Headless      *bool
	RespectRobots *bool
	OutputDir     *string
	LogLevel      *string

	BatchDelay      *int
	ContinueOnError *bool
}

// MergeCLIFlags 命令行参数优先于配置文件
func (c *Config) MergeCLIFlags(o CLIOverrides) {
	if o.MaxDepth != nil {
		c.Crawl.MaxDepth = *o.MaxDepth
	}
	if o.DelayMs != nil {
		c.Crawl.DelayMs = *o.DelayMs
	}
	if o.Mode != nil {
		c.Crawl.Mode = models.CloneMode(*o.Mode)
	}
	if o.AssetWorkers != nil {
		c.Crawl.AssetWorkers = *o.AssetWorkers
	}
	if o.PageWorkers != nil {
		c.Crawl.PageWorkers = *o.PageWorkers
	}
	if o.Headless != nil {
		c.Crawl.Headless = *o.Headless
	}
	if o.RespectRobots != nil {
		c.Crawl.RespectRobots = *o.RespectRobots
	}
	if o.OutputDir != nil {
		c.Output.BaseDir = *o.OutputDir
	}
	if o.LogLevel != nil {
		c.Logging.Level = *o.LogLevel
	}
	if o.BatchDelay != nil {
		c.Resource.BatchDelay = *o.BatchDelay
	}
	if o.ContinueOnError != nil {
		c.Resource.ContinueOnError = *o.ContinueOnError
	}
}
