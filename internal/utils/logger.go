package utils

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	mainLogName  = "site_cloner.log"
	errorLogName = "site_cloner_error.log"
)

// Logger 全局日志器, InitLogger 之前为空日志器
var Logger = zerolog.Nop()

// LogConfig 日志配置
type LogConfig struct {
	Level      string // trace, debug, info, warn, error
	LogDir     string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
	NoConsole  bool // 批量模式下终端留给进度条
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger 初始化日志系统
// 所有级别写入 site_cloner.log, error 及以上另写一份到 site_cloner_error.log
func InitLogger(config LogConfig) error {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	writers := []io.Writer{
		config.rotating(mainLogName),
		&FilteredWriter{Writer: config.rotating(errorLogName), MinLevel: zerolog.ErrorLevel},
	}
	if !config.NoConsole {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Caller().Logger()
	log.Logger = Logger

	Logger.Debug().Str("level", level.String()).Str("log_dir", config.LogDir).Msg("日志系统初始化完成")
	return nil
}

func (c LogConfig) rotating(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(c.LogDir, name),
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// RunLogger 带运行标识的子日志器, 便于在同一日志文件中区分批量模式的各次运行
func RunLogger(runID, host string) zerolog.Logger {
	return Logger.With().Str("run_id", runID).Str("host", host).Logger()
}

// FilteredWriter 只写入 MinLevel 及以上的日志
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 无级别信息的写入直接透传
func (w *FilteredWriter) Write(p []byte) (int, error) {
	return w.Writer.Write(p)
}

// WriteLevel 由 zerolog.MultiLevelWriter 调用
func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.MinLevel {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

func Info(msg string) { Logger.Info().Msg(msg) }

func Infof(format string, args ...any) { Logger.Info().Msgf(format, args...) }

func Warn(msg string) { Logger.Warn().Msg(msg) }

func Warnf(format string, args ...any) { Logger.Warn().Msgf(format, args...) }

func Errorf(format string, args ...any) { Logger.Error().Msgf(format, args...) }

func Debug(msg string) { Logger.Debug().Msg(msg) }

func Debugf(format string, args ...any) { Logger.Debug().Msgf(format, args...) }
