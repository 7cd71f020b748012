package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HeaderConfig headers.yaml 的内容
type HeaderConfig struct {
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
}

// CliHeaders 命令行 -H 参数, 每项形如 "Name: Value"
type CliHeaders []string

// Parse 转换为 http.Header
// 同名头部后出现的覆盖先出现的; Cookie 例外, 多个值以 "; " 拼接
func (ch CliHeaders) Parse() (http.Header, error) {
	out := make(http.Header, len(ch))
	for i, raw := range ch {
		name, value, err := splitHeaderLine(raw)
		if err != nil {
			return nil, fmt.Errorf("参数 --header 第%d项 %q: %w", i+1, raw, err)
		}
		if http.CanonicalHeaderKey(name) == "Cookie" {
			if prev := out.Get(name); prev != "" && value != "" {
				value = prev + "; " + value
			}
		}
		out.Set(name, value)
	}
	return out, nil
}

var errMissingColon = errors.New("缺少冒号分隔符,应为 'Name: Value'")

func splitHeaderLine(raw string) (string, string, error) {
	name, value, ok := strings.Cut(raw, ":")
	if !ok {
		return "", "", errMissingColon
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", errors.New("头部名称不能为空")
	}
	return name, strings.TrimSpace(value), nil
}

// HeaderProvider 为页面渲染和资源下载提供请求头部
// 返回的头部已按 默认 < 配置文件 < 命令行 的优先级合并
type HeaderProvider interface {
	GetHeaders() (http.Header, error)
}

// ValidationError 单个头部未通过校验
type ValidationError struct {
	Field      string // "name" 或 "value"
	HeaderName string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	if e.Suggestion != "" {
		fmt.Fprintf(&b, " (建议: %s)", e.Suggestion)
	}
	return b.String()
}

// ConfigError 配置文件无法读取或解析
type ConfigError struct {
	FilePath string
	Cause    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }
