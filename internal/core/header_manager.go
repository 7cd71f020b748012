package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/sitecloner/internal/config"
	"github.com/RecoveryAshes/sitecloner/internal/models"
	"github.com/RecoveryAshes/sitecloner/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// HeaderManager 合并 默认 < 配置文件 < 命令行 三层头部
// 实现 models.HeaderProvider; 页面渲染和资源下载并发调用 GetHeaders
type HeaderManager struct {
	defaults http.Header
	file     http.Header
	cli      http.Header

	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor
	loader    *config.HeaderConfigLoader

	mu     sync.Mutex
	merged http.Header // 验证通过后缓存
	err    error
}

// NewHeaderManager 创建头部管理器
// configFile 为空时使用 configs/headers.yaml; cliHeaders 格式为 "Name: Value"
func NewHeaderManager(configFile string, cliHeaders []string) (*HeaderManager, error) {
	cli := make(http.Header)
	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		cli = parsed
	}

	return &HeaderManager{
		defaults:  defaultHeaders(),
		cli:       cli,
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
		loader:    config.NewHeaderConfigLoader(configFile),
	}, nil
}

func defaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      {DefaultUserAgent},
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"zh-CN,zh;q=0.9,en;q=0.8"},
		"Accept-Encoding": {"gzip, deflate, br"},
	}
}

// LoadConfig 读取头部配置文件,只在首次调用时生效
func (hm *HeaderManager) LoadConfig() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.loadLocked()
}

func (hm *HeaderManager) loadLocked() error {
	if hm.file != nil {
		return nil
	}
	headers, err := hm.loader.LoadHeaders()
	if err != nil {
		utils.Errorf("加载HTTP头部配置失败: %v", err)
		return err
	}
	hm.file = headers
	if len(headers) > 0 {
		utils.Debugf("已加载%d个HTTP头部配置: %s", len(headers), hm.redactor.RedactToString(headers))
	}
	return nil
}

// Validate 按 默认 → 配置 → 命令行 顺序验证
func (hm *HeaderManager) Validate() error {
	for _, layer := range []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.file},
		{"命令行", hm.cli},
	} {
		if err := hm.validator.Validate(layer.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", layer.name, err)
			return err
		}
	}
	return nil
}

// GetMergedHeaders 按优先级合并,不做验证
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.file, hm.cli} {
		for name, values := range layer {
			result[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
		}
	}
	return result
}

// GetSafeHeaders 脱敏后的合并头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 实现 models.HeaderProvider
// 首次调用时加载并验证,之后返回缓存结果的副本
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.merged == nil && hm.err == nil {
		if err := hm.loadLocked(); err != nil {
			hm.err = err
		} else if err := hm.Validate(); err != nil {
			hm.err = err
		} else {
			hm.merged = hm.GetMergedHeaders()
			utils.Debugf("请求头部: %s", hm.redactor.RedactToString(hm.merged))
		}
	}
	if hm.err != nil {
		return nil, hm.err
	}
	return hm.merged.Clone(), nil
}

// staticHeaders 固定头部,不读取配置文件
type staticHeaders http.Header

func (s staticHeaders) GetHeaders() (http.Header, error) {
	return http.Header(s).Clone(), nil
}

// DefaultHeaderProvider 只包含默认头部的提供者
func DefaultHeaderProvider() models.HeaderProvider {
	return staticHeaders(defaultHeaders())
}
