package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/RecoveryAshes/sitecloner/internal/models"
)

// ValidateFlags 检查入口参数和合并后的克隆配置
func ValidateFlags(targetURL, urlFile string, cfg models.CloneConfig) error {
	switch {
	case targetURL == "" && urlFile == "":
		return fmt.Errorf("必须指定 --url 或 --url-file")
	case targetURL != "" && urlFile != "":
		return fmt.Errorf("--url 和 --url-file 不能同时使用")
	}

	if targetURL != "" {
		if err := models.ValidateURL(targetURL); err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("参数无效: %w", err)
	}
	return nil
}

// NormalizeURL 没有协议时默认使用https
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}
