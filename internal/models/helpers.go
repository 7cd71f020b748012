package models

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// ErrInvalidURL 入口URL不是带主机名的 http(s) 绝对URL
var ErrInvalidURL = errors.New("无效的URL")

// ValidateURL 检查入口URL, 返回的错误可用 errors.Is(err, ErrInvalidURL) 判断
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	switch {
	case err != nil:
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("%w: %q 必须使用 http 或 https 协议", ErrInvalidURL, raw)
	case u.Hostname() == "":
		return fmt.Errorf("%w: %q 缺少主机名", ErrInvalidURL, raw)
	}
	return nil
}

// NewRunID 每次克隆运行的唯一标识
func NewRunID() string { return uuid.NewString() }
