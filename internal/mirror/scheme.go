package mirror

import (
	"errors"
	"strings"
)

// ErrNonFetchable 不可抓取的URL(data:, javascript:, about:blank 等)
var ErrNonFetchable = errors.New("不可抓取的URL")

// nonFetchablePrefixes 不可抓取协议前缀(小写)
var nonFetchablePrefixes = []string{
	"data:",
	"javascript:",
	"about:",
	"blob:",
	"mailto:",
	"tel:",
}

// IsNonFetchable 判断URL是否使用了不可抓取的协议,或本身为空/仅为分隔符
func IsNonFetchable(rawURL string) bool {
	s := strings.TrimSpace(rawURL)
	if s == "" || s == "/" || s == "//" || s == "#" {
		return true
	}

	return HasNonFetchableScheme(s)
}

// HasNonFetchableScheme 只检查协议部分
// 页面中的 href="/" 是合法的相对链接,不能按 IsNonFetchable 过滤
func HasNonFetchableScheme(rawURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	for _, prefix := range nonFetchablePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
