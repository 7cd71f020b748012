package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Verdict 失败分类结果
type Verdict int

const (
	Ignorable  Verdict = iota // 只写诊断日志
	Reportable                // 进入运行错误列表
)

// String 实现fmt.Stringer
func (v Verdict) String() string {
	if v == Ignorable {
		return "ignorable"
	}
	return "reportable"
}

// ErrorKind 错误类型
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindNonFetchable ErrorKind = "non_fetchable"
	KindConnReset    ErrorKind = "connection_reset"
	KindTimeout      ErrorKind = "timeout"
	KindDNSNotFound  ErrorKind = "dns_not_found"
	KindConnRefused  ErrorKind = "connection_refused"
	KindSocketHangUp ErrorKind = "socket_hang_up"
	KindCanceled     ErrorKind = "canceled"
	KindHTTPStatus   ErrorKind = "http_status"
	KindTooLarge     ErrorKind = "too_large"
	KindIO           ErrorKind = "io"
	KindNavigation   ErrorKind = "navigation"
	KindUnknown      ErrorKind = "unknown"
)

// FetchError 带类型的下载错误
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Unwrap 支持errors.Is/As
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassifierTable 分类表
type ClassifierTable struct {
	// IgnorableHosts 已知的统计/追踪/第三方域名,在抓取UA下失败是预期行为
	// 按域名后缀匹配 (doubleclick.net 匹配 stats.g.doubleclick.net)
	IgnorableHosts []string `mapstructure:"ignorable_hosts"`

	// IgnorableStatuses 可接受的重定向/无内容状态码
	IgnorableStatuses []int `mapstructure:"ignorable_statuses"`

	// TransientKinds 视为瞬时网络错误的类型
	TransientKinds []ErrorKind `mapstructure:"transient_kinds"`
}

// DefaultClassifierTable 默认分类表
func DefaultClassifierTable() ClassifierTable {
	return ClassifierTable{
		IgnorableHosts: []string{
			"google-analytics.com",
			"googletagmanager.com",
			"doubleclick.net",
			"googlesyndication.com",
			"googleadservices.com",
			"facebook.net",
			"connect.facebook.com",
			"hotjar.com",
			"clarity.ms",
			"segment.io",
			"mixpanel.com",
			"sentry.io",
			"nr-data.net",
			"hs-analytics.net",
			"intercom.io",
			"bat.bing.com",
			"analytics.tiktok.com",
			"hm.baidu.com",
			"cnzz.com",
		},
		IgnorableStatuses: []int{204, 301, 302, 303, 307, 308},
		TransientKinds: []ErrorKind{
			KindConnReset,
			KindTimeout,
			KindDNSNotFound,
			KindConnRefused,
			KindSocketHangUp,
			KindCanceled,
		},
	}
}

// Classifier 失败分类器
type Classifier struct {
	hosts     []string
	statuses  map[int]struct{}
	transient map[ErrorKind]struct{}
}

// NewClassifier 根据分类表创建分类器
func NewClassifier(table ClassifierTable) *Classifier {
	c := &Classifier{
		hosts:     make([]string, 0, len(table.IgnorableHosts)),
		statuses:  make(map[int]struct{}, len(table.IgnorableStatuses)),
		transient: make(map[ErrorKind]struct{}, len(table.TransientKinds)),
	}
	for _, h := range table.IgnorableHosts {
		h = strings.Trim(strings.ToLower(strings.TrimSpace(h)), ".")
		if h != "" {
			c.hosts = append(c.hosts, h)
		}
	}
	for _, s := range table.IgnorableStatuses {
		c.statuses[s] = struct{}{}
	}
	for _, k := range table.TransientKinds {
		c.transient[k] = struct{}{}
	}
	return c
}

// Classify 判断一次失败是否可忽略
func (c *Classifier) Classify(rawURL string, err error) Verdict {
	if IsNonFetchable(rawURL) {
		return Ignorable
	}

	if _, ok := c.transient[KindOf(err)]; ok {
		return Ignorable
	}

	if c.isIgnorableHost(rawURL) {
		return Ignorable
	}

	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		if _, ok := c.statuses[fe.StatusCode]; ok {
			return Ignorable
		}
	}

	return Reportable
}

// ClassifyMessage 只有错误文本时的分类入口
func (c *Classifier) ClassifyMessage(rawURL, message string) Verdict {
	if message == "" {
		return c.Classify(rawURL, nil)
	}
	return c.Classify(rawURL, errors.New(message))
}

func (c *Classifier) isIgnorableHost(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, h := range c.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// messageKinds 错误文本词表,仅在无法从错误链识别类型时使用
var messageKinds = []struct {
	fragment string
	kind     ErrorKind
}{
	{"econnreset", KindConnReset},
	{"connection reset", KindConnReset},
	{"etimedout", KindTimeout},
	{"timed out", KindTimeout},
	{"timeout", KindTimeout},
	{"enotfound", KindDNSNotFound},
	{"no such host", KindDNSNotFound},
	{"name not resolved", KindDNSNotFound},
	{"econnrefused", KindConnRefused},
	{"connection refused", KindConnRefused},
	{"socket hang up", KindSocketHangUp},
	{"broken pipe", KindSocketHangUp},
	{"unexpected eof", KindSocketHangUp},
}

// KindOf 识别错误类型
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind != KindNone && fe.Kind != KindUnknown {
		return fe.Kind
	}

	switch {
	case errors.Is(err, ErrNonFetchable):
		return KindNonFetchable
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, syscall.ETIMEDOUT):
		return KindTimeout
	case errors.Is(err, syscall.ECONNRESET):
		return KindConnReset
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindConnRefused
	case errors.Is(err, syscall.EPIPE), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return KindSocketHangUp
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNSNotFound
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, mk := range messageKinds {
		if strings.Contains(msg, mk.fragment) {
			return mk.kind
		}
	}
	return KindUnknown
}
