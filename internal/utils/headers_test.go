package utils

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/RecoveryAshes/sitecloner/internal/models"
)

func TestHeaderValidator_ValidateHeader(t *testing.T) {
	v := NewHeaderValidator()

	tests := []struct {
		name      string
		header    string
		value     string
		wantField string // 空表示应通过
	}{
		{"常规头部", "User-Agent", "Mozilla/5.0", ""},
		{"数字和连字符", "X-Request-ID-123", "abc", ""},
		{"空值", "X-Empty", "", ""},
		{"制表符", "X-Tab", "a\tb", ""},
		{"名称含空格", "User Agent", "x", "name"},
		{"名称含下划线", "User_Agent", "x", "name"},
		{"空名称", "", "x", "name"},
		{"禁止头部", "Host", "example.com", "name"},
		{"禁止头部小写", "content-length", "10", "name"},
		{"控制字符", "X-Bad", "a\x00b", "value"},
		{"换行注入", "X-Bad", "a\r\nSet-Cookie: x", "value"},
		{"非ASCII", "X-Bad", "中文", "value"},
		{"刚好8KB", "X-Long", strings.Repeat("a", MaxHeaderValueLength), ""},
		{"超过8KB", "X-Long", strings.Repeat("a", MaxHeaderValueLength+1), "value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateHeader(tt.header, tt.value)
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("不应返回错误: %v", err)
				}
				return
			}
			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %s, want %s", ve.Field, tt.wantField)
			}
		})
	}
}

func TestHeaderValidator_Validate(t *testing.T) {
	v := NewHeaderValidator()

	if err := v.Validate(nil); err != nil {
		t.Errorf("nil头部应通过: %v", err)
	}

	ok := http.Header{"Accept": {"*/*"}, "Cookie": {"a=1"}}
	if err := v.Validate(ok); err != nil {
		t.Errorf("合法头部: %v", err)
	}

	bad := http.Header{"Accept": {"*/*"}, "X-Multi": {"ok", "bad\x01"}}
	if err := v.Validate(bad); err == nil {
		t.Error("多值中的非法值应被发现")
	}
}

func TestHeaderRedactor(t *testing.T) {
	r := NewHeaderRedactor()

	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"普通头部", "User-Agent", "Mozilla/5.0", "Mozilla/5.0"},
		{"Bearer令牌", "Authorization", "Bearer abc.def.ghi", "Bearer ***"},
		{"长值保留首尾", "X-Api-Key", "1234567890abcdef", "1234***cdef"},
		{"短值完全隐藏", "X-Token", "short", "***"},
		{"Cookie", "Cookie", "session=0123456789", "sess***6789"},
		{"名称大小写无关", "X-SECRET-ID", "abcdefghij", "abcd***ghij"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactHeaderValue(tt.header, tt.value); got != tt.want {
				t.Errorf("RedactHeaderValue(%s) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestHeaderRedactor_RedactToString(t *testing.T) {
	r := NewHeaderRedactor()
	h := http.Header{
		"X-Token":    {"tok"},
		"Accept":     {"*/*"},
		"User-Agent": {"bot"},
	}

	want := "Accept: */*, User-Agent: bot, X-Token: ***"
	if got := r.RedactToString(h); got != want {
		t.Errorf("RedactToString = %q, want %q", got, want)
	}
	if got := r.RedactToString(nil); got != "" {
		t.Errorf("空头部 = %q", got)
	}
}
