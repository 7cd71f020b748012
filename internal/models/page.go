package models

import "time"

// CrawlTarget 待提取的页面目标
// 由已提取页面上发现的同源链接创建,仅被Frontier消费一次,创建后不可变
type CrawlTarget struct {
	// URL 绝对URL
	URL string

	// Depth 发现该URL时的深度
	//   - 0: 入口URL
	//   - 1: 从入口页面发现的链接
	//   - 以此类推...
	Depth int

	// SourceURL 发现此URL的页面(可选,用于调试)
	SourceURL string
}

// AssetKind 资源来源标签,仅用于在URL缺少扩展名时选择默认扩展名
type AssetKind string

const (
	AssetImage      AssetKind = "image"
	AssetStylesheet AssetKind = "stylesheet"
	AssetScript     AssetKind = "script"
	AssetMedia      AssetKind = "media"
	AssetEmbed      AssetKind = "embed"
	AssetFont       AssetKind = "font"
	AssetPage       AssetKind = "page"
)

// DefaultExtension 返回该资源类型的默认文件扩展名
func (k AssetKind) DefaultExtension() string {
	switch k {
	case AssetImage:
		return ".png"
	case AssetStylesheet:
		return ".css"
	case AssetScript:
		return ".js"
	case AssetMedia:
		return ".mp4"
	case AssetEmbed:
		return ".bin"
	case AssetFont:
		return ".woff2"
	case AssetPage:
		return ".html"
	default:
		return ""
	}
}

// AssetReference 页面引用的资源
// 不可抓取协议(data:, javascript:, about:blank)的URL在成为AssetReference之前已被过滤
type AssetReference struct {
	URL  string    `json:"url"`
	Kind AssetKind `json:"kind"`
}

// StyleResource 样式资源,外部样式表(URL非空)或内联<style>块
type StyleResource struct {
	URL    string `json:"url,omitempty"`
	Inline string `json:"inline,omitempty"`
}

// IsInline 是否为内联样式
func (s StyleResource) IsInline() bool {
	return s.URL == ""
}

// ScriptResource 脚本资源,外部脚本(URL非空)或内联<script>块
type ScriptResource struct {
	URL    string `json:"url,omitempty"`
	Inline string `json:"inline,omitempty"`
	Type   string `json:"type,omitempty"`
}

// IsInline 是否为内联脚本
func (s ScriptResource) IsInline() bool {
	return s.URL == ""
}

// FormField 表单字段
type FormField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FormDescriptor 表单描述
type FormDescriptor struct {
	Action string      `json:"action"`
	Method string      `json:"method"`
	Fields []FormField `json:"fields"`
}

// 页面元数据键
const (
	MetaTitle       = "title"
	MetaDescription = "description"
	MetaLanguage    = "language"
	MetaTimestamp   = "timestamp"
)

// RawPage 浏览器协作方返回的原始页面数据
// 所有引用保持页面中的原始形式,可能是相对URL或不可抓取URL
type RawPage struct {
	FinalURL    string            `json:"final_url"`
	HTML        string            `json:"html"`
	Images      []string          `json:"images"`
	Stylesheets []string          `json:"stylesheets"`
	InlineCSS   []string          `json:"inline_css"`
	Scripts     []string          `json:"scripts"`
	InlineJS    []string          `json:"inline_js"`
	Media       []string          `json:"media"`
	Embeds      []string          `json:"embeds"`
	Icons       []string          `json:"icons"`
	Links       []string          `json:"links"`
	Forms       []FormDescriptor  `json:"forms"`
	Meta        map[string]string `json:"meta"`
}

// PageSnapshot 单个页面的不可变提取结果
// 处理单个页面期间由Frontier独占,不在页面之间共享
type PageSnapshot struct {
	URL       string
	FinalURL  string
	HTML      string
	Assets    []AssetReference
	Styles    []StyleResource
	Scripts   []ScriptResource
	Forms     []FormDescriptor
	Links     []string // 同源链接(绝对URL,已去重)
	Metadata  map[string]string
	FetchedAt time.Time
}
