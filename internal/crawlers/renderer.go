package crawlers

import (
	"context"
	"errors"

	"github.com/RecoveryAshes/sitecloner/internal/models"
)

// ErrRendererUnavailable 页面渲染协作方无法初始化(浏览器无法启动等)
var ErrRendererUnavailable = errors.New("页面渲染器不可用")

// Renderer 页面渲染协作方
// 负责导航、等待网络静默,并返回页面中原样存在的资源引用;
// 所有JavaScript执行和DOM查询都发生在协作方内部
type Renderer interface {
	Render(ctx context.Context, pageURL string) (*models.RawPage, error)
	Close() error
}
