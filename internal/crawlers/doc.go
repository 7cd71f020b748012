// Package crawlers 实现站点克隆的抓取流水线
//
// # 概述
//
// 一次克隆运行从入口URL开始,按层(广度优先)提取同源页面,
// 把页面HTML和页面引用的资源写入镜像目录。单个页面或资源的失败不会中断运行。
//
// # 核心组件
//
// ## Renderer (渲染协作方)
//
// 负责加载页面并返回原样的资源引用,有两种实现:
//   - BrowserRenderer: 基于go-rod,执行JavaScript并等待网络静默,标签页由PagePool复用
//   - StaticRenderer: 基于Colly,只解析服务端返回的HTML
//
// ## Extractor (页面提取器)
//
// 调用Renderer并把原始引用解析为绝对URL,过滤 data:/javascript:/about: 等不可抓取引用,
// 输出不可变的 models.PageSnapshot。
//
// ## AssetFetcher (资源下载器)
//
// 流式下载单个资源到镜像路径:
//   - 目标文件已存在时跳过(断点续跑)
//   - 先写临时文件再重命名,失败不留下截断文件
//   - 支持 gzip/deflate/br 解压
//   - 失败经 mirror.Classifier 分为可忽略和需报告两类
//
// ## Frontier (递归控制器)
//
//	frontier := NewFrontier(FrontierConfig{MaxDepth: 2, PageWorkers: 1, AssetWorkers: 8},
//	    FrontierDeps{Extractor: extractor, Fetcher: fetcher, Mapper: mapper})
//	err := frontier.Run(ctx, "https://example.com/")
//	stats := frontier.State().Stats()
//
// 每个URL在一次运行中最多被提取一次(调度时加入已访问集合),
// 两次页面提取之间插入配置的冷却时间。
//
// # 并发安全
//
//   - RunState: 单个互斥锁保护所有集合和计数
//   - PagePool: channel + sync.Mutex
//   - HostLimiter/RobotsGuard: sync.Mutex
//
// # 取消
//
// ctx取消后不再调度新的页面和资源,已开始的下载在其超时内结束,Run返回ctx.Err()。
package crawlers
