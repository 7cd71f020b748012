// Package mirror 提供镜像引擎的两个纯组件:
//
//   - PathMapper: 资源URL -> 输出目录下确定性的本地文件路径
//   - Classifier: URL + 错误 -> 可忽略 | 需报告
//
// 两者都不持有跨调用的可变状态,可被任意数量的goroutine并发使用。
// 运行级别的路径声明(同一运行内两个不同URL不得落到同一文件)由 crawlers.RunState 负责。
package mirror
