package crawlers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// errTooLarge 写入内容超过上限
var errTooLarge = errors.New("资源超过大小上限")

// writeFileAtomic 把reader的内容写入临时文件,成功后重命名到目标路径
// 任何错误都会删除临时文件,目标路径上不会留下截断的文件
// limit<=0 表示不限制大小
func writeFileAtomic(path string, r io.Reader, limit int64) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("创建目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sitecloner-*.part")
	if err != nil {
		return 0, fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}

	n, err := io.Copy(tmp, src)
	if err != nil {
		cleanup()
		return n, err
	}
	if limit > 0 && n > limit {
		cleanup()
		return n, errTooLarge
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("重命名文件失败: %w", err)
	}
	return n, nil
}

// fileExists 路径存在且为普通文件
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
