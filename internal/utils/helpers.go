package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/RecoveryAshes/sitecloner/internal/models"
)

// ReadURLsFromFile 读取批量模式的入口URL列表
func ReadURLsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开URL文件失败: %w", err)
	}
	defer file.Close()

	urls, err := ParseURLList(file)
	if err != nil {
		return nil, err
	}
	Infof("从文件加载了 %d 个URL", len(urls))
	return urls, nil
}

// ParseURLList 每行一个URL; 跳过空行、#注释、无效URL和重复URL
func ParseURLList(r io.Reader) ([]string, error) {
	var urls []string
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := models.ValidateURL(line); err != nil {
			Warnf("跳过无效URL (行 %d): %s - %v", lineNum, line, err)
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取URL文件失败: %w", err)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("URL文件中没有有效的URL")
	}
	return urls, nil
}
