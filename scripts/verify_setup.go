package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/shirou/gopsutil/v3/mem"
)

// check 单项检查; 返回false表示环境不可用
type check struct {
	name string
	run  func() (string, bool)
}

var checks = []check{
	{"Go版本", func() (string, bool) {
		return fmt.Sprintf("%s (%s/%s)", runtime.Version(), runtime.GOOS, runtime.GOARCH), true
	}},
	{"Chromium", checkChromium},
	{"可用内存", checkMemory},
	{"Go模块", checkModules},
	{"项目结构", checkLayout},
}

func main() {
	fmt.Println("sitecloner 环境验证")
	fmt.Println(strings.Repeat("=", 40))

	ok := true
	for _, c := range checks {
		detail, passed := c.run()
		mark := "✅"
		if !passed {
			mark = "❌"
			ok = false
		}
		fmt.Printf("%s %-8s %s\n", mark, c.name, detail)
	}

	fmt.Println(strings.Repeat("=", 40))
	if !ok {
		fmt.Println("环境验证失败,请解决上述问题")
		os.Exit(1)
	}
	fmt.Println("环境验证通过, 构建: go build -o sitecloner ./cmd/sitecloner")
}

// checkChromium 浏览器模式需要Chromium; 找不到时只提示,go-rod首次运行会自动下载
func checkChromium() (string, bool) {
	bin, found := launcher.LookPath()
	if !found {
		return "⚠️ 未找到, 浏览器模式首次运行时会自动下载 (离线环境请使用 --mode static)", true
	}
	out, err := exec.Command(bin, "--version").Output()
	if err != nil {
		return bin, true
	}
	return strings.TrimSpace(string(out)), true
}

func checkMemory() (string, bool) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Sprintf("⚠️ 无法读取: %v", err), true
	}
	detail := fmt.Sprintf("%d MB", vm.Available/(1024*1024))
	if vm.Available < 512*1024*1024 {
		detail += " ⚠️ 不足512MB, 建议降低 --asset-workers 和 --page-workers"
	}
	return detail, true
}

func checkModules() (string, bool) {
	if _, err := os.Stat("go.mod"); err != nil {
		return "go.mod 不存在", false
	}
	if out, err := exec.Command("go", "mod", "download").CombinedOutput(); err != nil {
		return fmt.Sprintf("go mod download 失败: %v %s", err, strings.TrimSpace(string(out))), false
	}
	return "依赖已下载", true
}

func checkLayout() (string, bool) {
	var missing []string
	for _, dir := range []string{
		"cmd/sitecloner",
		"internal/core",
		"internal/crawlers",
		"internal/mirror",
		"internal/models",
		"internal/utils",
	} {
		if _, err := os.Stat(dir); err != nil {
			missing = append(missing, dir)
		}
	}
	if len(missing) > 0 {
		return "缺少目录: " + strings.Join(missing, ", "), false
	}
	return "完整", true
}
