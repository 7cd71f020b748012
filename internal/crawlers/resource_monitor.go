package crawlers

import (
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源检查
// 职责: 在运行开始前根据可用内存和CPU负载收紧并发上限
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 采样函数,测试中可替换
	availableMemory func() (uint64, error)
	cpuPercent      func() (float64, error)
}

// ResourceMonitorConfig 资源检查配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	CPULoadThreshold    int   // CPU负载阈值(%), >=200 表示不检查CPU
	WorkerMemoryUsage   int64 // 单个工作者平均内存消耗(字节)
}

// ResourceSnapshot 一次资源采样
type ResourceSnapshot struct {
	AvailableMemory uint64  // 系统可用内存(字节)
	CPUUsage        float64 // 全部核心平均使用率(%)
	NumCPU          int
}

// NewResourceMonitor 创建资源检查器
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.WorkerMemoryUsage <= 0 {
		config.WorkerMemoryUsage = 100 * 1024 * 1024 // 100MB
	}
	return &ResourceMonitor{
		config:          config,
		availableMemory: systemAvailableMemory,
		cpuPercent:      systemCPUPercent,
	}
}

func systemAvailableMemory() (uint64, error) {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vmStat.Available, nil
}

func systemCPUPercent() (float64, error) {
	// 100毫秒采样, perCPU=false 返回所有核心的平均使用率
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("CPU使用率数据为空")
	}
	return percentages[0], nil
}

// Snapshot 采样当前资源状态,采样失败的项为0
func (rm *ResourceMonitor) Snapshot() ResourceSnapshot {
	snap := ResourceSnapshot{NumCPU: runtime.NumCPU()}

	if avail, err := rm.availableMemory(); err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败")
	} else {
		snap.AvailableMemory = avail
	}

	if rm.config.CPULoadThreshold < 200 {
		if usage, err := rm.cpuPercent(); err != nil {
			log.Warn().Err(err).Msg("获取CPU使用率失败")
		} else {
			snap.CPUUsage = usage
		}
	}
	return snap
}

// CalculateMaxWorkers 根据资源状态收紧请求的并发数,结果不小于1
//   - 内存: (可用内存 - 安全保留) / 单工作者消耗
//   - CPU: 负载超过阈值时减半
func (rm *ResourceMonitor) CalculateMaxWorkers(requested int) int {
	if requested < 1 {
		requested = 1
	}
	snap := rm.Snapshot()
	result := requested

	if snap.AvailableMemory > 0 {
		surplus := int64(snap.AvailableMemory) - rm.config.SafetyReserveMemory
		byMemory := int(surplus / rm.config.WorkerMemoryUsage)
		if byMemory < 1 {
			byMemory = 1
			log.Warn().Msgf("可用内存不足(当前%dMB),并发数限制为1", snap.AvailableMemory/(1024*1024))
		}
		result = min(result, byMemory)
	}

	if rm.config.CPULoadThreshold < 200 && snap.CPUUsage > float64(rm.config.CPULoadThreshold) {
		result = result / 2
		log.Warn().Msgf("CPU负载过高(当前%.1f%%),并发数减半", snap.CPUUsage)
	}

	if result < 1 {
		result = 1
	}
	if result < requested {
		log.Info().Msgf("根据系统资源调整并发数: %d -> %d", requested, result)
	}
	return result
}
