package core

import (
	"context"
	"time"

	"github.com/RecoveryAshes/sitecloner/internal/models"
	"github.com/RecoveryAshes/sitecloner/internal/utils"
)

// BatchCloner 依次克隆多个入口URL
// 每个站点使用独立的 Cloner 和运行状态
type BatchCloner struct {
	config        models.CloneConfig
	outputDir     string
	batchDelay    time.Duration
	continueOnErr bool
	headers       models.HeaderProvider
	opts          []Option
}

// BatchResult 单个站点的结果
type BatchResult struct {
	URL      string
	Success  bool
	Error    error
	Result   *models.CloneResult
	Duration float64
}

// BatchSummary 批量克隆摘要
type BatchSummary struct {
	TotalURLs     int
	SuccessCount  int
	FailCount     int
	TotalPages    int
	TotalAssets   int
	TotalErrors   int
	TotalBytes    int64
	TotalDuration float64
	Results       []BatchResult
}

// NewBatchCloner 创建批量克隆器
// batchDelay 为两个站点之间的间隔; continueOnErr 为false时遇到致命错误即停止
func NewBatchCloner(cfg models.CloneConfig, outputDir string, batchDelay time.Duration, continueOnErr bool, headers models.HeaderProvider, opts ...Option) *BatchCloner {
	return &BatchCloner{
		config:        cfg,
		outputDir:     outputDir,
		batchDelay:    batchDelay,
		continueOnErr: continueOnErr,
		headers:       headers,
		opts:          opts,
	}
}

// CloneBatch 按顺序克隆; ctx取消后不再开始新的站点
func (bc *BatchCloner) CloneBatch(ctx context.Context, urls []string) *BatchSummary {
	utils.Infof("🚀 开始批量克隆: %d个URL", len(urls))

	summary := &BatchSummary{
		TotalURLs: len(urls),
		Results:   make([]BatchResult, 0, len(urls)),
	}
	start := time.Now()

	for i, seed := range urls {
		if ctx.Err() != nil {
			utils.Warn("批量克隆已取消")
			break
		}
		utils.Infof("==================== [%d/%d] %s ====================", i+1, len(urls), seed)

		result := bc.cloneOne(ctx, seed)
		summary.Results = append(summary.Results, result)

		if result.Success {
			summary.SuccessCount++
			s := result.Result.Stats
			summary.TotalPages += s.VisitedPages
			summary.TotalAssets += s.DownloadedAssets
			summary.TotalErrors += s.Errors
			summary.TotalBytes += s.TotalBytes
		} else {
			summary.FailCount++
			utils.Errorf("❌ 克隆失败: %v", result.Error)
			if !bc.continueOnErr {
				utils.Warn("批量克隆中止 (--continue-on-error=false)")
				break
			}
		}

		if i < len(urls)-1 && bc.batchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(bc.batchDelay):
			}
		}
	}

	summary.TotalDuration = time.Since(start).Seconds()
	bc.printSummary(summary)
	return summary
}

func (bc *BatchCloner) cloneOne(ctx context.Context, seed string) BatchResult {
	start := time.Now()
	result := BatchResult{URL: seed}

	c, err := NewCloner(seed, bc.config, bc.outputDir, bc.headers, bc.opts...)
	if err == nil {
		result.Result, err = c.Clone(ctx)
	}
	result.Error = err
	result.Success = err == nil
	result.Duration = time.Since(start).Seconds()
	return result
}

func (bc *BatchCloner) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 批量克隆摘要")
	utils.Infof("总URL数: %d, 成功: %d, 失败: %d", summary.TotalURLs, summary.SuccessCount, summary.FailCount)
	utils.Infof("页面: %d, 资源: %d, 错误: %d", summary.TotalPages, summary.TotalAssets, summary.TotalErrors)
	utils.Infof("总大小: %.2f MB, 总耗时: %.2f秒", float64(summary.TotalBytes)/(1024*1024), summary.TotalDuration)
	utils.Info("==================================================")

	for _, r := range summary.Results {
		if !r.Success {
			utils.Warnf("  - %s: %v", r.URL, r.Error)
		}
	}
}
