package models

import (
	"encoding/json"
	"os"
	"time"
)

const (
	// MaxAssetSize 单个资源默认最大大小 50MB
	MaxAssetSize = 50 * 1024 * 1024
)

// RunManifest 交给外部站点地图/报告生成器的运行清单
type RunManifest struct {
	RunID     string    `json:"run_id"`
	SeedURL   string    `json:"seed_url"`
	Domain    string    `json:"domain"`
	SiteDir   string    `json:"site_dir"`
	Status    RunStatus `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// 统计信息
	Stats CloneStats `json:"stats"`

	// 扁平列表
	VisitedURLs      []string     `json:"visited_urls"`
	DownloadedAssets []string     `json:"downloaded_assets"`
	Errors           []CloneError `json:"errors"`

	// 配置快照
	Config CloneConfig `json:"config"`
}

// NewRunManifest 从运行结果构建清单
func NewRunManifest(result *CloneResult, domain string, config CloneConfig) *RunManifest {
	return &RunManifest{
		RunID:            result.RunID,
		SeedURL:          result.SeedURL,
		Domain:           domain,
		SiteDir:          result.SiteDir,
		Status:           result.Status,
		StartTime:        result.StartedAt,
		EndTime:          result.FinishedAt,
		Stats:            result.Stats,
		VisitedURLs:      result.VisitedURLs,
		DownloadedAssets: result.DownloadedAssets,
		Errors:           result.Errors,
		Config:           config,
	}
}

// ToJSON 序列化为JSON
func (m *RunManifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// FromJSON 从JSON反序列化
func (m *RunManifest) FromJSON(data []byte) error {
	return json.Unmarshal(data, m)
}

// SaveToFile 保存到文件
func (m *RunManifest) SaveToFile(filepath string) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadRunManifest 从文件加载
func LoadRunManifest(filepath string) (*RunManifest, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}

	var m RunManifest
	if err := m.FromJSON(data); err != nil {
		return nil, err
	}
	return &m, nil
}
