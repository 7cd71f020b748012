package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/sitecloner/internal/models"
)

func TestReporter_GenerateReport(t *testing.T) {
	out := t.TempDir()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	result := &models.CloneResult{
		RunID:            "run-1",
		SeedURL:          "https://example.test/",
		SiteDir:          filepath.Join(out, "example.test"),
		Status:           models.RunStatusCompleted,
		Stats:            models.CloneStats{VisitedPages: 2, DownloadedAssets: 1, Errors: 1},
		VisitedURLs:      []string{"https://example.test/", "https://example.test/about"},
		DownloadedAssets: []string{"https://example.test/app.css"},
		Errors: []models.CloneError{
			{URL: "https://cdn.test/x.png", Stage: models.StageAsset, Kind: "http_status", Message: "HTTP 404"},
		},
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	}

	r := NewReporter(out, "example.test")
	if err := r.GenerateReport(result, models.DefaultCloneConfig()); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	dir := filepath.Join(out, "reports", "example.test")
	if r.Dir() != dir {
		t.Errorf("Dir() = %s, want %s", r.Dir(), dir)
	}

	files := []struct {
		name string
		want string
	}{
		{VisitedURLsFile, "https://example.test/\nhttps://example.test/about\n"},
		{DownloadedAssetsFile, "https://example.test/app.css\n"},
	}
	for _, f := range files {
		t.Run(f.name, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join(dir, f.name))
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != f.want {
				t.Errorf("内容 = %q, want %q", data, f.want)
			}
		})
	}

	m, err := models.LoadRunManifest(filepath.Join(dir, ReportFile))
	if err != nil {
		t.Fatalf("LoadRunManifest: %v", err)
	}
	if m.Domain != "example.test" || m.RunID != "run-1" || len(m.Errors) != 1 {
		t.Errorf("manifest = %+v", m)
	}
	if !m.StartTime.Equal(start) {
		t.Errorf("StartTime = %v", m.StartTime)
	}
}

func TestReporter_EmptyLists(t *testing.T) {
	out := t.TempDir()
	r := NewReporter(out, "empty.test")
	if err := r.GenerateReport(&models.CloneResult{RunID: "x"}, models.DefaultCloneConfig()); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(r.Dir(), DownloadedAssetsFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("空列表应写入空文件, 实际 %q", data)
	}
}
