package integration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// CategorySummary aggregates outcomes within a single category.
type CategorySummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Summary aggregates outcomes across the whole run.
type Summary struct {
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
	SuccessRate float64 `json:"success_rate"`
}

// Report is the persisted artifact of one integration run.
type Report struct {
	RunID       string                       `json:"run_id"`
	GeneratedAt time.Time                    `json:"generated_at"`
	Summary     Summary                      `json:"summary"`
	Categories  map[Category]CategorySummary `json:"categories"`
	Results     []TestResult                 `json:"results"`
}

// GenerateReport assembles a report with a fresh run ID. Skipped tests do
// not count against the success rate.
func GenerateReport(results []TestResult) Report {
	report := Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Categories:  make(map[Category]CategorySummary, len(Categories())),
		Results:     results,
	}

	for _, result := range results {
		summary := report.Categories[result.Category]
		summary.Total++
		switch result.Status {
		case StatusPassed:
			summary.Passed++
			report.Summary.Passed++
		case StatusSkipped:
			summary.Skipped++
			report.Summary.Skipped++
		default:
			summary.Failed++
			report.Summary.Failed++
		}
		report.Categories[result.Category] = summary
		report.Summary.Total++
	}

	attempted := report.Summary.Passed + report.Summary.Failed
	if attempted > 0 {
		report.Summary.SuccessRate = 100 * float64(report.Summary.Passed) / float64(attempted)
	}
	return report
}

// AllPassed reports whether no test failed. Skips are tolerated.
func (r Report) AllPassed() bool {
	return r.Summary.Failed == 0
}

// Write persists the report into dir under a timestamped name and returns
// the full path. The write is atomic so a crash never leaves a torn file.
func (r Report) Write(dir string) (string, error) {
	name := fmt.Sprintf("integration_test_results_%s.json", r.GeneratedAt.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publish report: %w", err)
	}
	return path, nil
}
