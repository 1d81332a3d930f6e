package checks

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Summary aggregates counts over a list of checks.
type Summary struct {
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	Errors      int     `json:"errors"`
	Warnings    int     `json:"warnings"`
	SuccessRate float64 `json:"success_rate"`
}

// Report is the JSON artifact written after a check battery completes.
type Report struct {
	GeneratedAt     time.Time `json:"generated_at"`
	Summary         Summary   `json:"summary"`
	Checks          []Check   `json:"checks"`
	Recommendations []string  `json:"recommendations"`
}

// GenerateReport aggregates check outcomes. The success rate is
// 100 * passed / total, defined as 0.0 for an empty list. Only
// error-severity fix suggestions surface as recommendations.
func GenerateReport(list []Check) Report {
	summary := Summary{Total: len(list)}
	recommendations := make([]string, 0)

	for _, check := range list {
		if check.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
		switch check.Severity {
		case SeverityError:
			summary.Errors++
			if check.FixSuggestion != "" {
				recommendations = append(recommendations, check.FixSuggestion)
			}
		case SeverityWarning:
			summary.Warnings++
		}
	}

	if summary.Total > 0 {
		summary.SuccessRate = 100 * float64(summary.Passed) / float64(summary.Total)
	}

	return Report{
		GeneratedAt:     time.Now().UTC(),
		Summary:         summary,
		Checks:          list,
		Recommendations: recommendations,
	}
}

// WriteReport persists a report as JSON atomically.
func WriteReport(path string, report Report) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return err
	}

	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	encoder := json.NewEncoder(tempFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tempFile.Name(), path); err != nil {
		cleanup()
		return err
	}
	return nil
}
