package checks

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateReport(t *testing.T) {
	cases := []struct {
		name     string
		checks   []Check
		want     Summary
		wantRecs []string
	}{
		{
			name: "empty list has zero rate",
			want: Summary{},
		},
		{
			name: "all passed",
			checks: []Check{
				Pass("a", "ok"),
				Pass("b", "ok"),
			},
			want: Summary{Total: 2, Passed: 2, SuccessRate: 100},
		},
		{
			name: "mixed outcomes",
			checks: []Check{
				Pass("a", "ok"),
				Fail("b", "broken", "install b"),
				FailWarn("c", "iffy", "tune c"),
				PassWarn("d", "old", "upgrade d"),
			},
			want:     Summary{Total: 4, Passed: 2, Failed: 2, Errors: 1, Warnings: 2, SuccessRate: 50},
			wantRecs: []string{"install b"},
		},
		{
			name: "only error suggestions are recommended",
			checks: []Check{
				Fail("a", "broken", "fix a"),
				FailWarn("b", "iffy", "fix b"),
			},
			want:     Summary{Total: 2, Failed: 2, Errors: 1, Warnings: 1},
			wantRecs: []string{"fix a"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := GenerateReport(tc.checks)
			if report.Summary != tc.want {
				t.Fatalf("summary = %+v, want %+v", report.Summary, tc.want)
			}
			if len(report.Recommendations) != len(tc.wantRecs) {
				t.Fatalf("recommendations = %v, want %v", report.Recommendations, tc.wantRecs)
			}
			for i := range tc.wantRecs {
				if report.Recommendations[i] != tc.wantRecs[i] {
					t.Fatalf("recommendation %d = %q, want %q", i, report.Recommendations[i], tc.wantRecs[i])
				}
			}
		})
	}
}

func TestFailedChecksNeverCarryInfoSeverity(t *testing.T) {
	failed := []Check{
		Fail("a", "broken", ""),
		FailWarn("b", "iffy", ""),
	}
	for _, check := range failed {
		if check.Passed {
			t.Fatalf("check %s should be failed", check.Name)
		}
		if check.Severity != SeverityError && check.Severity != SeverityWarning {
			t.Fatalf("failed check %s has severity %q", check.Name, check.Severity)
		}
	}
	if pass := Pass("c", "ok"); pass.Severity != SeverityInfo {
		t.Fatalf("passing check severity = %q, want info", pass.Severity)
	}
}

func TestSuccessRateMath(t *testing.T) {
	checks := []Check{Pass("a", ""), Pass("b", ""), Fail("c", "", "")}
	report := GenerateReport(checks)
	want := 100 * float64(2) / float64(3)
	if math.Abs(report.Summary.SuccessRate-want) > 1e-9 {
		t.Fatalf("success rate = %v, want %v", report.Summary.SuccessRate, want)
	}
}

func TestWriteReportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "backend_check_report.json")
	report := GenerateReport([]Check{
		Pass("python version", "Python 3.12.1"),
		Fail("redis", "connection refused", "start redis-server"),
	})

	if err := WriteReport(path, report); err != nil {
		t.Fatalf("WriteReport() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var loaded Report
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if loaded.Summary != report.Summary {
		t.Fatalf("summary round trip = %+v, want %+v", loaded.Summary, report.Summary)
	}
	if len(loaded.Checks) != 2 || loaded.Checks[1].FixSuggestion != "start redis-server" {
		t.Fatalf("checks did not round trip: %+v", loaded.Checks)
	}
}
