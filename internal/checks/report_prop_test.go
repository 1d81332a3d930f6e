package checks

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genCheck() gopter.Gen {
	return gen.Bool().Map(func(passed bool) Check {
		if passed {
			return Pass("probe", "ok")
		}
		return Fail("probe", "broken", "fix it")
	})
}

func TestReportProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("success rate stays within [0,100]", prop.ForAll(
		func(list []Check) bool {
			rate := GenerateReport(list).Summary.SuccessRate
			return rate >= 0 && rate <= 100
		},
		gen.SliceOf(genCheck()),
	))

	properties.Property("rate is 100 exactly when every check passed and list is non-empty", prop.ForAll(
		func(list []Check) bool {
			report := GenerateReport(list)
			allPassed := len(list) > 0
			for _, check := range list {
				if !check.Passed {
					allPassed = false
				}
			}
			return (report.Summary.SuccessRate == 100) == allPassed
		},
		gen.SliceOf(genCheck()),
	))

	properties.Property("passed plus failed equals total", prop.ForAll(
		func(list []Check) bool {
			summary := GenerateReport(list).Summary
			return summary.Passed+summary.Failed == summary.Total
		},
		gen.SliceOf(genCheck()),
	))

	properties.TestingRun(t)
}
