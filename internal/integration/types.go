// Package integration runs category-based test suites against a running
// instance of the platform, including declarative multi-step user workflows.
package integration

import "time"

// Category names one test suite. Categories run in a fixed order and are
// isolated from each other's failures.
type Category string

const (
	CategoryAPIContract     Category = "api_contract"
	CategoryDataConsistency Category = "data_consistency"
	CategoryWorkflow        Category = "workflow"
	CategoryPerformance     Category = "performance"
	CategorySecurity        Category = "security"
	CategoryRealtime        Category = "realtime"
)

// Categories returns the fixed execution order.
func Categories() []Category {
	return []Category{
		CategoryAPIContract,
		CategoryDataConsistency,
		CategoryWorkflow,
		CategoryPerformance,
		CategorySecurity,
		CategoryRealtime,
	}
}

// TestStatus is the lifecycle state of one test execution.
type TestStatus string

const (
	StatusPending TestStatus = "pending"
	StatusRunning TestStatus = "running"
	StatusPassed  TestStatus = "passed"
	StatusFailed  TestStatus = "failed"
	StatusSkipped TestStatus = "skipped"
)

// TestResult records one finished test. Results are append-only; they are
// never mutated after creation.
type TestResult struct {
	Name         string            `json:"name"`
	Category     Category          `json:"category"`
	Status       TestStatus        `json:"status"`
	Duration     time.Duration     `json:"duration_ns"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// Passed reports whether the result counts toward the success rate.
func (r TestResult) Passed() bool {
	return r.Status == StatusPassed
}
