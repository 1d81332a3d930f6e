// Package checks defines the result record shared by the environment check
// batteries and the report aggregation over lists of those records.
package checks

// Severity classifies a check outcome.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Check is the immutable outcome of a single probe. A failed check always
// carries severity error or warning, never info.
type Check struct {
	Name          string            `json:"name"`
	Passed        bool              `json:"passed"`
	Message       string            `json:"message"`
	Severity      Severity          `json:"severity"`
	FixSuggestion string            `json:"fix_suggestion,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// Pass records a successful check.
func Pass(name, message string) Check {
	return Check{Name: name, Passed: true, Message: message, Severity: SeverityInfo}
}

// PassWarn records a check that succeeded but deserves attention, such as a
// version above the hard minimum yet below the recommended one.
func PassWarn(name, message, fix string) Check {
	return Check{Name: name, Passed: true, Message: message, Severity: SeverityWarning, FixSuggestion: fix}
}

// Fail records a blocking failure.
func Fail(name, message, fix string) Check {
	return Check{Name: name, Passed: false, Message: message, Severity: SeverityError, FixSuggestion: fix}
}

// FailWarn records a non-blocking failure.
func FailWarn(name, message, fix string) Check {
	return Check{Name: name, Passed: false, Message: message, Severity: SeverityWarning, FixSuggestion: fix}
}

// WithDetails returns a copy of the check carrying extra key/value context.
func (c Check) WithDetails(details map[string]string) Check {
	c.Details = details
	return c
}
