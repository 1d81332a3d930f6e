package setup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jaston/jaston-setup/internal/command"
	"github.com/jaston/jaston-setup/internal/config"
)

// ErrorCategory classifies a setup failure for recovery decisions.
type ErrorCategory string

const (
	CategoryEnvironment   ErrorCategory = "environment"
	CategoryDependency    ErrorCategory = "dependency"
	CategoryService       ErrorCategory = "service"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryUnknown       ErrorCategory = "unknown"
)

// Error wraps a phase failure with its classification.
type Error struct {
	Phase    Phase
	Category ErrorCategory
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("phase %s failed (%s): %v", e.Phase, e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether an automatic recovery attempt is worth
// making. Configuration and dependency errors need a human.
func (e *Error) Recoverable() bool {
	return e.Category == CategoryEnvironment || e.Category == CategoryService
}

// newPhaseError classifies err and wraps it with the failing phase. An
// already classified error keeps its category.
func newPhaseError(phase Phase, err error) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Phase: phase, Category: existing.Category, Err: err}
	}
	return &Error{Phase: phase, Category: classify(err), Err: err}
}

func classify(err error) ErrorCategory {
	var validation *config.ValidationError
	if errors.As(err, &validation) {
		return CategoryConfiguration
	}
	if errors.Is(err, command.ErrTimeout) {
		return CategoryService
	}

	message := strings.ToLower(err.Error())
	switch {
	case containsAny(message, "executable file not found", "command not found", "no such file"):
		return CategoryEnvironment
	case containsAny(message, "address already in use", "port", "disk", "permission denied"):
		return CategoryEnvironment
	case containsAny(message, "pip", "npm", "requirements", "package.json", "node_modules", "module not found"):
		return CategoryDependency
	case containsAny(message, "connection refused", "not running", "not ready", "redis", "timed out"):
		return CategoryService
	case containsAny(message, "settings", "secret", "config", "env"):
		return CategoryConfiguration
	default:
		return CategoryUnknown
	}
}

func containsAny(message string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(message, needle) {
			return true
		}
	}
	return false
}
