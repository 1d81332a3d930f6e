// Package command runs external tools with bounded timeouts and captured
// output, on top of the catalyst-forge executor.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/executor"
)

const defaultTimeout = 30 * time.Second

// ErrTimeout marks a command that exceeded its deadline.
var ErrTimeout = errors.New("command timed out")

// Output carries the captured result of a finished command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout and stderr joined, trimmed of trailing whitespace.
func (o Output) Combined() string {
	return strings.TrimRight(o.Stdout+o.Stderr, "\n \t")
}

// Runner executes external commands. Implementations must honour the context
// and never block past their configured timeout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
	RunIn(ctx context.Context, dir string, name string, args ...string) (Output, error)
}

// ExecRunner is the production Runner. Every invocation gets its own timeout
// derived from the runner default unless the caller's context is tighter.
type ExecRunner struct {
	timeout time.Duration
	env     map[string]string
}

// Option customizes an ExecRunner.
type Option func(*ExecRunner)

// WithTimeout overrides the per-command timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(r *ExecRunner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithEnv adds environment variables to every command run.
func WithEnv(env map[string]string) Option {
	return func(r *ExecRunner) {
		r.env = env
	}
}

// NewRunner constructs an ExecRunner with the default 30s timeout.
func NewRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a command in the current working directory.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	return r.RunIn(ctx, "", name, args...)
}

// RunIn executes a command in the given directory.
func (r *ExecRunner) RunIn(ctx context.Context, dir string, name string, args ...string) (Output, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	options := []executor.Option{
		executor.WithCapture(true, true, false),
	}
	if dir != "" {
		options = append(options, executor.WithWorkingDir(dir))
	}
	if len(r.env) > 0 {
		options = append(options, executor.WithEnv(r.env))
	}

	result, err := executor.New(name, args...).Execute(runCtx, options...)

	output := Output{ExitCode: -1}
	if result != nil {
		output = Output{
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			ExitCode: result.ExitCode,
		}
	}

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("%s: %w after %s", name, ErrTimeout, r.timeout)
		}
		return output, fmt.Errorf("run %s: %w", name, err)
	}
	return output, nil
}
