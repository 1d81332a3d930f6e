package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jaston/jaston-setup/internal/backend"
	"github.com/jaston/jaston-setup/internal/checks"
)

// runBackendSetup prepares the Django side: virtualenv, dependencies,
// static files and migrations. Failures are fatal; a half-prepared
// backend is worse than a stopped run.
func (o *Orchestrator) runBackendSetup(ctx context.Context) error {
	venvDir := filepath.Join(o.opts.ProjectRoot, "venv")
	if _, err := os.Stat(venvDir); os.IsNotExist(err) {
		o.logger.Info().Str("dir", venvDir).Msg("creating virtual environment")
		if err := o.run(ctx, "python3", "-m", "venv", venvDir); err != nil {
			return fmt.Errorf("create virtual environment: %w", err)
		}
	}
	python := filepath.Join(venvDir, "bin", "python")

	if err := o.run(ctx, python, "-m", "pip", "install", "--upgrade", "pip"); err != nil {
		return fmt.Errorf("upgrade pip: %w", err)
	}

	requirements := filepath.Join(o.opts.ProjectRoot, "requirements.txt")
	if _, err := os.Stat(requirements); err != nil {
		// No manifest is fine; the dependency battery below still flags
		// packages the project actually needs.
		o.logger.Info().Str("path", requirements).Msg("no requirements.txt, skipping dependency install")
	} else if err := o.run(ctx, python, "-m", "pip", "install", "-r", requirements); err != nil {
		return fmt.Errorf("install requirements: %w", err)
	}

	results := o.deps.Backend.RunAllChecks(ctx)
	report := checks.GenerateReport(results)
	if err := checks.WriteReport(filepath.Join(o.opts.ReportDir, backend.ReportFile), report); err != nil {
		o.logger.Warn().Err(err).Msg("failed to write backend report")
	}
	o.deps.Metrics.SetChecksTotal("backend", "passed", report.Summary.Passed)
	o.deps.Metrics.SetChecksTotal("backend", "failed", report.Summary.Failed)
	if report.Summary.Errors > 0 {
		return fmt.Errorf("backend validation failed: %s", failureSummary(results))
	}

	// Static files before migrations: a failed collectstatic should not
	// leave the schema ahead of the code serving it.
	if err := o.run(ctx, python, "manage.py", "collectstatic", "--noinput"); err != nil {
		return fmt.Errorf("collectstatic: %w", err)
	}
	if err := o.run(ctx, python, "manage.py", "migrate", "--noinput"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// run executes a command in the project root, folding a nonzero exit into
// the error with the captured output.
func (o *Orchestrator) run(ctx context.Context, name string, args ...string) error {
	out, err := o.deps.Runner.RunIn(ctx, o.opts.ProjectRoot, name, args...)
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("%s exited %d: %s", name, out.ExitCode, out.Combined())
	}
	return nil
}
