package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jaston/jaston-setup/internal/checks"
	"github.com/jaston/jaston-setup/internal/frontend"
)

// runFrontendSetup installs and builds the SPA. bun is preferred for speed,
// npm is the fallback. A failed production build is reported but does not
// stop the run; the dev server does not need it.
func (o *Orchestrator) runFrontendSetup(ctx context.Context) error {
	manifestPath := filepath.Join(o.opts.FrontendDir, "package.json")
	if _, err := os.Stat(manifestPath); err != nil {
		return fmt.Errorf("package.json not found in %s", o.opts.FrontendDir)
	}

	if err := o.installFrontendDeps(ctx); err != nil {
		return fmt.Errorf("install frontend dependencies: %w", err)
	}

	results := o.deps.Frontend.RunAllChecks(ctx)
	report := checks.GenerateReport(results)
	if err := checks.WriteReport(filepath.Join(o.opts.ReportDir, frontend.ReportFile), report); err != nil {
		o.logger.Warn().Err(err).Msg("failed to write frontend report")
	}
	o.deps.Metrics.SetChecksTotal("frontend", "passed", report.Summary.Passed)
	o.deps.Metrics.SetChecksTotal("frontend", "failed", report.Summary.Failed)
	if report.Summary.Errors > 0 {
		return fmt.Errorf("frontend validation failed: %s", failureSummary(results))
	}

	if err := o.buildFrontend(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("production build failed, continuing with dev server only")
	}
	return nil
}

func (o *Orchestrator) installFrontendDeps(ctx context.Context) error {
	if o.runFrontendTool(ctx, "bun", "install") == nil {
		return nil
	}
	o.logger.Info().Msg("bun unavailable, falling back to npm")
	return o.runFrontendTool(ctx, "npm", "install")
}

func (o *Orchestrator) buildFrontend(ctx context.Context) error {
	if o.runFrontendTool(ctx, "bun", "run", "build") == nil {
		return nil
	}
	return o.runFrontendTool(ctx, "npm", "run", "build")
}

func (o *Orchestrator) runFrontendTool(ctx context.Context, name string, args ...string) error {
	out, err := o.deps.Runner.RunIn(ctx, o.opts.FrontendDir, name, args...)
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("%s exited %d: %s", name, out.ExitCode, out.Combined())
	}
	return nil
}
