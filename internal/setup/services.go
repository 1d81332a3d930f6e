package setup

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaston/jaston-setup/internal/integration"
	"github.com/jaston/jaston-setup/internal/services"
)

const (
	webReadyDeadline      = 60 * time.Second
	frontendReadyDeadline = 60 * time.Second
	celeryApp             = "jaston"
)

// runServiceSetup launches the full process tree: redis, the Django web
// process, the celery worker and scheduler, and the Vite dev server. The
// web and frontend processes are polled until they actually serve.
func (o *Orchestrator) runServiceSetup(ctx context.Context) error {
	if err := o.deps.Manager.EnsureRedis(ctx, o.opts.RedisAddr); err != nil {
		return err
	}

	python := filepath.Join(o.opts.ProjectRoot, "venv", "bin", "python")
	celery := filepath.Join(o.opts.ProjectRoot, "venv", "bin", "celery")
	ports := services.DefaultPortMap()

	specs := []services.ProcessSpec{
		{
			Name:          services.ServiceWeb,
			Command:       []string{python, "manage.py", "runserver", fmt.Sprintf("0.0.0.0:%d", ports[services.ServiceWeb]), "--noreload"},
			Dir:           o.opts.ProjectRoot,
			Port:          ports[services.ServiceWeb],
			Ready:         services.HTTPProbe(o.opts.WebURL + "/admin/"),
			ReadyDeadline: webReadyDeadline,
		},
		{
			Name:    services.ServiceWorker,
			Command: []string{celery, "-A", celeryApp, "worker", "--loglevel=info"},
			Dir:     o.opts.ProjectRoot,
		},
		{
			Name:    services.ServiceScheduler,
			Command: []string{celery, "-A", celeryApp, "beat", "--loglevel=info"},
			Dir:     o.opts.ProjectRoot,
		},
		{
			Name:          services.ServiceFrontend,
			Command:       []string{"npm", "run", "dev"},
			Dir:           o.opts.FrontendDir,
			Port:          ports[services.ServiceFrontend],
			Ready:         services.TCPProbe("127.0.0.1", ports[services.ServiceFrontend]),
			ReadyDeadline: frontendReadyDeadline,
		},
	}

	for _, spec := range specs {
		if err := o.deps.Manager.Start(ctx, spec); err != nil {
			return err
		}
	}

	o.deps.Metrics.SetServicesRunning(len(o.deps.Manager.Registry().Running()))
	return nil
}

func (o *Orchestrator) runHealthChecks(ctx context.Context) error {
	results, healthy := o.deps.Health.RunAll(ctx)
	if healthy {
		return nil
	}
	var failing []string
	for _, result := range results {
		if !result.Healthy {
			failing = append(failing, fmt.Sprintf("%s (%s)", result.Name, result.Message))
		}
	}
	return fmt.Errorf("health checks failed: %s", strings.Join(failing, "; "))
}

func (o *Orchestrator) runIntegrationTests(ctx context.Context) error {
	results := o.deps.Tester.RunAllTests(ctx)
	report := integration.GenerateReport(results)

	path, err := report.Write(o.opts.ReportDir)
	if err != nil {
		o.logger.Warn().Err(err).Msg("failed to write integration report")
	} else {
		o.logger.Info().Str("path", path).Msg("integration report written")
	}

	o.deps.Metrics.SetChecksTotal("integration", "passed", report.Summary.Passed)
	o.deps.Metrics.SetChecksTotal("integration", "failed", report.Summary.Failed)

	// Failed integration tests are advisory during setup; the strict path
	// is the standalone test-only mode.
	if !report.AllPassed() {
		o.logger.Warn().
			Int("failed", report.Summary.Failed).
			Int("total", report.Summary.Total).
			Msg("integration tests reported failures")
	}
	return nil
}
