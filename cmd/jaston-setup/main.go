// Command jaston-setup bootstraps the full development stack: it validates
// the environment, prepares backend and frontend, launches the service
// tree and verifies the result with health checks and integration tests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jaston/jaston-setup/internal/backend"
	"github.com/jaston/jaston-setup/internal/checkpoint"
	"github.com/jaston/jaston-setup/internal/command"
	"github.com/jaston/jaston-setup/internal/config"
	"github.com/jaston/jaston-setup/internal/frontend"
	"github.com/jaston/jaston-setup/internal/health"
	"github.com/jaston/jaston-setup/internal/integration"
	"github.com/jaston/jaston-setup/internal/lockfile"
	"github.com/jaston/jaston-setup/internal/logging"
	"github.com/jaston/jaston-setup/internal/metrics"
	"github.com/jaston/jaston-setup/internal/notify"
	"github.com/jaston/jaston-setup/internal/server"
	"github.com/jaston/jaston-setup/internal/services"
	"github.com/jaston/jaston-setup/internal/setup"
)

const commandTimeout = 10 * time.Minute

type cliOptions struct {
	projectRoot  string
	frontendDir  string
	envFile      string
	redisAddr    string
	webURL       string
	workflowFile string
	statusPort   int
	stop         bool
	restart      bool
	testOnly     bool
	skipTests    bool
	noResume     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:           "jaston-setup",
		Short:         "Bootstrap and verify the Jaston development stack",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.NewConsole()
			if err := run(cmd.Context(), logger, opts); err != nil {
				logger.Error().Err(err).Msg("setup failed")
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.projectRoot, "project-root", ".", "Django project root")
	flags.StringVar(&opts.frontendDir, "frontend-dir", "frontend", "frontend directory, relative to the project root unless absolute")
	flags.StringVar(&opts.envFile, "env-file", ".env", "environment file to seed configuration from")
	flags.StringVar(&opts.redisAddr, "redis-addr", "127.0.0.1:6379", "redis address")
	flags.StringVar(&opts.webURL, "web-url", "http://127.0.0.1:8000", "base URL of the web process")
	flags.StringVar(&opts.workflowFile, "workflows", "", "extra workflow catalog (YAML)")
	flags.IntVar(&opts.statusPort, "status-port", 0, "serve /healthz and /metrics on this port (0 disables)")
	flags.BoolVar(&opts.stop, "stop", false, "stop all managed services and exit")
	flags.BoolVar(&opts.restart, "restart", false, "stop services, discard the checkpoint and run from scratch")
	flags.BoolVar(&opts.testOnly, "test-only", false, "run only the integration test suites against a running stack")
	flags.BoolVar(&opts.skipTests, "skip-tests", false, "skip the integration test phase")
	flags.BoolVar(&opts.noResume, "no-resume", false, "ignore any existing checkpoint")

	return cmd
}

func run(ctx context.Context, logger zerolog.Logger, opts *cliOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	projectRoot, err := filepath.Abs(opts.projectRoot)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	frontendDir := opts.frontendDir
	if !filepath.IsAbs(frontendDir) {
		frontendDir = filepath.Join(projectRoot, frontendDir)
	}

	registry := services.NewRegistry()
	manager := services.NewManager(logger, registry, filepath.Join(projectRoot, "logs"))
	store := checkpoint.NewStore(filepath.Join(projectRoot, setup.CheckpointFile), logger)

	if opts.stop || opts.restart {
		stopServices(ctx, logger, manager, store)
		if opts.stop {
			return nil
		}
	}

	if opts.testOnly {
		return runTestsOnly(ctx, logger, opts)
	}

	loader, err := config.NewLoader(filepath.Join(projectRoot, opts.envFile))
	if err != nil {
		return err
	}

	statusPort := opts.statusPort
	if statusPort == 0 {
		statusPort, _ = loader.GetInt("JASTON_STATUS_PORT", 0, false)
	}

	runner := command.NewRunner(command.WithTimeout(commandTimeout))
	collector := metrics.New()
	tracker := server.NewTracker()
	server.Start(ctx, logger, tracker, registry, collector, statusPort)

	tester, err := buildTester(logger, opts)
	if err != nil {
		return err
	}

	deps := setup.Deps{
		Runner:      runner,
		Loader:      loader,
		Checkpoints: store,
		Lock:        lockfile.New(filepath.Join(projectRoot, setup.LockFile)),
		Manager:     manager,
		Backend:     backend.NewChecker(logger, runner, loader, projectRoot, backend.WithRedisAddr(opts.redisAddr)),
		Frontend:    frontend.NewChecker(logger, runner, frontendDir),
		Health:      health.NewChecker(logger, runner, projectRoot, opts.webURL, opts.redisAddr),
		Tester:      tester,
		Notifier:    buildNotifier(logger, loader),
		Metrics:     collector,
		Tracker:     tracker,
	}
	setupOpts := setup.Options{
		ProjectRoot: projectRoot,
		FrontendDir: frontendDir,
		ReportDir:   projectRoot,
		RedisAddr:   opts.redisAddr,
		WebURL:      opts.webURL,
		SkipTests:   opts.skipTests,
		Resume:      !opts.noResume && !opts.restart,
	}

	orchestrator := setup.New(logger, deps, setupOpts)
	if err := orchestrator.Run(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Warn().Msg("interrupted, services stopped")
		}
		return err
	}
	return nil
}

// stopServices tears down everything the last run left behind, using the
// checkpoint to find orphaned PIDs from previous invocations.
func stopServices(ctx context.Context, logger zerolog.Logger, manager *services.Manager, store *checkpoint.Store) {
	manager.StopAll(ctx)

	cp, found, err := store.Load(ctx)
	if err == nil && found {
		for name, state := range cp.Services {
			if services.Status(state.Status) != services.StatusRunning || state.PID <= 0 {
				continue
			}
			logger.Info().Str("service", name).Int("pid", state.PID).Msg("stopping checkpointed service")
			manager.StopPID(state.PID)
		}
	}
	if err := store.Clear(); err != nil {
		logger.Warn().Err(err).Msg("failed to clear checkpoint")
	}
	logger.Info().Msg("services stopped")
}

// runTestsOnly exercises the integration suites against an already running
// stack. Any failed test yields a nonzero exit.
func runTestsOnly(ctx context.Context, logger zerolog.Logger, opts *cliOptions) error {
	tester, err := buildTester(logger, opts)
	if err != nil {
		return err
	}

	results := tester.RunAllTests(ctx)
	report := integration.GenerateReport(results)
	if path, err := report.Write(opts.projectRoot); err != nil {
		logger.Warn().Err(err).Msg("failed to write integration report")
	} else {
		logger.Info().Str("path", path).Msg("integration report written")
	}

	logger.Info().
		Int("total", report.Summary.Total).
		Int("passed", report.Summary.Passed).
		Int("failed", report.Summary.Failed).
		Float64("success_rate", report.Summary.SuccessRate).
		Msg("integration run finished")

	if !report.AllPassed() {
		return fmt.Errorf("%d of %d integration tests failed", report.Summary.Failed, report.Summary.Total)
	}
	return nil
}

func buildTester(logger zerolog.Logger, opts *cliOptions) (*integration.Tester, error) {
	workflows := integration.BuiltinCatalog()
	extra, err := integration.LoadCatalog(opts.workflowFile)
	if err != nil {
		return nil, err
	}
	workflows = append(workflows, extra...)
	return integration.NewTester(logger, opts.webURL, integration.WithWorkflows(workflows)), nil
}

func buildNotifier(logger zerolog.Logger, loader *config.Loader) notify.Notifier {
	slackURL, _ := loader.GetString("SLACK_WEBHOOK_URL", "", false)
	webhookURL, _ := loader.GetString("SETUP_WEBHOOK_URL", "", false)

	notifiers := []notify.Notifier{notify.NewSlackNotifier(logger, slackURL)}
	if webhook, err := notify.NewWebhookNotifier(logger, webhookURL, ""); err != nil {
		logger.Warn().Err(err).Msg("webhook notifier disabled")
	} else if webhook != nil {
		notifiers = append(notifiers, webhook)
	}
	return notify.NewMultiNotifier(notifiers...)
}
