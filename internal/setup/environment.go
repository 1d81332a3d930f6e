package setup

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaston/jaston-setup/internal/checks"
	"github.com/jaston/jaston-setup/internal/services"
)

const minFreeDiskBytes = 1 << 30

const environmentReportFile = "environment_check_report.json"

// requiredTools are probed with their version flag; a missing binary is an
// error-severity finding.
var requiredTools = []struct {
	name string
	bin  string
	args []string
	fix  string
}{
	{"python", "python3", []string{"--version"}, "install Python 3.12 or newer"},
	{"node", "node", []string{"--version"}, "install Node.js 20 or newer"},
	{"npm", "npm", []string{"--version"}, "install npm (ships with Node.js)"},
	{"git", "git", []string{"--version"}, "install git"},
}

// runEnvironmentChecks validates configuration and the machine before
// anything is installed. Fixable findings get one automatic remediation
// pass and a re-run.
func (o *Orchestrator) runEnvironmentChecks(ctx context.Context) error {
	if o.deps.Loader != nil {
		if err := o.deps.Loader.ValidateAll(); err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}
	}

	results := o.environmentBattery(ctx)

	if hasErrorFailures(results) {
		o.fixEnvironmentIssues(ctx, results)
		results = o.environmentBattery(ctx)
	}

	report := checks.GenerateReport(results)
	path := filepath.Join(o.opts.ReportDir, environmentReportFile)
	if err := checks.WriteReport(path, report); err != nil {
		o.logger.Warn().Err(err).Msg("failed to write environment report")
	}
	o.deps.Metrics.SetChecksTotal("environment", "passed", report.Summary.Passed)
	o.deps.Metrics.SetChecksTotal("environment", "failed", report.Summary.Failed)

	if report.Summary.Errors > 0 {
		return fmt.Errorf("environment not ready: %s", failureSummary(results))
	}
	return nil
}

func (o *Orchestrator) environmentBattery(ctx context.Context) []checks.Check {
	results := make([]checks.Check, 0, 8)

	for _, tool := range requiredTools {
		out, err := o.deps.Runner.Run(ctx, tool.bin, tool.args...)
		if err != nil || out.ExitCode != 0 {
			results = append(results, checks.Fail(tool.name, tool.bin+" is not available", tool.fix))
			continue
		}
		results = append(results, checks.Pass(tool.name, strings.TrimSpace(out.Combined())))
	}

	redisUp := services.PingRedis(ctx, o.opts.RedisAddr) == nil
	if redisUp {
		results = append(results, checks.Pass("redis", "redis answering at "+o.opts.RedisAddr))
	} else {
		results = append(results, checks.Fail("redis",
			"redis not answering at "+o.opts.RedisAddr,
			"install redis and start redis-server"))
	}

	for name, port := range services.DefaultPortMap() {
		if name == services.ServiceRedis && redisUp {
			continue
		}
		if name == services.ServiceDatabase {
			// An external database listening on its port is expected.
			continue
		}
		checkName := "port " + name
		if services.PortInUse("127.0.0.1", port) {
			results = append(results, checks.Fail(checkName,
				fmt.Sprintf("port %d needed by %s is already in use", port, name),
				fmt.Sprintf("stop the process listening on port %d", port)).
				WithDetails(map[string]string{"port": strconv.Itoa(port)}))
			continue
		}
		results = append(results, checks.Pass(checkName, fmt.Sprintf("port %d is free", port)))
	}

	free, err := freeDiskBytes(o.opts.ProjectRoot)
	switch {
	case err != nil:
		results = append(results, checks.FailWarn("disk space", "could not determine free disk space: "+err.Error(), ""))
	case free < minFreeDiskBytes:
		results = append(results, checks.Fail("disk space",
			fmt.Sprintf("only %d MiB free, at least 1 GiB required", free>>20), ""))
	default:
		results = append(results, checks.Pass("disk space", fmt.Sprintf("%d MiB free", free>>20)))
	}

	return results
}

// fixEnvironmentIssues remediates what can be remediated: a stopped redis
// is started and busy ports are reclaimed. Missing tools, versions and
// disk space are never touched.
func (o *Orchestrator) fixEnvironmentIssues(ctx context.Context, results []checks.Check) {
	for _, result := range results {
		if result.Passed || result.Severity != checks.SeverityError {
			continue
		}
		switch {
		case result.Name == "redis":
			if err := o.deps.Manager.EnsureRedis(ctx, o.opts.RedisAddr); err != nil {
				o.logger.Warn().Err(err).Msg("could not start redis")
				o.deps.Metrics.IncRemediations("redis_start", "failure")
			} else {
				o.deps.Metrics.IncRemediations("redis_start", "success")
			}
		case strings.HasPrefix(result.Name, "port "):
			port := result.Details["port"]
			if port == "" {
				continue
			}
			if err := o.freePort(ctx, port); err != nil {
				o.logger.Warn().Err(err).Str("port", port).Msg("could not free port")
				o.deps.Metrics.IncRemediations("free_port", "failure")
			} else {
				o.deps.Metrics.IncRemediations("free_port", "success")
			}
		}
	}
}

// freePort terminates whatever listens on the port. lsof gives the owning
// PIDs; a plain TERM is sent so the owner can exit cleanly.
func (o *Orchestrator) freePort(ctx context.Context, port string) error {
	out, err := o.deps.Runner.Run(ctx, "lsof", "-ti", ":"+port)
	if err != nil {
		return fmt.Errorf("lsof: %w", err)
	}
	for _, line := range strings.Fields(out.Stdout) {
		pid, err := strconv.Atoi(line)
		if err != nil || pid <= 0 {
			continue
		}
		o.logger.Info().Int("pid", pid).Str("port", port).Msg("terminating port owner")
		if _, err := o.deps.Runner.Run(ctx, "kill", strconv.Itoa(pid)); err != nil {
			return fmt.Errorf("kill %d: %w", pid, err)
		}
	}
	return nil
}

func hasErrorFailures(results []checks.Check) bool {
	for _, result := range results {
		if !result.Passed && result.Severity == checks.SeverityError {
			return true
		}
	}
	return false
}

func failureSummary(results []checks.Check) string {
	var names []string
	for _, result := range results {
		if !result.Passed && result.Severity == checks.SeverityError {
			names = append(names, result.Name)
		}
	}
	return strings.Join(names, ", ")
}
