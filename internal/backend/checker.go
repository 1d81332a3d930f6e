// Package backend probes the Python/Django side of the project: interpreter,
// virtual environment, dependencies, framework configuration, database,
// cache service and security posture.
package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jaston/jaston-setup/internal/checks"
	"github.com/jaston/jaston-setup/internal/command"
	"github.com/jaston/jaston-setup/internal/config"
	"github.com/jaston/jaston-setup/internal/services"
	"github.com/jaston/jaston-setup/internal/version"
)

const (
	minPythonMajor = 3
	minPythonMinor = 10
	recPythonMinor = 12

	checkConcurrency = 4
)

// ReportFile is where the backend check report is written, relative to the
// project root.
const ReportFile = "backend_check_report.json"

var criticalPackages = []string{"django", "rest_framework", "celery", "redis", "psycopg2"}

var optionalPackages = []string{"gunicorn", "whitenoise", "channels"}

// Checker runs the backend environment battery.
type Checker struct {
	logger      zerolog.Logger
	runner      command.Runner
	loader      *config.Loader
	projectRoot string
	venvDir     string
	redisAddr   string
}

// Option customizes a Checker.
type Option func(*Checker)

// WithRedisAddr overrides the redis address probed by the cache check.
func WithRedisAddr(addr string) Option {
	return func(c *Checker) {
		c.redisAddr = addr
	}
}

// WithVenvDir overrides the virtual environment directory.
func WithVenvDir(dir string) Option {
	return func(c *Checker) {
		c.venvDir = dir
	}
}

// NewChecker constructs a backend Checker rooted at projectRoot.
func NewChecker(logger zerolog.Logger, runner command.Runner, loader *config.Loader, projectRoot string, opts ...Option) *Checker {
	c := &Checker{
		logger:      logger,
		runner:      runner,
		loader:      loader,
		projectRoot: projectRoot,
		venvDir:     filepath.Join(projectRoot, "venv"),
		redisAddr:   "127.0.0.1:6379",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// python returns the interpreter to probe with: the venv interpreter when it
// exists, the system python3 otherwise.
func (c *Checker) python() string {
	venvPython := filepath.Join(c.venvDir, "bin", "python")
	if _, err := os.Stat(venvPython); err == nil {
		return venvPython
	}
	return "python3"
}

// RunAllChecks executes every sub-check and returns results in a fixed
// order. Sub-checks are independent and run concurrently with a bounded
// limit; a panicking or erroring sub-check becomes a failed Check, never an
// aborted battery.
func (c *Checker) RunAllChecks(ctx context.Context) []checks.Check {
	probes := []struct {
		name string
		fn   func(context.Context) []checks.Check
	}{
		{"python version", c.checkPythonVersion},
		{"virtual environment", c.checkVirtualEnv},
		{"dependencies", c.checkDependencies},
		{"django configuration", c.checkDjangoConfig},
		{"database", c.checkDatabase},
		{"redis", c.checkRedis},
		{"security settings", c.checkSecurity},
		{"performance settings", c.checkPerformance},
	}

	results := make([][]checks.Check, len(probes))
	group := errgroup.Group{}
	group.SetLimit(checkConcurrency)

	for i, probe := range probes {
		group.Go(func() error {
			results[i] = c.runIsolated(ctx, probe.name, probe.fn)
			return nil
		})
	}
	_ = group.Wait()

	flat := make([]checks.Check, 0, len(probes))
	for _, list := range results {
		for _, check := range list {
			c.logger.Info().
				Str("check", check.Name).
				Bool("passed", check.Passed).
				Str("severity", string(check.Severity)).
				Msg(check.Message)
			flat = append(flat, check)
		}
	}
	return flat
}

func (c *Checker) runIsolated(ctx context.Context, name string, fn func(context.Context) []checks.Check) (out []checks.Check) {
	defer func() {
		if r := recover(); r != nil {
			out = []checks.Check{checks.Fail(name, fmt.Sprintf("check panicked: %v", r),
				"re-run with JASTON_LOG_LEVEL=debug and report the panic")}
		}
	}()
	return fn(ctx)
}

func (c *Checker) checkPythonVersion(ctx context.Context) []checks.Check {
	const name = "python version"

	out, err := c.runner.Run(ctx, c.python(), "--version")
	if err != nil {
		return []checks.Check{checks.Fail(name, fmt.Sprintf("python not runnable: %v", err),
			"install Python 3.12 and ensure python3 is on PATH")}
	}

	parsed, err := version.Parse(out.Combined())
	if err != nil {
		return []checks.Check{checks.Fail(name, fmt.Sprintf("cannot parse version from %q", out.Combined()),
			"install Python 3.12 and ensure python3 is on PATH")}
	}

	switch {
	case !parsed.AtLeast(minPythonMajor, minPythonMinor):
		return []checks.Check{checks.Fail(name,
			fmt.Sprintf("Python %s is below the minimum %d.%d", parsed, minPythonMajor, minPythonMinor),
			fmt.Sprintf("upgrade to Python %d.%d or newer", minPythonMajor, recPythonMinor))}
	case !parsed.AtLeast(minPythonMajor, recPythonMinor):
		return []checks.Check{checks.PassWarn(name,
			fmt.Sprintf("Python %s works but %d.%d is recommended", parsed, minPythonMajor, recPythonMinor),
			fmt.Sprintf("upgrade to Python %d.%d", minPythonMajor, recPythonMinor))}
	}
	return []checks.Check{checks.Pass(name, fmt.Sprintf("Python %s", parsed))}
}

func (c *Checker) checkVirtualEnv(_ context.Context) []checks.Check {
	const name = "virtual environment"

	venvPython := filepath.Join(c.venvDir, "bin", "python")
	if _, err := os.Stat(venvPython); err == nil {
		return []checks.Check{checks.Pass(name, fmt.Sprintf("virtual environment at %s", c.venvDir))}
	}
	if os.Getenv("VIRTUAL_ENV") != "" {
		return []checks.Check{checks.Pass(name, "running inside an activated virtual environment")}
	}
	return []checks.Check{checks.Fail(name, "no virtual environment found",
		fmt.Sprintf("create one with: python3 -m venv %s", c.venvDir))}
}

func (c *Checker) checkDependencies(ctx context.Context) []checks.Check {
	results := make([]checks.Check, 0, len(criticalPackages)+len(optionalPackages))

	for _, pkg := range criticalPackages {
		name := "package " + pkg
		if _, err := c.runner.Run(ctx, c.python(), "-c", "import "+pkg); err != nil {
			results = append(results, checks.Fail(name, fmt.Sprintf("%s is not importable", pkg),
				fmt.Sprintf("pip install %s", pipName(pkg))))
			continue
		}
		results = append(results, checks.Pass(name, pkg+" available"))
	}

	for _, pkg := range optionalPackages {
		name := "package " + pkg
		if _, err := c.runner.Run(ctx, c.python(), "-c", "import "+pkg); err != nil {
			results = append(results, checks.FailWarn(name, fmt.Sprintf("optional package %s missing", pkg),
				fmt.Sprintf("pip install %s", pipName(pkg))))
			continue
		}
		results = append(results, checks.Pass(name, pkg+" available"))
	}

	return results
}

// pipName maps import names to their PyPI package names where they differ.
func pipName(importName string) string {
	switch importName {
	case "rest_framework":
		return "djangorestframework"
	case "psycopg2":
		return "psycopg2-binary"
	default:
		return importName
	}
}

func (c *Checker) checkDjangoConfig(ctx context.Context) []checks.Check {
	const name = "django configuration"

	out, err := c.runner.RunIn(ctx, c.projectRoot, c.python(), "manage.py", "check")
	if err != nil {
		return []checks.Check{checks.Fail(name, fmt.Sprintf("manage.py check failed: %v", err),
			"fix the reported settings errors before continuing").
			WithDetails(map[string]string{"output": out.Combined()})}
	}
	return []checks.Check{checks.Pass(name, "manage.py check passed")}
}

func (c *Checker) checkDatabase(ctx context.Context) []checks.Check {
	const probeScript = "from django.db import connection\n" +
		"cursor = connection.cursor()\n" +
		"cursor.execute('SELECT 1')\n" +
		"print(cursor.fetchone()[0])\n"

	results := make([]checks.Check, 0, 2)

	out, err := c.runner.RunIn(ctx, c.projectRoot, c.python(), "manage.py", "shell", "-c", probeScript)
	if err != nil {
		results = append(results, checks.Fail("database connectivity",
			fmt.Sprintf("SELECT 1 probe failed: %v", err),
			"verify DB_HOST/DB_PORT/DB_USER/DB_PASSWORD and that the database server is running"))
		return results
	}
	results = append(results, checks.Pass("database connectivity", "SELECT 1 returned a row"))

	// Migration-pending detection scans textual output for the unapplied
	// marker. Best effort: it can false-negative if the format changes.
	out, err = c.runner.RunIn(ctx, c.projectRoot, c.python(), "manage.py", "showmigrations", "--plan")
	if err != nil {
		results = append(results, checks.FailWarn("migrations",
			fmt.Sprintf("showmigrations failed: %v", err),
			"run: python manage.py showmigrations"))
		return results
	}
	if strings.Contains(out.Combined(), "[ ]") {
		results = append(results, checks.FailWarn("migrations", "unapplied migrations detected",
			"run: python manage.py migrate"))
		return results
	}
	results = append(results, checks.Pass("migrations", "no unapplied migrations"))
	return results
}

func (c *Checker) checkRedis(ctx context.Context) []checks.Check {
	const name = "redis"

	if err := services.PingRedis(ctx, c.redisAddr); err != nil {
		return []checks.Check{checks.Fail(name, fmt.Sprintf("redis ping failed: %v", err),
			"start the cache server: redis-server --daemonize yes")}
	}
	return []checks.Check{checks.Pass(name, "redis answered PING")}
}

func (c *Checker) checkSecurity(_ context.Context) []checks.Check {
	const name = "security settings"

	cfg, err := c.loader.SecurityConfig()
	if err != nil {
		return []checks.Check{checks.Fail(name, err.Error(),
			"set SECRET_KEY (>=32 chars) and ensure DEBUG=false for production")}
	}

	if cfg.Environment != config.EnvProduction {
		return []checks.Check{checks.Pass(name, fmt.Sprintf("security settings valid for %s", cfg.Environment))}
	}

	missing := make([]string, 0, 3)
	for _, key := range []string{"SECURE_SSL_REDIRECT", "SESSION_COOKIE_SECURE", "CSRF_COOKIE_SECURE"} {
		if enabled, err := c.loader.GetBool(key, false, false); err != nil || !enabled {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return []checks.Check{checks.FailWarn(name,
			fmt.Sprintf("production hardening flags disabled: %s", strings.Join(missing, ", ")),
			"enable "+strings.Join(missing, ", ")+" in the environment")}
	}
	return []checks.Check{checks.Pass(name, "production security settings enabled")}
}

func (c *Checker) checkPerformance(_ context.Context) []checks.Check {
	const name = "performance settings"

	connMaxAge, err := c.loader.GetInt("CONN_MAX_AGE", 0, false)
	if err != nil || connMaxAge < 0 {
		return []checks.Check{checks.FailWarn(name, "CONN_MAX_AGE is invalid",
			"set CONN_MAX_AGE to a non-negative number of seconds (60 is a good start)")}
	}

	cacheBackend, _ := c.loader.GetString("CACHE_BACKEND", "", false)
	environment, _ := c.loader.GetString(config.KeyAppEnv, config.EnvDevelopment, false)
	if environment == config.EnvProduction && !strings.Contains(cacheBackend, "redis") {
		return []checks.Check{checks.FailWarn(name,
			"production should use the redis cache backend",
			"set CACHE_BACKEND=django_redis.cache.RedisCache")}
	}

	if connMaxAge == 0 {
		return []checks.Check{checks.PassWarn(name,
			"persistent database connections disabled (CONN_MAX_AGE=0)",
			"set CONN_MAX_AGE=60 to reuse database connections")}
	}
	return []checks.Check{checks.Pass(name, fmt.Sprintf("CONN_MAX_AGE=%d", connMaxAge))}
}
