package backend

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jaston/jaston-setup/internal/checks"
	"github.com/jaston/jaston-setup/internal/command"
	"github.com/jaston/jaston-setup/internal/config"
)

// scriptRunner resolves commands against a table of canned outcomes. A
// command with no entry succeeds silently. RunAllChecks fans sub-checks
// out across goroutines, so the call log is mutex-guarded.
type scriptRunner struct {
	outputs map[string]command.Output
	errs    map[string]error

	mu    sync.Mutex
	calls []string
}

func (r *scriptRunner) Run(ctx context.Context, name string, args ...string) (command.Output, error) {
	return r.RunIn(ctx, "", name, args...)
}

func (r *scriptRunner) RunIn(_ context.Context, _ string, name string, args ...string) (command.Output, error) {
	key := strings.Join(append([]string{filepath.Base(name)}, args...), " ")
	r.mu.Lock()
	r.calls = append(r.calls, key)
	r.mu.Unlock()
	if err, ok := r.errs[key]; ok {
		return command.Output{ExitCode: 1}, err
	}
	if out, ok := r.outputs[key]; ok {
		return out, nil
	}
	return command.Output{}, nil
}

func (r *scriptRunner) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newHealthyRunner() *scriptRunner {
	return &scriptRunner{
		outputs: map[string]command.Output{
			"python --version": {Stdout: "Python 3.12.4\n"},
			"python manage.py shell -c from django.db import connection\ncursor = connection.cursor()\ncursor.execute('SELECT 1')\nprint(cursor.fetchone()[0])\n": {Stdout: "1\n"},
			"python manage.py showmigrations --plan": {Stdout: "[X] core.0001_initial\n[X] properties.0001_initial\n"},
		},
		errs: map[string]error{},
	}
}

func newTestChecker(t *testing.T, runner command.Runner, redisAddr string) *Checker {
	t.Helper()
	root := t.TempDir()
	venv := filepath.Join(root, "venv")
	if err := os.MkdirAll(filepath.Join(venv, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(venv, "bin", "python"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	t.Setenv(config.KeySecretKey, strings.Repeat("s", 40))
	t.Setenv(config.KeyAppEnv, config.EnvDevelopment)
	t.Setenv(config.KeyDebug, "true")
	t.Setenv("CONN_MAX_AGE", "60")

	return NewChecker(zerolog.Nop(), runner, &config.Loader{}, root,
		WithVenvDir(venv), WithRedisAddr(redisAddr))
}

func TestRunAllChecksHealthyEnvironment(t *testing.T) {
	redisAddr := startFakeRedis(t)
	runner := newHealthyRunner()
	checker := newTestChecker(t, runner, redisAddr)

	results := checker.RunAllChecks(context.Background())
	if len(results) == 0 {
		t.Fatal("no checks produced")
	}

	for _, check := range results {
		if check.Severity == checks.SeverityError {
			t.Errorf("unexpected error-severity check %q: %s (%s)", check.Name, check.Message, check.FixSuggestion)
		}
	}
	if len(runner.seen()) == 0 {
		t.Fatal("expected the concurrent sub-checks to run commands")
	}
}

func TestCheckPythonVersionPolicy(t *testing.T) {
	cases := []struct {
		name         string
		output       string
		wantPassed   bool
		wantSeverity checks.Severity
	}{
		{name: "recommended", output: "Python 3.12.1", wantPassed: true, wantSeverity: checks.SeverityInfo},
		{name: "above minimum below recommended", output: "Python 3.11.8", wantPassed: true, wantSeverity: checks.SeverityWarning},
		{name: "below minimum", output: "Python 3.9.18", wantPassed: false, wantSeverity: checks.SeverityError},
		{name: "unparseable", output: "zsh: command not found", wantPassed: false, wantSeverity: checks.SeverityError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &scriptRunner{
				outputs: map[string]command.Output{"python --version": {Stdout: tc.output}},
				errs:    map[string]error{},
			}
			checker := newTestChecker(t, runner, "127.0.0.1:1")

			result := checker.checkPythonVersion(context.Background())[0]
			if result.Passed != tc.wantPassed || result.Severity != tc.wantSeverity {
				t.Fatalf("check = passed=%v severity=%q, want passed=%v severity=%q",
					result.Passed, result.Severity, tc.wantPassed, tc.wantSeverity)
			}
		})
	}
}

func TestCheckDependenciesSeverities(t *testing.T) {
	runner := newHealthyRunner()
	runner.errs["python -c import celery"] = errors.New("ModuleNotFoundError")
	runner.errs["python -c import gunicorn"] = errors.New("ModuleNotFoundError")
	checker := newTestChecker(t, runner, "127.0.0.1:1")

	results := checker.checkDependencies(context.Background())

	var celery, gunicorn *checks.Check
	for i := range results {
		switch results[i].Name {
		case "package celery":
			celery = &results[i]
		case "package gunicorn":
			gunicorn = &results[i]
		}
	}
	if celery == nil || celery.Passed || celery.Severity != checks.SeverityError {
		t.Fatalf("missing critical package should be an error: %+v", celery)
	}
	if gunicorn == nil || gunicorn.Passed || gunicorn.Severity != checks.SeverityWarning {
		t.Fatalf("missing optional package should be a warning: %+v", gunicorn)
	}
}

func TestCheckDatabaseUnappliedMigrations(t *testing.T) {
	runner := newHealthyRunner()
	runner.outputs["python manage.py showmigrations --plan"] = command.Output{
		Stdout: "[X] core.0001_initial\n[ ] leases.0002_add_deposit\n",
	}
	checker := newTestChecker(t, runner, "127.0.0.1:1")

	results := checker.checkDatabase(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	migrations := results[1]
	if migrations.Passed || migrations.Severity != checks.SeverityWarning {
		t.Fatalf("unapplied migrations should warn: %+v", migrations)
	}
	if !strings.Contains(migrations.FixSuggestion, "migrate") {
		t.Fatalf("fix suggestion should mention migrate: %q", migrations.FixSuggestion)
	}
}

func TestCheckRedisFailure(t *testing.T) {
	checker := newTestChecker(t, newHealthyRunner(), "127.0.0.1:1")
	result := checker.checkRedis(context.Background())[0]
	if result.Passed || result.Severity != checks.SeverityError {
		t.Fatalf("unreachable redis should be an error: %+v", result)
	}
}

func TestChecksNeverPanicOutward(t *testing.T) {
	checker := newTestChecker(t, newHealthyRunner(), "127.0.0.1:1")
	results := checker.runIsolated(context.Background(), "exploding", func(context.Context) []checks.Check {
		panic("boom")
	})
	if len(results) != 1 || results[0].Passed {
		t.Fatalf("panic should surface as one failed check: %+v", results)
	}
}

func startFakeRedis(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 64)
				if _, err := c.Read(buf); err != nil {
					return
				}
				_, _ = c.Write([]byte("+PONG\r\n"))
			}(conn)
		}
	}()

	return listener.Addr().String()
}
