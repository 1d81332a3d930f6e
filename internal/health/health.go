// Package health verifies that a bootstrapped stack is actually serving:
// the web process answers HTTP, redis answers PING, and the database
// connection configured in Django settings is reachable.
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/jaston/jaston-setup/internal/command"
	"github.com/jaston/jaston-setup/internal/services"
)

const probeTimeout = 5 * time.Second

// Result is the verdict of one probe.
type Result struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message"`
}

// Checker runs the post-setup health battery.
type Checker struct {
	logger      zerolog.Logger
	runner      command.Runner
	client      *retryablehttp.Client
	projectRoot string
	webURL      string
	redisAddr   string
}

// NewChecker constructs a Checker. webURL points at the web process root,
// typically http://127.0.0.1:8000.
func NewChecker(logger zerolog.Logger, runner command.Runner, projectRoot, webURL, redisAddr string) *Checker {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: probeTimeout}

	return &Checker{
		logger:      logger,
		runner:      runner,
		client:      client,
		projectRoot: projectRoot,
		webURL:      strings.TrimRight(webURL, "/"),
		redisAddr:   redisAddr,
	}
}

// RunAll executes every probe and reports whether all of them passed.
func (c *Checker) RunAll(ctx context.Context) ([]Result, bool) {
	probes := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"web endpoint", c.checkWeb},
		{"redis", c.checkRedis},
		{"database", c.checkDatabase},
	}

	results := make([]Result, 0, len(probes))
	healthy := true
	for _, probe := range probes {
		result := Result{Name: probe.name, Healthy: true, Message: "ok"}
		if err := probe.fn(ctx); err != nil {
			result.Healthy = false
			result.Message = err.Error()
			healthy = false
		}
		c.logger.Info().
			Str("probe", result.Name).
			Bool("healthy", result.Healthy).
			Str("message", result.Message).
			Msg("health probe")
		results = append(results, result)
	}
	return results, healthy
}

// checkWeb probes the admin login page. Django redirects it to the login
// form, so anything in the 2xx/3xx range counts as alive.
func (c *Checker) checkWeb(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodGet, c.webURL+"/admin/", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("web process not answering: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("web process answered %s", resp.Status)
	}
	return nil
}

func (c *Checker) checkRedis(ctx context.Context) error {
	if err := services.PingRedis(ctx, c.redisAddr); err != nil {
		return fmt.Errorf("redis at %s: %w", c.redisAddr, err)
	}
	return nil
}

// checkDatabase delegates to Django's own system check so the probe uses
// the exact settings the application runs with.
func (c *Checker) checkDatabase(ctx context.Context) error {
	out, err := c.runner.RunIn(ctx, c.projectRoot,
		c.pythonBin(), "manage.py", "check", "--database", "default")
	if err != nil {
		return fmt.Errorf("database check: %w", err)
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("database check failed: %s", strings.TrimSpace(out.Combined()))
	}
	return nil
}

func (c *Checker) pythonBin() string {
	venv := filepath.Join(c.projectRoot, "venv", "bin", "python")
	if _, err := os.Stat(venv); err == nil {
		return venv
	}
	return "python3"
}
