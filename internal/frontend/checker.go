// Package frontend probes the JavaScript toolchain side of the project:
// runtime, package managers, project layout, manifest, build tooling and
// housekeeping files. Every sub-check is a read-only filesystem or
// version-probe command.
package frontend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jaston/jaston-setup/internal/checks"
	"github.com/jaston/jaston-setup/internal/command"
	"github.com/jaston/jaston-setup/internal/version"
)

const (
	minNodeMajor = 18
	recNodeMajor = 20

	checkConcurrency = 4
)

// ReportFile is where the frontend check report is written, relative to the
// project root.
const ReportFile = "frontend_check_report.json"

var criticalDependencies = []string{"react", "react-dom", "vite"}

var recommendedDependencies = []string{"typescript", "axios", "tailwindcss"}

var requiredScripts = []string{"dev", "build", "preview", "lint"}

// manifest is the subset of package.json the checker reads.
type manifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

func (m manifest) hasDependency(name string) bool {
	if _, ok := m.Dependencies[name]; ok {
		return true
	}
	_, ok := m.DevDependencies[name]
	return ok
}

// Checker runs the frontend environment battery.
type Checker struct {
	logger      zerolog.Logger
	runner      command.Runner
	frontendDir string
}

// NewChecker constructs a frontend Checker for the given frontend directory.
func NewChecker(logger zerolog.Logger, runner command.Runner, frontendDir string) *Checker {
	return &Checker{logger: logger, runner: runner, frontendDir: frontendDir}
}

// RunAllChecks executes every sub-check with a bounded concurrent fan-out
// and returns results in a fixed order. Command timeouts are check failures,
// never crashes.
func (c *Checker) RunAllChecks(ctx context.Context) []checks.Check {
	probes := []struct {
		name string
		fn   func(context.Context) []checks.Check
	}{
		{"node version", c.checkNodeVersion},
		{"package managers", c.checkPackageManagers},
		{"project structure", c.checkProjectStructure},
		{"manifest dependencies", c.checkManifest},
		{"build tooling", c.checkBuildTooling},
		{"scripts", c.checkScripts},
		{"gitignore", c.checkGitignore},
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

func (c *Checker) checkNodeVersion(ctx context.Context) []checks.Check {
	const name = "node version"

	out, err := c.runner.Run(ctx, "node", "--version")
	if err != nil {
		return []checks.Check{checks.Fail(name, fmt.Sprintf("node not runnable: %v", err),
			"install Node.js 20 LTS")}
	}
	parsed, err := version.Parse(out.Combined())
	if err != nil {
		return []checks.Check{checks.Fail(name, fmt.Sprintf("cannot parse version from %q", out.Combined()),
			"install Node.js 20 LTS")}
	}

	switch {
	case !parsed.AtLeast(minNodeMajor, 0):
		return []checks.Check{checks.Fail(name,
			fmt.Sprintf("Node %s is below the minimum %d", parsed, minNodeMajor),
			fmt.Sprintf("upgrade to Node %d or newer", recNodeMajor))}
	case !parsed.AtLeast(recNodeMajor, 0):
		return []checks.Check{checks.PassWarn(name,
			fmt.Sprintf("Node %s works but %d is recommended", parsed, recNodeMajor),
			fmt.Sprintf("upgrade to Node %d", recNodeMajor))}
	}
	return []checks.Check{checks.Pass(name, fmt.Sprintf("Node %s", parsed))}
}

func (c *Checker) checkPackageManagers(ctx context.Context) []checks.Check {
	results := make([]checks.Check, 0, 2)

	if out, err := c.runner.Run(ctx, "npm", "--version"); err != nil {
		results = append(results, checks.Fail("npm", fmt.Sprintf("npm not runnable: %v", err),
			"install npm (ships with Node.js)"))
	} else {
		results = append(results, checks.Pass("npm", "npm "+strings.TrimSpace(out.Combined())))
	}

	// bun is the optional fast path for installs; its absence only warns.
	if out, err := c.runner.Run(ctx, "bun", "--version"); err != nil {
		results = append(results, checks.FailWarn("bun", "bun not available",
			"install bun for faster dependency installs: https://bun.sh"))
	} else {
		results = append(results, checks.Pass("bun", "bun "+strings.TrimSpace(out.Combined())))
	}

	return results
}

func (c *Checker) checkProjectStructure(_ context.Context) []checks.Check {
	required := []struct {
		path string
		kind string
	}{
		{".", "directory"},
		{"package.json", "file"},
		{"src", "directory"},
		{"index.html", "file"},
	}

	results := make([]checks.Check, 0, len(required))
	for _, entry := range required {
		name := "structure " + entry.path
		full := filepath.Join(c.frontendDir, entry.path)
		info, err := os.Stat(full)
		switch {
		case err != nil:
			results = append(results, checks.Fail(name, fmt.Sprintf("%s missing at %s", entry.kind, full),
				"scaffold the frontend: npm create vite@latest"))
		case entry.kind == "directory" && !info.IsDir():
			results = append(results, checks.Fail(name, full+" is not a directory",
				"scaffold the frontend: npm create vite@latest"))
		default:
			results = append(results, checks.Pass(name, entry.path+" present"))
		}
	}
	return results
}

func (c *Checker) readManifest() (manifest, error) {
	data, err := os.ReadFile(filepath.Join(c.frontendDir, "package.json"))
	if err != nil {
		return manifest{}, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("parse package.json: %w", err)
	}
	return m, nil
}

func (c *Checker) checkManifest(_ context.Context) []checks.Check {
	m, err := c.readManifest()
	if err != nil {
		return []checks.Check{checks.Fail("manifest", fmt.Sprintf("cannot read package.json: %v", err),
			"create package.json: npm init -y")}
	}

	results := make([]checks.Check, 0, len(criticalDependencies)+len(recommendedDependencies))
	for _, dep := range criticalDependencies {
		name := "dependency " + dep
		if !m.hasDependency(dep) {
			results = append(results, checks.Fail(name, dep+" missing from package.json",
				"npm install "+dep))
			continue
		}
		results = append(results, checks.Pass(name, dep+" declared"))
	}
	for _, dep := range recommendedDependencies {
		name := "dependency " + dep
		if !m.hasDependency(dep) {
			results = append(results, checks.FailWarn(name, dep+" missing from package.json",
				"npm install --save-dev "+dep))
			continue
		}
		results = append(results, checks.Pass(name, dep+" declared"))
	}
	return results
}

func (c *Checker) checkBuildTooling(_ context.Context) []checks.Check {
	results := make([]checks.Check, 0, 2)

	viteConfig := ""
	for _, candidate := range []string{"vite.config.ts", "vite.config.js", "vite.config.mjs"} {
		if _, err := os.Stat(filepath.Join(c.frontendDir, candidate)); err == nil {
			viteConfig = candidate
			break
		}
	}
	if viteConfig == "" {
		results = append(results, checks.Fail("vite config", "no vite.config.* found",
			"create vite.config.ts with defineConfig"))
	} else {
		results = append(results, checks.Pass("vite config", viteConfig+" present"))
	}

	tsconfigPath := filepath.Join(c.frontendDir, "tsconfig.json")
	data, err := os.ReadFile(tsconfigPath)
	switch {
	case err != nil:
		results = append(results, checks.FailWarn("tsconfig", "tsconfig.json missing",
			"add a tsconfig.json for type checking"))
	case !json.Valid(data):
		results = append(results, checks.Fail("tsconfig", "tsconfig.json is not valid JSON",
			"fix the syntax error in tsconfig.json"))
	default:
		results = append(results, checks.Pass("tsconfig", "tsconfig.json parses"))
	}

	return results
}

func (c *Checker) checkScripts(_ context.Context) []checks.Check {
	m, err := c.readManifest()
	if err != nil {
		return []checks.Check{checks.Fail("scripts", fmt.Sprintf("cannot read package.json: %v", err),
			"create package.json: npm init -y")}
	}

	results := make([]checks.Check, 0, len(requiredScripts))
	for _, script := range requiredScripts {
		name := "script " + script
		if _, ok := m.Scripts[script]; !ok {
			severity := checks.Fail
			if script == "lint" || script == "preview" {
				severity = checks.FailWarn
			}
			results = append(results, severity(name, fmt.Sprintf("%q script missing", script),
				fmt.Sprintf("add a %q entry to package.json scripts", script)))
			continue
		}
		results = append(results, checks.Pass(name, script+" script declared"))
	}
	return results
}

func (c *Checker) checkGitignore(_ context.Context) []checks.Check {
	const name = "gitignore"

	data, err := os.ReadFile(filepath.Join(c.frontendDir, ".gitignore"))
	if err != nil {
		return []checks.Check{checks.FailWarn(name, ".gitignore missing",
			"add a .gitignore covering node_modules and dist")}
	}

	content := string(data)
	missing := make([]string, 0, 2)
	for _, entry := range []string{"node_modules", "dist"} {
		if !strings.Contains(content, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) > 0 {
		return []checks.Check{checks.FailWarn(name,
			fmt.Sprintf(".gitignore does not cover: %s", strings.Join(missing, ", ")),
			"add "+strings.Join(missing, " and ")+" to .gitignore")}
	}
	return []checks.Check{checks.Pass(name, ".gitignore covers build artifacts and dependency caches")}
}
