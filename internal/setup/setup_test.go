package setup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jaston/jaston-setup/internal/backend"
	"github.com/jaston/jaston-setup/internal/checkpoint"
	"github.com/jaston/jaston-setup/internal/checks"
	"github.com/jaston/jaston-setup/internal/command"
	"github.com/jaston/jaston-setup/internal/config"
	"github.com/jaston/jaston-setup/internal/lockfile"
	"github.com/jaston/jaston-setup/internal/services"
)

// recordingRunner remembers every invocation and answers from a canned
// table keyed by binary name plus arguments.
type recordingRunner struct {
	mu      sync.Mutex
	calls   []string
	outputs map[string]command.Output
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) (command.Output, error) {
	return r.record(name, args)
}

func (r *recordingRunner) RunIn(_ context.Context, _ string, name string, args ...string) (command.Output, error) {
	return r.record(name, args)
}

func (r *recordingRunner) record(name string, args []string) (command.Output, error) {
	key := filepath.Base(name) + " " + strings.Join(args, " ")
	r.mu.Lock()
	r.calls = append(r.calls, key)
	r.mu.Unlock()
	if out, ok := r.outputs[key]; ok {
		return out, nil
	}
	return command.Output{}, nil
}

func (r *recordingRunner) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestOrchestrator(t *testing.T, runner command.Runner, resume bool) *Orchestrator {
	t.Helper()
	dir := t.TempDir()
	logger := zerolog.Nop()
	manager := services.NewManager(logger, services.NewRegistry(), filepath.Join(dir, "logs"))

	deps := Deps{
		Runner:      runner,
		Checkpoints: checkpoint.NewStore(filepath.Join(dir, CheckpointFile), logger),
		Lock:        lockfile.New(filepath.Join(dir, LockFile)),
		Manager:     manager,
	}
	opts := Options{
		ProjectRoot: dir,
		FrontendDir: filepath.Join(dir, "frontend"),
		ReportDir:   dir,
		RedisAddr:   "127.0.0.1:6379",
		WebURL:      "http://127.0.0.1:8000",
		Resume:      resume,
	}
	return New(logger, deps, opts)
}

func saveStage(t *testing.T, o *Orchestrator, stage Phase, svcs map[string]checkpoint.ServiceState) {
	t.Helper()
	cp := checkpoint.Checkpoint{
		Stage:     string(stage),
		Timestamp: time.Now().UTC(),
		Services:  svcs,
	}
	if err := o.deps.Checkpoints.Save(context.Background(), cp); err != nil {
		t.Fatal(err)
	}
}

func TestArtifactNamesAreUndotted(t *testing.T) {
	if CheckpointFile != "setup_checkpoint.json" {
		t.Fatalf("checkpoint artifact = %q", CheckpointFile)
	}
	if LockFile != "setup.lock" {
		t.Fatalf("lock artifact = %q", LockFile)
	}
}

func TestResumeIndexNoCheckpoint(t *testing.T) {
	o := newTestOrchestrator(t, &recordingRunner{}, true)
	if got := o.resumeIndex(context.Background()); got != 0 {
		t.Fatalf("resumeIndex = %d, want 0", got)
	}
}

func TestResumeIndexContinuesAfterCompletedStage(t *testing.T) {
	o := newTestOrchestrator(t, &recordingRunner{}, true)
	saveStage(t, o, PhaseEnvironmentChecks, nil)

	if got := o.resumeIndex(context.Background()); got != Index(PhaseBackendSetup) {
		t.Fatalf("resumeIndex = %d, want %d", got, Index(PhaseBackendSetup))
	}
}

func TestResumeIndexCompletedRunStartsFresh(t *testing.T) {
	o := newTestOrchestrator(t, &recordingRunner{}, true)
	saveStage(t, o, PhaseCompleted, nil)

	if got := o.resumeIndex(context.Background()); got != 0 {
		t.Fatalf("resumeIndex = %d, want 0", got)
	}
}

func TestResumeIndexUnknownStageDiscarded(t *testing.T) {
	o := newTestOrchestrator(t, &recordingRunner{}, true)
	saveStage(t, o, Phase("warp_drive"), nil)

	if got := o.resumeIndex(context.Background()); got != 0 {
		t.Fatalf("resumeIndex = %d, want 0", got)
	}
	if _, found, _ := o.deps.Checkpoints.Load(context.Background()); found {
		t.Fatal("an unknown checkpoint must be discarded")
	}
}

func TestResumeIndexDisabledClearsCheckpoint(t *testing.T) {
	o := newTestOrchestrator(t, &recordingRunner{}, false)
	saveStage(t, o, PhaseServiceSetup, nil)

	if got := o.resumeIndex(context.Background()); got != 0 {
		t.Fatalf("resumeIndex = %d, want 0", got)
	}
	if _, found, _ := o.deps.Checkpoints.Load(context.Background()); found {
		t.Fatal("resume disabled must clear the checkpoint")
	}
}

func TestResumeIndexRewindsWhenServiceDied(t *testing.T) {
	o := newTestOrchestrator(t, &recordingRunner{}, true)
	saveStage(t, o, PhaseServiceSetup, map[string]checkpoint.ServiceState{
		services.ServiceWeb: {Status: string(services.StatusRunning), PID: 999999999, Port: 8000},
	})

	if got := o.resumeIndex(context.Background()); got != Index(PhaseServiceSetup) {
		t.Fatalf("resumeIndex = %d, want rewind to %d", got, Index(PhaseServiceSetup))
	}
}

func TestResumeIndexAdoptsLiveServices(t *testing.T) {
	o := newTestOrchestrator(t, &recordingRunner{}, true)
	// Our own PID is definitely alive.
	saveStage(t, o, PhaseServiceSetup, map[string]checkpoint.ServiceState{
		services.ServiceWeb: {Status: string(services.StatusRunning), PID: os.Getpid(), Port: 8000},
	})

	if got := o.resumeIndex(context.Background()); got != Index(PhaseHealthChecks) {
		t.Fatalf("resumeIndex = %d, want %d", got, Index(PhaseHealthChecks))
	}
	info, ok := o.deps.Manager.Registry().Get(services.ServiceWeb)
	if !ok || info.PID != os.Getpid() {
		t.Fatalf("live service should be adopted into the registry, got %+v", info)
	}
}

func TestSaveCheckpointSnapshotsRegistry(t *testing.T) {
	o := newTestOrchestrator(t, &recordingRunner{}, true)
	o.deps.Manager.Registry().Set(services.ServiceInfo{
		Name:   services.ServiceRedis,
		Status: services.StatusRunning,
		PID:    4321,
		Port:   6379,
	})

	o.saveCheckpoint(context.Background(), PhaseServiceSetup)

	cp, found, err := o.deps.Checkpoints.Load(context.Background())
	if err != nil || !found {
		t.Fatalf("checkpoint not saved: %v", err)
	}
	if cp.Stage != string(PhaseServiceSetup) {
		t.Fatalf("stage = %q", cp.Stage)
	}
	state := cp.Services[services.ServiceRedis]
	if state.PID != 4321 || state.Port != 6379 || state.Status != string(services.StatusRunning) {
		t.Fatalf("service state = %+v", state)
	}
}

func TestRunRefusesWhenLockHeld(t *testing.T) {
	o := newTestOrchestrator(t, &recordingRunner{}, true)
	if err := o.deps.Lock.Acquire(); err != nil {
		t.Fatal(err)
	}

	other := New(zerolog.Nop(), o.deps, o.opts)
	if err := other.Run(context.Background()); err == nil {
		t.Fatal("a held lock must abort the run")
	}
}

func TestBackendSetupToleratesMissingRequirements(t *testing.T) {
	runner := &recordingRunner{}
	o := newTestOrchestrator(t, runner, true)
	o.deps.Backend = backend.NewChecker(zerolog.Nop(), runner, &config.Loader{}, o.opts.ProjectRoot)

	err := o.runBackendSetup(context.Background())
	if err != nil && strings.Contains(err.Error(), "requirements") {
		t.Fatalf("a missing requirements.txt must not abort the phase: %v", err)
	}

	var upgradedPip, installed bool
	for _, call := range runner.seen() {
		if strings.Contains(call, "pip install --upgrade pip") {
			upgradedPip = true
		}
		if strings.Contains(call, "pip install -r") {
			installed = true
		}
	}
	if !upgradedPip {
		t.Fatalf("phase should proceed through pip bootstrap, calls: %v", runner.seen())
	}
	if installed {
		t.Fatalf("no manifest means no install, calls: %v", runner.seen())
	}
}

func TestFixEnvironmentIssuesFreesPort(t *testing.T) {
	runner := &recordingRunner{outputs: map[string]command.Output{
		"lsof -ti :8000": {Stdout: "4242\n"},
	}}
	o := newTestOrchestrator(t, runner, true)

	o.fixEnvironmentIssues(context.Background(), []checks.Check{
		checks.Fail("port web", "port 8000 needed by web is already in use",
			"stop the process listening on port 8000").
			WithDetails(map[string]string{"port": "8000"}),
	})

	var killed bool
	for _, call := range runner.seen() {
		if call == "kill 4242" {
			killed = true
		}
	}
	if !killed {
		t.Fatalf("expected the port owner to be terminated, calls: %v", runner.seen())
	}
}

func TestFixEnvironmentIssuesLeavesVersionFindingsAlone(t *testing.T) {
	runner := &recordingRunner{}
	o := newTestOrchestrator(t, runner, true)

	o.fixEnvironmentIssues(context.Background(), []checks.Check{
		checks.Fail("python", "python3 is not available", "install Python 3.12 or newer"),
		checks.Fail("disk space", "only 100 MiB free, at least 1 GiB required", ""),
		checks.FailWarn("node", "old node", "upgrade"),
	})

	if calls := runner.seen(); len(calls) != 0 {
		t.Fatalf("tooling and disk findings must not trigger commands, got %v", calls)
	}
}

func TestFailureSummaryListsOnlyErrors(t *testing.T) {
	results := []checks.Check{
		checks.Pass("python", "ok"),
		checks.Fail("redis", "down", "start it"),
		checks.FailWarn("node", "old", "upgrade"),
		checks.Fail("port web", "busy", "free it"),
	}
	summary := failureSummary(results)
	if summary != "redis, port web" {
		t.Fatalf("failureSummary = %q", summary)
	}
	if !hasErrorFailures(results) {
		t.Fatal("hasErrorFailures should see the error findings")
	}
}
