package setup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jaston/jaston-setup/internal/backend"
	"github.com/jaston/jaston-setup/internal/checkpoint"
	"github.com/jaston/jaston-setup/internal/command"
	"github.com/jaston/jaston-setup/internal/config"
	"github.com/jaston/jaston-setup/internal/frontend"
	"github.com/jaston/jaston-setup/internal/health"
	"github.com/jaston/jaston-setup/internal/integration"
	"github.com/jaston/jaston-setup/internal/lockfile"
	"github.com/jaston/jaston-setup/internal/metrics"
	"github.com/jaston/jaston-setup/internal/notify"
	"github.com/jaston/jaston-setup/internal/services"
)

// cleanupTimeout bounds teardown so a wedged child process cannot hold the
// run open indefinitely.
const cleanupTimeout = 10 * time.Second

// On-disk artifacts kept under the project root between runs.
const (
	CheckpointFile = "setup_checkpoint.json"
	LockFile       = "setup.lock"
)

// Options carries run-level knobs.
type Options struct {
	ProjectRoot string
	FrontendDir string
	ReportDir   string
	RedisAddr   string
	WebURL      string
	SkipTests   bool
	Resume      bool
}

// Deps bundles the collaborators an Orchestrator needs.
type Deps struct {
	Runner      command.Runner
	Loader      *config.Loader
	Checkpoints *checkpoint.Store
	Lock        *lockfile.Lock
	Manager     *services.Manager
	Backend     *backend.Checker
	Frontend    *frontend.Checker
	Health      *health.Checker
	Tester      *integration.Tester
	Notifier    notify.Notifier
	Metrics     *metrics.Metrics
	Tracker     PhaseSink
}

// PhaseSink receives phase transitions for external status reporting.
type PhaseSink interface {
	SetPhase(phase string)
}

// Orchestrator drives the phase pipeline for one setup run.
type Orchestrator struct {
	logger zerolog.Logger
	deps   Deps
	opts   Options
	runID  string
}

// New constructs an Orchestrator with a fresh run ID.
func New(logger zerolog.Logger, deps Deps, opts Options) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notify.NewNoop(logger, "")
	}
	return &Orchestrator{
		logger: logger,
		deps:   deps,
		opts:   opts,
		runID:  uuid.NewString(),
	}
}

// RunID identifies this run in logs, notifications and reports.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run executes the pipeline from the resume point to completion. A
// recoverable failure gets one automatic recovery attempt followed by a
// single full retry from the first phase. On final failure the managed
// services are torn down before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.deps.Lock.Acquire(); err != nil {
		return fmt.Errorf("another setup run is active: %w", err)
	}
	defer o.deps.Lock.Release()

	err := o.runPipeline(ctx, o.resumeIndex(ctx))

	var phaseErr *Error
	if err != nil && errors.As(err, &phaseErr) && phaseErr.Recoverable() && ctx.Err() == nil {
		o.logger.Warn().
			Str("phase", string(phaseErr.Phase)).
			Str("category", string(phaseErr.Category)).
			Err(phaseErr.Err).
			Msg("run failed, attempting recovery and one full retry")
		o.attemptRecovery(ctx, phaseErr)
		o.deps.Manager.StopAll(ctx)

		err = o.runPipeline(ctx, 0)
		if err == nil {
			o.deps.Metrics.IncRemediations("pipeline_retry", "success")
			o.notify(ctx, string(phaseErr.Phase), notify.StatusRecovered,
				"run succeeded after recovery", nil)
		} else {
			o.deps.Metrics.IncRemediations("pipeline_retry", "failure")
		}
	}

	if err != nil {
		o.Teardown()
		return err
	}

	if o.deps.Tracker != nil {
		o.deps.Tracker.SetPhase(string(PhaseCompleted))
	}
	// The checkpoint is a crash artifact; a completed run leaves none.
	if clearErr := o.deps.Checkpoints.Clear(); clearErr != nil {
		o.logger.Warn().Err(clearErr).Msg("failed to remove checkpoint")
	}
	o.deps.Metrics.SetLastSetupSuccess(time.Now())
	o.notify(ctx, string(PhaseCompleted), notify.StatusCompleted, "setup run finished", nil)
	o.logger.Info().Str("run_id", o.runID).Msg("setup run completed")
	return nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, start int) error {
	phases := Phases()
	o.logger.Info().
		Str("run_id", o.runID).
		Str("first_phase", string(phases[start])).
		Msg("pipeline starting")

	for i := start; i < len(phases); i++ {
		phase := phases[i]
		if phase == PhaseIntegrationTests && o.opts.SkipTests {
			o.logger.Warn().Msg("integration tests skipped by request")
			o.saveCheckpoint(ctx, phase)
			continue
		}
		if err := o.runPhase(ctx, phase); err != nil {
			return err
		}
		o.saveCheckpoint(ctx, phase)
	}
	return nil
}

func (o *Orchestrator) runPhase(ctx context.Context, phase Phase) error {
	o.logger.Info().Str("phase", string(phase)).Msg("phase starting")
	if o.deps.Tracker != nil {
		o.deps.Tracker.SetPhase(string(phase))
	}
	started := time.Now()
	defer func() {
		o.deps.Metrics.ObservePhaseDuration(string(phase), time.Since(started))
	}()

	if err := o.executePhase(ctx, phase); err != nil {
		phaseErr := newPhaseError(phase, err)
		o.notify(ctx, string(phase), notify.StatusFailed, "", phaseErr)
		return phaseErr
	}

	o.logger.Info().
		Str("phase", string(phase)).
		Dur("elapsed", time.Since(started)).
		Msg("phase completed")
	return nil
}

func (o *Orchestrator) executePhase(ctx context.Context, phase Phase) error {
	switch phase {
	case PhaseEnvironmentChecks:
		return o.runEnvironmentChecks(ctx)
	case PhaseBackendSetup:
		return o.runBackendSetup(ctx)
	case PhaseFrontendSetup:
		return o.runFrontendSetup(ctx)
	case PhaseServiceSetup:
		return o.runServiceSetup(ctx)
	case PhaseHealthChecks:
		return o.runHealthChecks(ctx)
	case PhaseIntegrationTests:
		return o.runIntegrationTests(ctx)
	default:
		return fmt.Errorf("unknown phase %q", phase)
	}
}

// attemptRecovery applies category-specific fixes before the single retry.
func (o *Orchestrator) attemptRecovery(ctx context.Context, phaseErr *Error) {
	switch phaseErr.Category {
	case CategoryService:
		o.deps.Manager.StopAll(ctx)
		if err := o.deps.Manager.EnsureRedis(ctx, o.opts.RedisAddr); err != nil {
			o.logger.Warn().Err(err).Msg("redis recovery failed")
			o.deps.Metrics.IncRemediations("redis_start", "failure")
		} else {
			o.deps.Metrics.IncRemediations("redis_start", "success")
		}
	case CategoryEnvironment:
		o.fixEnvironmentIssues(ctx, o.environmentBattery(ctx))
	}
}

// resumeIndex decides where the pipeline starts. A checkpoint with an
// unknown stage is discarded. Resuming past service launch requires the
// recorded PIDs to still be alive; a dead service rewinds the run to the
// service phase.
func (o *Orchestrator) resumeIndex(ctx context.Context) int {
	if !o.opts.Resume {
		if err := o.deps.Checkpoints.Clear(); err != nil {
			o.logger.Warn().Err(err).Msg("failed to clear checkpoint")
		}
		return 0
	}

	cp, found, err := o.deps.Checkpoints.Load(ctx)
	if err != nil || !found {
		return 0
	}

	stage := Phase(cp.Stage)
	if !IsValid(stage) {
		o.logger.Warn().Str("stage", cp.Stage).Msg("checkpoint stage unknown, starting fresh")
		if err := o.deps.Checkpoints.Clear(); err != nil {
			o.logger.Warn().Err(err).Msg("failed to clear checkpoint")
		}
		return 0
	}
	if stage == PhaseCompleted {
		return 0
	}

	start := Index(stage) + 1
	if start >= len(Phases()) {
		return 0
	}

	if start > Index(PhaseServiceSetup) {
		if !o.adoptServices(cp) {
			o.logger.Warn().Msg("checkpointed services are no longer running, rewinding to service setup")
			start = Index(PhaseServiceSetup)
		}
	}

	o.logger.Info().
		Str("completed_stage", cp.Stage).
		Str("resuming_at", string(Phases()[start])).
		Time("checkpoint_time", cp.Timestamp).
		Msg("resuming from checkpoint")
	return start
}

// adoptServices re-registers checkpointed services after verifying their
// PIDs are still alive. Returns false when any running service is gone.
func (o *Orchestrator) adoptServices(cp checkpoint.Checkpoint) bool {
	registry := o.deps.Manager.Registry()
	for name, state := range cp.Services {
		if services.Status(state.Status) != services.StatusRunning {
			continue
		}
		if state.PID <= 0 || !services.PIDAlive(state.PID) {
			return false
		}
		registry.Set(services.ServiceInfo{
			Name:   name,
			Status: services.StatusRunning,
			PID:    state.PID,
			Port:   state.Port,
		})
	}
	return true
}

func (o *Orchestrator) saveCheckpoint(ctx context.Context, stage Phase) {
	cp := checkpoint.Checkpoint{
		Stage:     string(stage),
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]checkpoint.ServiceState),
	}
	for _, info := range o.deps.Manager.Registry().All() {
		cp.Services[info.Name] = checkpoint.ServiceState{
			Status: string(info.Status),
			PID:    info.PID,
			Port:   info.Port,
		}
	}
	if err := o.deps.Checkpoints.Save(ctx, cp); err != nil {
		o.logger.Warn().Err(err).Str("stage", string(stage)).Msg("checkpoint save failed")
	}
}

// Teardown stops every managed service (checkpoint-adopted ones included)
// within a bounded window. Safe to call more than once.
func (o *Orchestrator) Teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	o.deps.Manager.StopAll(ctx)
	for _, info := range o.deps.Manager.Registry().Running() {
		if info.PID > 0 {
			o.deps.Manager.StopPID(info.PID)
		}
		o.deps.Manager.Registry().SetStatus(info.Name, services.StatusStopped)
	}
	o.deps.Metrics.SetServicesRunning(len(o.deps.Manager.Registry().Running()))
}

func (o *Orchestrator) notify(ctx context.Context, phase string, status notify.EventStatus, message string, err error) {
	event := notify.Event{
		RunID:     o.runID,
		Phase:     phase,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	// Notification failures never fail the run.
	if notifyErr := o.deps.Notifier.Notify(ctx, event); notifyErr != nil {
		o.logger.Warn().Err(notifyErr).Msg("notification delivery failed")
	}
}
