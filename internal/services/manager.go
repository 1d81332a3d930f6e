package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultReadyDeadline = 30 * time.Second
	stopWaitTimeout      = 10 * time.Second
	workerStartupGrace   = 2 * time.Second
)

// ProcessSpec describes one long-running process to launch.
type ProcessSpec struct {
	Name          string
	Command       []string
	Dir           string
	Env           []string
	Port          int
	Ready         ReadinessProbe
	ReadyDeadline time.Duration
}

type managedProcess struct {
	cmd     *exec.Cmd
	logFile *os.File
	done    chan struct{}
	waitErr error
}

func (p *managedProcess) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Manager launches, supervises and stops service processes, recording every
// state change in the registry it was given.
type Manager struct {
	logger   zerolog.Logger
	registry *Registry
	logDir   string

	mu        sync.Mutex
	processes map[string]*managedProcess
}

// NewManager constructs a Manager writing service logs under logDir.
func NewManager(logger zerolog.Logger, registry *Registry, logDir string) *Manager {
	return &Manager{
		logger:    logger,
		registry:  registry,
		logDir:    logDir,
		processes: make(map[string]*managedProcess),
	}
}

// Registry returns the registry this manager records into.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Start launches the process detached in its own process group, redirects its
// output to a log file, and polls the readiness probe with backoff until the
// deadline. A process that is not ready at the deadline is stopped and the
// start reported as a failure.
func (m *Manager) Start(ctx context.Context, spec ProcessSpec) error {
	if len(spec.Command) == 0 {
		return fmt.Errorf("service %s: empty command", spec.Name)
	}

	m.mu.Lock()
	if existing, ok := m.processes[spec.Name]; ok && existing.alive() {
		m.mu.Unlock()
		return fmt.Errorf("service %s is already running", spec.Name)
	}
	m.mu.Unlock()

	if err := os.MkdirAll(m.logDir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(m.logDir, spec.Name+".log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open service log: %w", err)
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = detachedSysProcAttr()

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		m.registry.SetError(spec.Name, err.Error())
		return fmt.Errorf("start %s: %w", spec.Name, err)
	}

	proc := &managedProcess{cmd: cmd, logFile: logFile, done: make(chan struct{})}
	m.mu.Lock()
	m.processes[spec.Name] = proc
	m.mu.Unlock()

	go m.reap(spec.Name, proc)

	m.logger.Info().
		Str("service", spec.Name).
		Int("pid", cmd.Process.Pid).
		Msg("process launched, waiting for readiness")

	probe := spec.Ready
	if probe == nil {
		probe = ProcessAliveProbe(proc.alive, workerStartupGrace)
	}
	deadline := spec.ReadyDeadline
	if deadline <= 0 {
		deadline = defaultReadyDeadline
	}

	if err := WaitReady(ctx, probe, deadline); err != nil {
		m.registry.SetError(spec.Name, err.Error())
		_ = m.Stop(context.Background(), spec.Name)
		return fmt.Errorf("service %s failed to become ready: %w", spec.Name, err)
	}

	m.registry.Set(ServiceInfo{
		Name:   spec.Name,
		Status: StatusRunning,
		Port:   spec.Port,
		PID:    cmd.Process.Pid,
	})
	m.logger.Info().Str("service", spec.Name).Int("pid", cmd.Process.Pid).Msg("service ready")
	return nil
}

func (m *Manager) reap(name string, proc *managedProcess) {
	proc.waitErr = proc.cmd.Wait()
	close(proc.done)
	_ = proc.logFile.Close()

	if info, ok := m.registry.Get(name); ok && info.Status == StatusRunning {
		if proc.waitErr != nil {
			m.registry.SetError(name, proc.waitErr.Error())
			m.logger.Warn().Str("service", name).Err(proc.waitErr).Msg("service exited unexpectedly")
		} else {
			m.registry.SetStatus(name, StatusStopped)
		}
	}
}

// Stop terminates a managed process: TERM to the process group, then KILL
// after a wait deadline.
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	proc, ok := m.processes[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if !proc.alive() {
		m.registry.SetStatus(name, StatusStopped)
		return nil
	}

	pid := proc.cmd.Process.Pid
	m.logger.Info().Str("service", name).Int("pid", pid).Msg("stopping service")
	_ = terminateGroup(pid)

	timer := time.NewTimer(stopWaitTimeout)
	defer timer.Stop()
	select {
	case <-proc.done:
	case <-ctx.Done():
		_ = killGroup(pid)
		return ctx.Err()
	case <-timer.C:
		m.logger.Warn().Str("service", name).Int("pid", pid).Msg("graceful stop timed out, killing")
		_ = killGroup(pid)
		<-proc.done
	}

	m.registry.SetStatus(name, StatusStopped)
	return nil
}

// StopAll stops every managed process, continuing past individual errors.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	names := make([]string, 0, len(m.processes))
	for name := range m.processes {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		if err := m.Stop(ctx, name); err != nil {
			m.logger.Warn().Str("service", name).Err(err).Msg("stop failed")
		}
	}
}

// StopPID terminates a process tracked only by PID, such as one restored from
// a checkpoint after a crash. TERM first, KILL if it is still alive after the
// wait deadline.
func (m *Manager) StopPID(pid int) {
	if pid <= 0 || !PIDAlive(pid) {
		return
	}
	m.logger.Info().Int("pid", pid).Msg("terminating orphaned process")
	_ = terminateGroup(pid)

	deadline := time.Now().Add(stopWaitTimeout)
	for time.Now().Before(deadline) {
		if !PIDAlive(pid) {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	_ = killGroup(pid)
}

// EnsureRedis makes sure the cache server is answering pings, starting it
// when the first ping fails.
func (m *Manager) EnsureRedis(ctx context.Context, addr string) error {
	if err := PingRedis(ctx, addr); err == nil {
		m.registry.Set(ServiceInfo{Name: ServiceRedis, Status: StatusRunning, Port: 6379})
		return nil
	}

	m.logger.Info().Msg("redis not answering, starting redis-server")
	if err := m.Start(ctx, ProcessSpec{
		Name:    ServiceRedis,
		Command: []string{"redis-server", "--port", "6379"},
		Port:    6379,
		Ready: func(ctx context.Context) error {
			return PingRedis(ctx, addr)
		},
	}); err != nil {
		return fmt.Errorf("start redis: %w", err)
	}
	return nil
}
