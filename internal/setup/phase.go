// Package setup orchestrates the multi-phase bootstrap of the platform:
// environment validation, backend and frontend preparation, service
// launch, health verification and integration testing, with checkpointed
// resume between runs.
package setup

// Phase identifies one stage of the bootstrap pipeline. Phases always run
// in the order returned by Phases.
type Phase string

const (
	PhaseEnvironmentChecks Phase = "environment_checks"
	PhaseBackendSetup      Phase = "backend_setup"
	PhaseFrontendSetup     Phase = "frontend_setup"
	PhaseServiceSetup      Phase = "service_setup"
	PhaseHealthChecks      Phase = "health_checks"
	PhaseIntegrationTests  Phase = "integration_tests_completed"
	PhaseCompleted         Phase = "completed"
)

// Phases returns the pipeline order. PhaseCompleted is a terminal marker,
// not an executable phase.
func Phases() []Phase {
	return []Phase{
		PhaseEnvironmentChecks,
		PhaseBackendSetup,
		PhaseFrontendSetup,
		PhaseServiceSetup,
		PhaseHealthChecks,
		PhaseIntegrationTests,
	}
}

// Index returns the position of p in the pipeline, or -1 when p is not an
// executable phase.
func Index(p Phase) int {
	for i, phase := range Phases() {
		if phase == p {
			return i
		}
	}
	return -1
}

// IsValid reports whether p names a known phase, terminal marker included.
func IsValid(p Phase) bool {
	return p == PhaseCompleted || Index(p) >= 0
}
