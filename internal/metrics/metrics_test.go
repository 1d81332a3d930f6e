package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsUpdates(t *testing.T) {
	m := New()

	m.ObservePhaseDuration("backend_setup", 2*time.Second)
	m.SetChecksTotal("backend", "passed", 7)
	m.SetChecksTotal("backend", "failed", 1)
	m.IncRemediations("redis_start", "success")
	m.SetServicesRunning(4)
	m.SetLastSetupSuccess(time.Unix(100, 0))

	if got := testutil.ToFloat64(m.checksTotal.WithLabelValues("backend", "passed")); got != 7 {
		t.Fatalf("expected passed checks 7, got %v", got)
	}
	if got := testutil.ToFloat64(m.checksTotal.WithLabelValues("backend", "failed")); got != 1 {
		t.Fatalf("expected failed checks 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.remediationsTotal.WithLabelValues("redis_start", "success")); got != 1 {
		t.Fatalf("expected remediations 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.servicesRunning); got != 4 {
		t.Fatalf("expected services running 4, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastSetupSuccess); got != 100 {
		t.Fatalf("expected last success 100, got %v", got)
	}
	if count := testutil.CollectAndCount(m.phaseDurationSeconds); count == 0 {
		t.Fatalf("expected phase duration histogram to be collected")
	}

	if m.Handler() == nil {
		t.Fatal("handler must not be nil")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObservePhaseDuration("x", time.Second)
	m.SetChecksTotal("x", "passed", 1)
	m.IncRemediations("x", "failure")
	m.SetServicesRunning(0)
	m.SetLastSetupSuccess(time.Now())
	if m.Handler() == nil {
		t.Fatal("nil metrics still serves the default handler")
	}
}
