package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/jaston/jaston-setup/internal/services"
)

func TestStatusHandler(t *testing.T) {
	tracker := NewTracker()
	tracker.SetPhase("backend_setup")

	registry := services.NewRegistry()
	registry.Set(services.ServiceInfo{
		Name:   services.ServiceRedis,
		Status: services.StatusRunning,
		PID:    123,
		Port:   6379,
	})

	rec := httptest.NewRecorder()
	StatusHandler(tracker, registry)(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}

	var payload struct {
		Phase          string                 `json:"phase"`
		ElapsedSeconds float64                `json:"elapsed_seconds"`
		Services       []services.ServiceInfo `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Phase != "backend_setup" {
		t.Fatalf("phase = %q", payload.Phase)
	}
	if payload.ElapsedSeconds < 0 {
		t.Fatalf("elapsed = %v", payload.ElapsedSeconds)
	}
	if len(payload.Services) != 1 || payload.Services[0].Name != services.ServiceRedis {
		t.Fatalf("services = %+v", payload.Services)
	}
}
