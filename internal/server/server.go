// Package server exposes a small status HTTP surface while a setup run is
// in flight: current phase and managed services on /healthz, Prometheus
// collectors on /metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jaston/jaston-setup/internal/metrics"
	"github.com/jaston/jaston-setup/internal/services"
)

const shutdownTimeout = 5 * time.Second

// Tracker records which phase the run is currently in.
type Tracker struct {
	mu        sync.Mutex
	phase     string
	startedAt time.Time
}

// NewTracker starts the run clock.
func NewTracker() *Tracker {
	return &Tracker{startedAt: time.Now()}
}

// SetPhase records the phase now executing.
func (t *Tracker) SetPhase(phase string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
}

// Snapshot returns the current phase and total elapsed run time.
func (t *Tracker) Snapshot() (string, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase, time.Since(t.startedAt)
}

type statusPayload struct {
	Phase          string                 `json:"phase"`
	ElapsedSeconds float64                `json:"elapsed_seconds"`
	Services       []services.ServiceInfo `json:"services"`
}

// StatusHandler serves the current run state as JSON.
func StatusHandler(tracker *Tracker, registry *services.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		phase, elapsed := tracker.Snapshot()
		payload := statusPayload{
			Phase:          phase,
			ElapsedSeconds: elapsed.Seconds(),
			Services:       registry.All(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// Start launches the status server when port is nonzero. It shuts down
// when ctx is cancelled.
func Start(ctx context.Context, logger zerolog.Logger, tracker *Tracker, registry *services.Registry, metricsCollector *metrics.Metrics, port int) {
	if port <= 0 {
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", StatusHandler(tracker, registry))
	if metricsCollector != nil {
		mux.Handle("/metrics", metricsCollector.Handler())
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Int("port", port).Msg("status server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Int("port", port).Msg("status server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Int("port", port).Msg("status server shutdown failed")
		}
	}()
}
