package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReadinessProbe reports whether a freshly launched service is accepting
// work. Probes are retried with backoff until a deadline; a nil error means
// ready.
type ReadinessProbe func(ctx context.Context) error

// TCPProbe waits for host:port to accept a connection.
func TCPProbe(host string, port int) ReadinessProbe {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	return func(ctx context.Context) error {
		dialer := net.Dialer{Timeout: probeDialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		_ = conn.Close()
		return nil
	}
}

// HTTPProbe waits for a URL to answer with any non-5xx status. A redirect to
// a login page counts as ready.
func HTTPProbe(url string) ReadinessProbe {
	client := &http.Client{
		Timeout: probeDialTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("status %s", resp.Status)
		}
		return nil
	}
}

// ProcessAliveProbe waits for a grace period and succeeds as long as the
// supplied liveness function still reports true. Used for services that
// expose no port, such as the task worker and the scheduler.
func ProcessAliveProbe(alive func() bool, grace time.Duration) ReadinessProbe {
	return func(ctx context.Context) error {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if !alive() {
			return backoff.Permanent(fmt.Errorf("process exited during startup"))
		}
		return nil
	}
}

// WaitReady retries the probe with exponential backoff until it succeeds or
// the deadline elapses. Not ready at the deadline is a failure, never an
// inferred success.
func WaitReady(ctx context.Context, probe ReadinessProbe, deadline time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = deadline

	operation := func() error {
		return probe(ctx)
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("not ready within %s: %w", deadline, err)
	}
	return nil
}
