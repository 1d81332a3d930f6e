package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const (
	defaultStepTimeout   = 10 * time.Second
	performanceThreshold = 2 * time.Second
)

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// apiContractEndpoints is the fixed endpoint list smoke-tested by the API
// contract category. The check is deliberately weak: not 5xx, and JSON
// bodies must parse. It is a smoke test, not a consumer contract.
var apiContractEndpoints = []struct {
	method   string
	endpoint string
}{
	{http.MethodGet, "/api/properties/"},
	{http.MethodGet, "/api/leases/"},
	{http.MethodGet, "/api/maintenance/"},
	{http.MethodGet, "/api/appointments/"},
	{http.MethodGet, "/api/messages/"},
	{http.MethodGet, "/api/notifications/"},
	{http.MethodGet, "/api/team/"},
	{http.MethodGet, "/api/blog/"},
}

// Tester orchestrates the category-based suites against a running instance.
type Tester struct {
	logger    zerolog.Logger
	baseURL   string
	client    *retryablehttp.Client
	workflows []UserWorkflow
}

// Option customizes a Tester.
type Option func(*Tester)

// WithWorkflows replaces the built-in workflow catalog.
func WithWorkflows(workflows []UserWorkflow) Option {
	return func(t *Tester) {
		t.workflows = workflows
	}
}

// WithHTTPClient overrides the HTTP client (primarily for tests).
func WithHTTPClient(client *retryablehttp.Client) Option {
	return func(t *Tester) {
		t.client = client
	}
}

// NewTester constructs a Tester against baseURL.
func NewTester(logger zerolog.Logger, baseURL string, opts ...Option) *Tester {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	// Only network errors are retried; a 5xx is a finding, not a flake.
	client.CheckRetry = func(_ context.Context, resp *http.Response, err error) (bool, error) {
		return err != nil, nil
	}
	client.HTTPClient = &http.Client{Timeout: defaultStepTimeout}

	t := &Tester{
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		workflows: BuiltinCatalog(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RunAllTests executes the six categories in their fixed order. A failure or
// panic inside one category becomes a single synthetic failed result; the
// remaining categories still run.
func (t *Tester) RunAllTests(ctx context.Context) []TestResult {
	runners := map[Category]func(context.Context) []TestResult{
		CategoryAPIContract:     t.runAPIContract,
		CategoryDataConsistency: t.runDataConsistency,
		CategoryWorkflow:        t.runWorkflows,
		CategoryPerformance:     t.runPerformance,
		CategorySecurity:        t.runSecurity,
		CategoryRealtime:        t.runRealtime,
	}

	results := make([]TestResult, 0, 32)
	for _, category := range Categories() {
		categoryResults := t.runIsolated(ctx, category, runners[category])
		for _, result := range categoryResults {
			t.logger.Info().
				Str("category", string(result.Category)).
				Str("test", result.Name).
				Str("status", string(result.Status)).
				Dur("duration", result.Duration).
				Msg("test finished")
		}
		results = append(results, categoryResults...)
	}
	return results
}

func (t *Tester) runIsolated(ctx context.Context, category Category, fn func(context.Context) []TestResult) (out []TestResult) {
	defer func() {
		if r := recover(); r != nil {
			out = []TestResult{{
				Name:         string(category) + " suite",
				Category:     category,
				Status:       StatusFailed,
				ErrorMessage: fmt.Sprintf("category panicked: %v", r),
			}}
		}
	}()
	return fn(ctx)
}

func (t *Tester) runAPIContract(ctx context.Context) []TestResult {
	results := make([]TestResult, 0, len(apiContractEndpoints))
	for _, entry := range apiContractEndpoints {
		results = append(results, t.timed(entry.method+" "+entry.endpoint, CategoryAPIContract, func() error {
			resp, body, err := t.request(ctx, entry.method, entry.endpoint, nil, defaultStepTimeout)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 500 {
				return fmt.Errorf("server error: %s", resp.Status)
			}
			if declaresJSON(resp) && !json.Valid(body) {
				return fmt.Errorf("content-type declares JSON but body does not parse")
			}
			return nil
		}))
	}
	return results
}

func (t *Tester) runDataConsistency(ctx context.Context) []TestResult {
	return []TestResult{t.timed("repeated list reads agree", CategoryDataConsistency, func() error {
		first, firstBody, err := t.request(ctx, http.MethodGet, "/api/properties/", nil, defaultStepTimeout)
		if err != nil {
			return err
		}
		second, secondBody, err := t.request(ctx, http.MethodGet, "/api/properties/", nil, defaultStepTimeout)
		if err != nil {
			return err
		}
		if first.StatusCode != second.StatusCode {
			return fmt.Errorf("status changed between reads: %d then %d", first.StatusCode, second.StatusCode)
		}
		firstCount, okA := extractCount(firstBody)
		secondCount, okB := extractCount(secondBody)
		if okA && okB && firstCount != secondCount {
			return fmt.Errorf("count changed between reads: %d then %d", firstCount, secondCount)
		}
		return nil
	})}
}

func (t *Tester) runWorkflows(ctx context.Context) []TestResult {
	results := make([]TestResult, 0, len(t.workflows))
	for _, workflow := range t.workflows {
		results = append(results, t.timed("workflow: "+workflow.Name, CategoryWorkflow, func() error {
			if !t.executeWorkflow(ctx, workflow) {
				return fmt.Errorf("workflow failed")
			}
			return nil
		}))
	}
	return results
}

func (t *Tester) runPerformance(ctx context.Context) []TestResult {
	return []TestResult{t.timed("list endpoint latency", CategoryPerformance, func() error {
		start := time.Now()
		resp, _, err := t.request(ctx, http.MethodGet, "/api/properties/", nil, defaultStepTimeout)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: %s", resp.Status)
		}
		if elapsed > performanceThreshold {
			return fmt.Errorf("latency %s exceeds %s", elapsed, performanceThreshold)
		}
		return nil
	})}
}

func (t *Tester) runSecurity(ctx context.Context) []TestResult {
	results := make([]TestResult, 0, 2)

	results = append(results, t.timed("unauthenticated write rejected", CategorySecurity, func() error {
		resp, _, err := t.request(ctx, http.MethodPost, "/api/properties/",
			map[string]any{"title": "intruder"}, defaultStepTimeout)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
			return fmt.Errorf("expected 401/403 for unauthenticated write, got %d", resp.StatusCode)
		}
		return nil
	}))

	results = append(results, t.timed("security headers present", CategorySecurity, func() error {
		resp, _, err := t.request(ctx, http.MethodGet, "/api/properties/", nil, defaultStepTimeout)
		if err != nil {
			return err
		}
		if resp.Header.Get("X-Content-Type-Options") == "" {
			return fmt.Errorf("X-Content-Type-Options header missing")
		}
		return nil
	}))

	return results
}

func (t *Tester) runRealtime(ctx context.Context) []TestResult {
	return []TestResult{t.timed("realtime endpoint responds", CategoryRealtime, func() error {
		resp, _, err := t.request(ctx, http.MethodGet, "/api/notifications/stream/", nil, defaultStepTimeout)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: %s", resp.Status)
		}
		return nil
	})}
}

// executeWorkflow runs steps strictly in order and aborts at the first
// failing step. The verdict is a single boolean for the whole workflow;
// cleanup steps run best-effort either way.
func (t *Tester) executeWorkflow(ctx context.Context, workflow UserWorkflow) bool {
	captured := make(map[string]any)
	success := true

	for _, step := range workflow.Steps {
		if err := t.executeStep(ctx, step, captured); err != nil {
			t.logger.Warn().
				Str("workflow", workflow.Name).
				Str("step", step.Name).
				Err(err).
				Msg("workflow step failed, aborting workflow")
			success = false
			break
		}
	}

	for _, step := range workflow.CleanupSteps {
		if err := t.executeStep(ctx, step, captured); err != nil {
			t.logger.Warn().
				Str("workflow", workflow.Name).
				Str("step", step.Name).
				Err(err).
				Msg("cleanup step failed")
		}
	}

	return success
}

func (t *Tester) executeStep(ctx context.Context, step WorkflowStep, captured map[string]any) error {
	method, endpoint, err := step.parseAction()
	if err != nil {
		return err
	}
	endpoint, err = substitute(endpoint, captured)
	if err != nil {
		return err
	}
	body, err := substituteBody(step.Body, captured)
	if err != nil {
		return err
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}

	var resp *http.Response
	var payload []byte
	attempts := step.RetryCount + 1
	for attempt := 0; attempt < attempts; attempt++ {
		resp, payload, err = t.request(ctx, method, endpoint, body, timeout)
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("step %q: %w", step.Name, err)
	}

	if resp.StatusCode != step.ExpectedStatus {
		return fmt.Errorf("step %q: expected status %d, got %d", step.Name, step.ExpectedStatus, resp.StatusCode)
	}

	if len(payload) > 0 && declaresJSON(resp) {
		var decoded map[string]any
		if json.Unmarshal(payload, &decoded) == nil {
			if id, ok := decoded["id"]; ok {
				captured["id"] = id
			}
			captured[step.Name+"_data"] = decoded
		}
	}
	return nil
}

func (t *Tester) request(ctx context.Context, method, endpoint string, body map[string]any, timeout time.Duration) (*http.Response, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := retryablehttp.NewRequestWithContext(reqCtx, method, t.baseURL+endpoint, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	payload := new(bytes.Buffer)
	if _, err := payload.ReadFrom(resp.Body); err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, payload.Bytes(), nil
}

func (t *Tester) timed(name string, category Category, fn func() error) TestResult {
	start := time.Now()
	err := fn()
	result := TestResult{
		Name:     name,
		Category: category,
		Status:   StatusPassed,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Status = StatusFailed
		result.ErrorMessage = err.Error()
	}
	return result
}

// substitute replaces {placeholder} tokens with values captured from prior
// steps. An unknown placeholder fails the step.
func substitute(input string, captured map[string]any) (string, error) {
	var missing []string
	replaced := placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		key := match[1 : len(match)-1]
		value, ok := captured[key]
		if !ok {
			missing = append(missing, key)
			return match
		}
		return stringify(value)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved placeholders: %s", strings.Join(missing, ", "))
	}
	return replaced, nil
}

func substituteBody(body map[string]any, captured map[string]any) (map[string]any, error) {
	if body == nil {
		return nil, nil
	}
	out := make(map[string]any, len(body))
	for key, value := range body {
		if text, ok := value.(string); ok && placeholderPattern.MatchString(text) {
			replaced, err := substitute(text, captured)
			if err != nil {
				return nil, err
			}
			out[key] = replaced
			continue
		}
		out[key] = value
	}
	return out, nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case float64:
		// JSON numbers decode as float64; ids are integers in practice.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func declaresJSON(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "application/json")
}

func extractCount(body []byte) (int, bool) {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0, false
	}
	count, ok := decoded["count"].(float64)
	if !ok {
		return 0, false
	}
	return int(count), true
}
