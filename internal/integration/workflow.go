package integration

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkflowStep is one API-style action inside a workflow. Steps are declared
// at startup and never mutated.
type WorkflowStep struct {
	Name           string         `yaml:"name"`
	Action         string         `yaml:"action"` // "METHOD /endpoint"
	Body           map[string]any `yaml:"body,omitempty"`
	ExpectedStatus int            `yaml:"expected_status"`
	Timeout        time.Duration  `yaml:"timeout,omitempty"`
	RetryCount     int            `yaml:"retry_count,omitempty"`
}

// parseAction splits "METHOD /endpoint" into its parts.
func (s WorkflowStep) parseAction() (method, endpoint string, err error) {
	parts := strings.SplitN(strings.TrimSpace(s.Action), " ", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("step %q: malformed action %q", s.Name, s.Action)
	}
	return strings.ToUpper(parts[0]), strings.TrimSpace(parts[1]), nil
}

// UserWorkflow is an ordered sequence of steps representing one end-to-end
// user journey.
type UserWorkflow struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	Prerequisites []string       `yaml:"prerequisites,omitempty"`
	Steps         []WorkflowStep `yaml:"steps"`
	CleanupSteps  []WorkflowStep `yaml:"cleanup_steps,omitempty"`
}

type catalogFile struct {
	Workflows []UserWorkflow `yaml:"workflows"`
}

// LoadCatalog parses additional workflows from a YAML file. An empty path
// returns nil without error.
func LoadCatalog(path string) ([]UserWorkflow, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse workflow catalog: %w", err)
	}
	if err := validateWorkflows(file.Workflows); err != nil {
		return nil, err
	}
	return file.Workflows, nil
}

func validateWorkflows(workflows []UserWorkflow) error {
	for i, wf := range workflows {
		if wf.Name == "" {
			return fmt.Errorf("workflow %d: name is required", i)
		}
		if len(wf.Steps) == 0 {
			return fmt.Errorf("workflow %q: at least one step is required", wf.Name)
		}
		for _, step := range append(append([]WorkflowStep{}, wf.Steps...), wf.CleanupSteps...) {
			if _, _, err := step.parseAction(); err != nil {
				return fmt.Errorf("workflow %q: %w", wf.Name, err)
			}
			if step.ExpectedStatus < 100 || step.ExpectedStatus > 599 {
				return fmt.Errorf("workflow %q step %q: expected_status %d out of range",
					wf.Name, step.Name, step.ExpectedStatus)
			}
		}
	}
	return nil
}

// BuiltinCatalog returns the standard end-to-end journeys shipped with the
// setup tool: the property lifecycle, a lease application and a maintenance
// request.
func BuiltinCatalog() []UserWorkflow {
	return []UserWorkflow{
		{
			Name:        "property lifecycle",
			Description: "create, read, update and delete a property listing",
			Steps: []WorkflowStep{
				{
					Name:   "create property",
					Action: "POST /api/properties/",
					Body: map[string]any{
						"title":     "Setup Probe Apartment",
						"address":   "1 Integration Way",
						"rent":      1200,
						"bedrooms":  2,
						"available": true,
					},
					ExpectedStatus: 201,
				},
				{
					Name:           "fetch property",
					Action:         "GET /api/properties/{id}/",
					ExpectedStatus: 200,
				},
				{
					Name:           "update property",
					Action:         "PATCH /api/properties/{id}/",
					Body:           map[string]any{"rent": 1250},
					ExpectedStatus: 200,
				},
				{
					Name:           "delete property",
					Action:         "DELETE /api/properties/{id}/",
					ExpectedStatus: 204,
				},
			},
		},
		{
			Name:        "lease application",
			Description: "apply for a lease against a freshly created property",
			Steps: []WorkflowStep{
				{
					Name:   "create property",
					Action: "POST /api/properties/",
					Body: map[string]any{
						"title":     "Lease Probe House",
						"address":   "2 Integration Way",
						"rent":      1800,
						"bedrooms":  3,
						"available": true,
					},
					ExpectedStatus: 201,
				},
				{
					Name:   "submit application",
					Action: "POST /api/leases/",
					Body: map[string]any{
						"property":   "{id}",
						"start_date": "2026-10-01",
						"months":     12,
					},
					ExpectedStatus: 201,
				},
				{
					Name:           "review application",
					Action:         "GET /api/leases/{id}/",
					ExpectedStatus: 200,
				},
			},
			CleanupSteps: []WorkflowStep{
				{
					Name:           "remove application",
					Action:         "DELETE /api/leases/{id}/",
					ExpectedStatus: 204,
				},
			},
		},
		{
			Name:        "maintenance request",
			Description: "file and track a maintenance request",
			Steps: []WorkflowStep{
				{
					Name:   "file request",
					Action: "POST /api/maintenance/",
					Body: map[string]any{
						"summary":  "Leaking faucet",
						"priority": "medium",
					},
					ExpectedStatus: 201,
				},
				{
					Name:           "track request",
					Action:         "GET /api/maintenance/{id}/",
					ExpectedStatus: 200,
				},
			},
		},
	}
}
