package safetypolicy

import (
	"encoding/json"
	"time"
)

// Severity is the severity level of a policy violation.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Policy is a named Rego rule set evaluated against a PlanInput.
type Policy struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Rego        string   `json:"rego"`
	Severity    Severity `json:"severity"`
	Enabled     bool     `json:"enabled"`
}

// DeviceLimit describes a movable device's declared travel range or an
// exposure-capable device's declared duration range, used by built-in
// and custom policies to bound plan arguments.
type DeviceLimit struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// PlanInput is the evaluation input for admitting a plan to the run
// queue: enough of the plan's shape for a policy to judge safety
// without executing it.
type PlanInput struct {
	PlanType  string            `json:"plan_type"`
	PlanName  string            `json:"plan_name"`
	NumPoints int               `json:"num_points"`
	Movers    []string          `json:"movers"`
	Detectors []string          `json:"detectors"`
	Params    map[string]string `json:"params"`
	Mapping   map[string]string `json:"mapping"`

	// DeviceLimits maps a plan parameter name that sets an axis position
	// (e.g. "start", "stop", "outer_start", "inner_stop") to the declared
	// safe range of the device that axis moves.
	DeviceLimits map[string]DeviceLimit `json:"device_limits,omitempty"`

	Environment string    `json:"environment,omitempty"`
	DryRun      bool      `json:"dry_run"`
	Timestamp   time.Time `json:"timestamp"`
}

// Violation is a single denied rule result.
type Violation struct {
	Policy   string   `json:"policy"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating all enabled policies against one
// PlanInput.
type Result struct {
	Allowed           bool        `json:"allowed"`
	Violations        []Violation `json:"violations,omitempty"`
	EvaluatedPolicies []string    `json:"evaluated_policies"`
	EvaluatedAt       time.Time   `json:"evaluated_at"`
}

// regoResult is the shape a deny rule is expected to produce, either as
// a bare string or a structured object.
type regoResult struct {
	raw interface{}
}

func (r regoResult) message() string {
	switch v := r.raw.(type) {
	case string:
		return v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	b, _ := json.Marshal(r.raw)
	return string(b)
}

func (r regoResult) severity(fallback Severity) Severity {
	if v, ok := r.raw.(map[string]interface{}); ok {
		if sev, ok := v["severity"].(string); ok {
			return Severity(sev)
		}
	}
	return fallback
}
