package safetypolicy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// compiledPolicy is a Rego module prepared for repeated evaluation.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// Engine evaluates a set of Rego policies against a PlanInput at
// QueuePlan admission time.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	limits   *LimitRegistry
	log      zerolog.Logger
}

// NewEngine returns an Engine pre-loaded with the built-in policies and
// an empty LimitRegistry.
func NewEngine(log zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		limits:   NewLimitRegistry(),
		log:      log.With().Str("component", "safety_policy").Logger(),
	}
	for _, p := range GetBuiltinPolicies() {
		p := p
		if err := e.compileAndStore(context.Background(), &p); err != nil {
			return nil, fmt.Errorf("safetypolicy: load built-in %q: %w", p.Name, err)
		}
	}
	return e, nil
}

// LoadPolicies compiles and adds custom policies (e.g. loaded from disk
// by a Loader), alongside the built-ins.
func (e *Engine) LoadPolicies(ctx context.Context, policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range policies {
		if err := e.compileAndStoreLocked(ctx, &policies[i]); err != nil {
			return fmt.Errorf("safetypolicy: compile %q: %w", policies[i].Name, err)
		}
	}
	return nil
}

func (e *Engine) compileAndStore(ctx context.Context, p *Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileAndStoreLocked(ctx, p)
}

func (e *Engine) compileAndStoreLocked(ctx context.Context, p *Policy) error {
	pkg := extractPackageName(p.Rego)
	r := rego.New(
		rego.Module(p.Name+".rego", p.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", pkg)),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return err
	}
	e.policies[p.Name] = &compiledPolicy{policy: p, query: query}
	return nil
}

// EnablePolicy/DisablePolicy toggle whether a loaded policy participates
// in EvaluatePlan.
func (e *Engine) EnablePolicy(name string) error  { return e.setEnabled(name, true) }
func (e *Engine) DisablePolicy(name string) error { return e.setEnabled(name, false) }

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("safetypolicy: policy %q not found", name)
	}
	cp.policy.Enabled = enabled
	return nil
}

// SetDeviceLimit declares device's safe travel range, consulted by
// Gate's motion-range checks.
func (e *Engine) SetDeviceLimit(device string, limit DeviceLimit) {
	e.limits.SetLimit(device, limit)
}

// ListPolicies returns the currently loaded policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		out = append(out, *cp.policy)
	}
	return out
}

// EvaluatePlan runs every enabled policy against input and aggregates
// the result. A plan is Allowed unless at least one policy at
// SeverityError or SeverityCritical denies it; SeverityWarning
// violations are reported but never block admission.
func (e *Engine) EvaluatePlan(ctx context.Context, input PlanInput) (*Result, error) {
	if input.Timestamp.IsZero() {
		input.Timestamp = time.Now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedAt: input.Timestamp}

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		rs, err := cp.query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			e.log.Error().Err(err).Str("policy", cp.policy.Name).Msg("policy evaluation failed")
			continue
		}
		for _, r := range rs {
			if len(r.Expressions) == 0 {
				continue
			}
			denySet, ok := r.Expressions[0].Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				rr := regoResult{raw: d}
				v := Violation{
					Policy:   cp.policy.Name,
					Message:  rr.message(),
					Severity: rr.severity(cp.policy.Severity),
				}
				result.Violations = append(result.Violations, v)
				if v.Severity == SeverityError || v.Severity == SeverityCritical {
					result.Allowed = false
				}
			}
		}
	}

	return result, nil
}

// extractPackageName reads the "package ..." declaration out of Rego
// source.
func extractPackageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			fields := strings.Fields(trimmed)
			if len(fields) >= 2 {
				return fields[1]
			}
		}
	}
	return "safetypolicy"
}
