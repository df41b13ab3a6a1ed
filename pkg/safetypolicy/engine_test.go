package safetypolicy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestMotionRangePolicyDeniesOutOfRangeStart(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.EvaluatePlan(context.Background(), PlanInput{
		PlanType: "line_scan", PlanName: "line_scan",
		Params: map[string]string{"start": "-5", "stop": "10", "n": "11"},
		DeviceLimits: map[string]DeviceLimit{
			"start": {Min: 0, Max: 100},
		},
	})
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected plan to be denied for start below device minimum")
	}
	found := false
	for _, v := range result.Violations {
		if v.Policy == "motion-range" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a motion-range violation, got %+v", result.Violations)
	}
}

func TestMotionRangePolicyAllowsInRangeScan(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.EvaluatePlan(context.Background(), PlanInput{
		PlanType: "line_scan", PlanName: "line_scan",
		Params: map[string]string{"start": "5", "stop": "10", "n": "11"},
		DeviceLimits: map[string]DeviceLimit{
			"start": {Min: 0, Max: 100},
			"stop":  {Min: 0, Max: 100},
		},
	})
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected in-range scan to be allowed, got violations %+v", result.Violations)
	}
}

func TestPlanSizeCeilingWarnsButAllows(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.EvaluatePlan(context.Background(), PlanInput{
		PlanType: "grid_scan", PlanName: "grid_scan", NumPoints: 100000,
	})
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatal("a plan-size warning must not block admission")
	}
	found := false
	for _, v := range result.Violations {
		if v.Policy == "plan-size-ceiling" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a plan-size-ceiling warning")
	}
}

func TestProductionDryRunPolicyBlocksMultiAxisWithoutDryRun(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.EvaluatePlan(context.Background(), PlanInput{
		PlanType: "grid_scan", PlanName: "grid_scan",
		Movers:      []string{"x", "y"},
		Environment: "production",
		DryRun:      false,
	})
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected production multi-axis plan without dry_run to be denied")
	}
}

func TestProductionDryRunPolicyAllowsWithDryRun(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.EvaluatePlan(context.Background(), PlanInput{
		PlanType: "grid_scan", PlanName: "grid_scan",
		Movers:      []string{"x", "y"},
		Environment: "production",
		DryRun:      true,
	})
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected dry_run plan to be allowed, got %+v", result.Violations)
	}
}

func TestDisablePolicySkipsEvaluation(t *testing.T) {
	e := newTestEngine(t)
	if err := e.DisablePolicy("motion-range"); err != nil {
		t.Fatalf("DisablePolicy: %v", err)
	}
	result, err := e.EvaluatePlan(context.Background(), PlanInput{
		PlanType: "line_scan", PlanName: "line_scan",
		Params:       map[string]string{"start": "-5", "stop": "10"},
		DeviceLimits: map[string]DeviceLimit{"start": {Min: 0, Max: 100}},
	})
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatal("disabled motion-range policy must not deny admission")
	}
}
