package runengine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/photonlab/daqd/pkg/plan"
	"github.com/photonlab/daqd/pkg/safetypolicy"
)

func TestPlanGateRejectsOutOfRangeScan(t *testing.T) {
	eng, _ := newTestEngine(t)
	gate, err := safetypolicy.NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	gate.SetDeviceLimit("x", safetypolicy.DeviceLimit{Min: 0, Max: 100})
	eng.SetPlanGate(gate)

	planReg := plan.NewRegistry()
	_, err = eng.QueuePlan(context.Background(), planReg, "line_scan", map[string]string{
		"start": "-500", "stop": "10", "n": "11", "settle_seconds": "0",
	}, map[string]string{"axis": "x", "detector": "det"}, nil)
	if err == nil {
		t.Fatal("expected QueuePlan to be rejected by the safety policy gate")
	}
}

func TestPlanGateAllowsInRangeScan(t *testing.T) {
	eng, _ := newTestEngine(t)
	gate, err := safetypolicy.NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	gate.SetDeviceLimit("x", safetypolicy.DeviceLimit{Min: 0, Max: 100})
	eng.SetPlanGate(gate)

	planReg := plan.NewRegistry()
	_, err = eng.QueuePlan(context.Background(), planReg, "line_scan", map[string]string{
		"start": "0", "stop": "10", "n": "11", "settle_seconds": "0",
	}, map[string]string{"axis": "x", "detector": "det"}, nil)
	if err != nil {
		t.Fatalf("expected in-range scan to be admitted, got: %v", err)
	}
}
