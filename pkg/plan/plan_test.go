package plan

import (
	"reflect"
	"testing"

	"github.com/photonlab/daqd/pkg/daqerr"
)

func drain(b Builder) []Command {
	b.Reset()
	var out []Command
	for {
		cmd, ok := b.Next()
		if !ok {
			break
		}
		out = append(out, cmd)
	}
	return out
}

func countEvents(cmds []Command) []Command {
	var out []Command
	for _, c := range cmds {
		if c.Kind == CommandEmitEvent {
			out = append(out, c)
		}
	}
	return out
}

func TestCountPlanEventCount(t *testing.T) {
	r := NewRegistry()
	b, err := r.Create("count", map[string]string{"n": "5"}, map[string]string{"detector": "det0"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	events := countEvents(drain(b))
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
}

func TestCountPlanDeterministic(t *testing.T) {
	r := NewRegistry()
	b, err := r.Create("count", map[string]string{"n": "3", "delay": "0.1"}, map[string]string{"detector": "det0"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first := drain(b)
	second := drain(b)
	if len(first) != len(second) {
		t.Fatalf("sequence length changed across Reset: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !reflect.DeepEqual(first[i], second[i]) {
			t.Fatalf("command %d differs across Reset: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestCountPlanRejectsInvalidArgs(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Create("count", map[string]string{"n": "0"}, map[string]string{"detector": "det0"}); err == nil {
		t.Fatal("expected error for n=0")
	}
	if _, err := r.Create("count", map[string]string{"n": "5"}, map[string]string{}); err == nil {
		t.Fatal("expected error for missing detector mapping")
	}
}

func TestLineScanEventCountAndPositions(t *testing.T) {
	r := NewRegistry()
	b, err := r.Create("line_scan", map[string]string{
		"start": "0", "stop": "10", "n": "11",
	}, map[string]string{"axis": "x", "detectors": "det0"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	events := countEvents(drain(b))
	if len(events) != 11 {
		t.Fatalf("expected 11 events, got %d", len(events))
	}
	for i, e := range events {
		want := float64(i)
		if got := e.Positions["x"]; got != want {
			t.Fatalf("event %d: position x = %v, want %v", i, got, want)
		}
	}
}

func TestLineScanMultipleDetectors(t *testing.T) {
	r := NewRegistry()
	b, err := r.Create("line_scan", map[string]string{
		"start": "0", "stop": "1", "n": "2",
	}, map[string]string{"axis": "x", "detectors": "det0, det1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	cmds := drain(b)
	var triggers []string
	for _, c := range cmds {
		if c.Kind == CommandTrigger {
			triggers = append(triggers, c.Device)
		}
	}
	want := []string{"det0", "det1", "det0", "det1"}
	if len(triggers) != len(want) {
		t.Fatalf("trigger count = %d, want %d", len(triggers), len(want))
	}
	for i := range want {
		if triggers[i] != want[i] {
			t.Fatalf("trigger %d = %q, want %q", i, triggers[i], want[i])
		}
	}
}

func TestGridScanEventCount(t *testing.T) {
	r := NewRegistry()
	b, err := r.Create("grid_scan", map[string]string{
		"outer_start": "0", "outer_stop": "1", "outer_n": "2",
		"inner_start": "0", "inner_stop": "2", "inner_n": "3",
		"snake": "false",
	}, map[string]string{"outer": "y", "inner": "x", "detectors": "det0"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	events := countEvents(drain(b))
	if len(events) != 6 {
		t.Fatalf("expected 6 events (2*3), got %d", len(events))
	}
}

func TestGridScanSnakeReversesInnerDirection(t *testing.T) {
	r := NewRegistry()
	b, err := r.Create("grid_scan", map[string]string{
		"outer_start": "0", "outer_stop": "1", "outer_n": "2",
		"inner_start": "0", "inner_stop": "2", "inner_n": "3",
		"snake": "true",
	}, map[string]string{"outer": "y", "inner": "x", "detectors": "det0"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	events := countEvents(drain(b))
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(events))
	}

	wantY := []float64{0, 0, 0, 1, 1, 1}
	wantX := []float64{0, 1, 2, 2, 1, 0}
	for i, e := range events {
		if e.Positions["y"] != wantY[i] || e.Positions["x"] != wantX[i] {
			t.Fatalf("event %d: got (y=%v,x=%v), want (y=%v,x=%v)",
				i, e.Positions["y"], e.Positions["x"], wantY[i], wantX[i])
		}
	}
}

func TestGridScanRasterSameDirection(t *testing.T) {
	r := NewRegistry()
	b, err := r.Create("grid_scan", map[string]string{
		"outer_start": "0", "outer_stop": "1", "outer_n": "2",
		"inner_start": "0", "inner_stop": "2", "inner_n": "3",
		"snake": "false",
	}, map[string]string{"outer": "y", "inner": "x", "detectors": "det0"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	events := countEvents(drain(b))

	wantX := []float64{0, 1, 2, 0, 1, 2}
	for i, e := range events {
		if e.Positions["x"] != wantX[i] {
			t.Fatalf("event %d: x = %v, want %v (raster rows must traverse same direction)", i, e.Positions["x"], wantX[i])
		}
	}
}

func TestGridScanRejectsSameAxisDevice(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("grid_scan", map[string]string{
		"outer_start": "0", "outer_stop": "1", "outer_n": "2",
		"inner_start": "0", "inner_stop": "2", "inner_n": "3",
	}, map[string]string{"outer": "x", "inner": "x", "detectors": "det0"})
	if err == nil {
		t.Fatal("expected error when outer and inner devices are identical")
	}
}

func TestUnknownPlanTypeIsUnimplemented(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("not_a_real_plan", nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown plan type")
	}
	if daqerr.CodeOf(err) != daqerr.Unimplemented {
		t.Fatalf("expected Unimplemented, got %v", err)
	}
}

// TestDeterminismAcrossAllBuiltins exercises the general invariant that
// Reset() followed by full consumption always reproduces the identical
// command sequence, for every built-in plan type.
func TestDeterminismAcrossAllBuiltins(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		tag     string
		params  map[string]string
		mapping map[string]string
	}{
		{"count", map[string]string{"n": "4"}, map[string]string{"detector": "det0"}},
		{"line_scan", map[string]string{"start": "0", "stop": "3", "n": "4", "settle": "0.05"}, map[string]string{"axis": "x", "detectors": "det0"}},
		{"grid_scan", map[string]string{
			"outer_start": "0", "outer_stop": "1", "outer_n": "2",
			"inner_start": "0", "inner_stop": "1", "inner_n": "2",
			"snake": "true",
		}, map[string]string{"outer": "y", "inner": "x", "detectors": "det0"}},
	}
	for _, c := range cases {
		t.Run(c.tag, func(t *testing.T) {
			b, err := r.Create(c.tag, c.params, c.mapping)
			if err != nil {
				t.Fatalf("Create(%s): %v", c.tag, err)
			}
			first := drain(b)
			second := drain(b)
			if len(first) != len(second) {
				t.Fatalf("%s: sequence length changed across Reset", c.tag)
			}
			for i := range first {
				if !reflect.DeepEqual(first[i], second[i]) {
					t.Fatalf("%s: command %d differs across Reset: %+v vs %+v", c.tag, i, first[i], second[i])
				}
			}
		})
	}
}

func TestNumPointsMatchesEmittedEvents(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		tag     string
		params  map[string]string
		mapping map[string]string
	}{
		{"count", map[string]string{"n": "7"}, map[string]string{"detector": "det0"}},
		{"line_scan", map[string]string{"start": "0", "stop": "1", "n": "9"}, map[string]string{"axis": "x", "detectors": "det0"}},
		{"grid_scan", map[string]string{
			"outer_start": "0", "outer_stop": "1", "outer_n": "3",
			"inner_start": "0", "inner_stop": "1", "inner_n": "4",
		}, map[string]string{"outer": "y", "inner": "x", "detectors": "det0"}},
	}
	for _, c := range cases {
		t.Run(c.tag, func(t *testing.T) {
			b, err := r.Create(c.tag, c.params, c.mapping)
			if err != nil {
				t.Fatalf("Create(%s): %v", c.tag, err)
			}
			events := countEvents(drain(b))
			if len(events) != b.NumPoints() {
				t.Fatalf("%s: NumPoints()=%d but emitted %d events", c.tag, b.NumPoints(), len(events))
			}
		})
	}
}

func TestLineScanSinglePointUsesStart(t *testing.T) {
	r := NewRegistry()
	b, err := r.Create("line_scan", map[string]string{"start": "5", "stop": "9", "n": "1"}, map[string]string{"axis": "x", "detectors": "det0"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	events := countEvents(drain(b))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if got := events[0].Positions["x"]; got != 5 {
		t.Fatalf("position x = %v, want 5 (start)", got)
	}
}

func TestBuiltinPlanTypesAreDistinct(t *testing.T) {
	r := NewRegistry()
	seen := map[string]bool{}
	for _, tag := range r.Types() {
		seen[tag] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct builtin plan tags, got %d", len(seen))
	}
}
