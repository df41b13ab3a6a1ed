package safetypolicy

import (
	"context"
	"strings"
	"sync"

	"github.com/photonlab/daqd/pkg/daqerr"
	"github.com/photonlab/daqd/pkg/plan"
)

// LimitRegistry holds each physical device's declared safe travel
// range, keyed by device name (the value side of a plan's device
// mapping, e.g. "x_stage"). Gate consults it to populate the
// per-parameter DeviceLimits a policy like motion-range evaluates
// against.
type LimitRegistry struct {
	mu     sync.RWMutex
	limits map[string]DeviceLimit
}

// NewLimitRegistry returns an empty LimitRegistry.
func NewLimitRegistry() *LimitRegistry {
	return &LimitRegistry{limits: make(map[string]DeviceLimit)}
}

// SetLimit declares device's safe travel range.
func (r *LimitRegistry) SetLimit(device string, limit DeviceLimit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[device] = limit
}

func (r *LimitRegistry) get(device string) (DeviceLimit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limits[device]
	return l, ok
}

// Gate adapts Engine to runengine.PlanGate: it builds a PlanInput from
// the builder's declared shape and the admission-time params/mapping,
// resolving each mover's declared device limit (set via
// SetDeviceLimit) to the axis parameter names the builtin
// motion-range policy checks — "start"/"stop" for a single-axis plan,
// "outer_start"/"outer_stop"/"inner_start"/"inner_stop" for a two-axis
// plan, by position in builder.Movers() — then evaluates the result
// and rejects admission with InvalidArgument if any enabled policy
// denies it.
func (e *Engine) Gate(ctx context.Context, builder plan.Builder, params, deviceMapping map[string]string) error {
	input := PlanInput{
		PlanType:     builder.Type(),
		PlanName:     builder.Name(),
		NumPoints:    builder.NumPoints(),
		Movers:       builder.Movers(),
		Detectors:    builder.Detectors(),
		Params:       params,
		Mapping:      deviceMapping,
		DeviceLimits: axisLimits(builder.Movers(), e.limits),
	}

	result, err := e.EvaluatePlan(ctx, input)
	if err != nil {
		return daqerr.NewInternal("safety policy evaluation failed", err)
	}
	if !result.Allowed {
		messages := make([]string, 0, len(result.Violations))
		for _, v := range result.Violations {
			if v.Severity == SeverityError || v.Severity == SeverityCritical {
				messages = append(messages, v.Message)
			}
		}
		return daqerr.NewInvalidArgument("plan rejected by safety policy: "+strings.Join(messages, "; "), nil)
	}
	return nil
}

// axisLimits maps each mover (in declared order) to its "<prefix>start"/
// "<prefix>stop" parameter-name limits: a single mover uses the bare
// "start"/"stop" names a one-axis plan declares; a pair of movers uses
// "outer_"/"inner_" prefixes, matching grid_scan's argument names.
func axisLimits(movers []string, limits *LimitRegistry) map[string]DeviceLimit {
	out := make(map[string]DeviceLimit)
	prefixFor := func(i int) string {
		if len(movers) <= 1 {
			return ""
		}
		if i == 0 {
			return "outer_"
		}
		return "inner_"
	}
	for i, device := range movers {
		limit, ok := limits.get(device)
		if !ok {
			continue
		}
		prefix := prefixFor(i)
		out[prefix+"start"] = limit
		out[prefix+"stop"] = limit
	}
	return out
}
