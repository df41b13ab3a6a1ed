package plan

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/photonlab/daqd/pkg/daqerr"
)

// Builder is a restartable, finite, lazy command generator. Reset must be
// idempotent and deterministic: identical construction parameters always
// produce a bit-identical command sequence after Reset.
type Builder interface {
	// Type returns the plan-type tag this builder was created for.
	Type() string

	// Name returns a human-readable plan name.
	Name() string

	// NumPoints returns the declared point count (>= the number of
	// EmitEvent commands the sequence will yield).
	NumPoints() int

	// Movers returns the device names this plan moves.
	Movers() []string

	// Detectors returns the device names this plan reads/triggers.
	Detectors() []string

	// Next advances the state machine and returns the next command. ok is
	// false once the sequence is exhausted.
	Next() (cmd Command, ok bool)

	// Reset returns the builder to its initial state.
	Reset()
}

// Factory constructs a Builder from string-typed params and a device
// mapping (logical role -> registered device name), validating strictly
// per spec.md §4.2.
type Factory func(params map[string]string, deviceMapping map[string]string) (Builder, error)

// validate is shared across plan factories for struct-tag validation of
// parsed parameter structs (go-playground/validator is safe for
// concurrent use once built, matching how the openfroyo CUE parser
// shares one *validator.Validate across resource validation calls).
var validate = validator.New()

// Registry maps a plan-type tag to the Factory that builds it.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a Registry pre-populated with the three built-in
// plan types (count, line_scan, grid_scan).
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
	}
	r.Register("count", newCountPlan)
	r.Register("line_scan", newLineScanPlan)
	r.Register("grid_scan", newGridScanPlan)
	return r
}

// Register adds or replaces the factory for a plan-type tag.
func (r *Registry) Register(tag string, f Factory) {
	r.factories[tag] = f
}

// Types returns every registered plan-type tag, in no particular order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		out = append(out, tag)
	}
	return out
}

// Create looks up tag's factory and invokes it, wrapping a missing tag as
// Unimplemented (the daemon doesn't know this plan type) rather than
// NotFound (the tag isn't a device).
func (r *Registry) Create(tag string, params, deviceMapping map[string]string) (Builder, error) {
	f, ok := r.factories[tag]
	if !ok {
		return nil, daqerr.NewUnimplemented(fmt.Sprintf("unknown plan type %q", tag), nil)
	}
	return f(params, deviceMapping)
}

// requireDevice fetches a device name from the mapping, rejecting empty
// names and missing keys.
func requireDevice(mapping map[string]string, key string) (string, error) {
	v, ok := mapping[key]
	if !ok || v == "" {
		return "", daqerr.NewInvalidArgument(fmt.Sprintf("device mapping missing %q", key), nil)
	}
	return v, nil
}

// requireFloat parses a required float parameter, rejecting missing keys
// and non-finite values.
func requireFloat(params map[string]string, key string) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, daqerr.NewInvalidArgument(fmt.Sprintf("missing parameter %q", key), nil)
	}
	var v float64
	if _, err := fmt.Sscanf(raw, "%g", &v); err != nil {
		return 0, daqerr.NewInvalidArgument(fmt.Sprintf("parameter %q is not a number", key), err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, daqerr.NewInvalidArgument(fmt.Sprintf("parameter %q must be finite", key), nil)
	}
	return v, nil
}

// requireInt parses a required integer-valued parameter.
func requireInt(params map[string]string, key string) (int, error) {
	raw, ok := params[key]
	if !ok {
		return 0, daqerr.NewInvalidArgument(fmt.Sprintf("missing parameter %q", key), nil)
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, daqerr.NewInvalidArgument(fmt.Sprintf("parameter %q is not an integer", key), err)
	}
	return v, nil
}

// optionalFloat parses an optional float parameter, defaulting if absent.
func optionalFloat(params map[string]string, key string, def float64) (float64, error) {
	if _, ok := params[key]; !ok {
		return def, nil
	}
	return requireFloat(params, key)
}
