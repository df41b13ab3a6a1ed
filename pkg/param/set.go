package param

import (
	"context"

	"github.com/photonlab/daqd/pkg/daqerr"
)

// Set is a named-insertion-order mapping from parameter name to
// Parameter, as exposed by a Parameterized device.
type Set struct {
	order []string
	byName map[string]*Parameter
}

// NewSet returns an empty ParameterSet.
func NewSet() *Set {
	return &Set{byName: make(map[string]*Parameter)}
}

// Add inserts a parameter, preserving first-insertion order. Re-adding a
// name replaces its Parameter but keeps its original position.
func (s *Set) Add(p *Parameter) {
	if _, exists := s.byName[p.Name]; !exists {
		s.order = append(s.order, p.Name)
	}
	s.byName[p.Name] = p
}

// Get returns the named parameter, or nil if absent.
func (s *Set) Get(name string) *Parameter {
	return s.byName[name]
}

// Names returns parameter names in insertion order.
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of parameters in the set.
func (s *Set) Len() int { return len(s.order) }

// SetValue validates and applies a value to a named parameter.
func (s *Set) SetValue(ctx context.Context, name string, value float64) error {
	p := s.byName[name]
	if p == nil {
		return daqerr.NewNotFound("parameter not found", nil).WithDevice(name)
	}
	return p.Set(ctx, value)
}

// Snapshot returns the current value of every parameter keyed by name.
// The result is a map, so it carries no ordering.
func (s *Set) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(s.order))
	for _, name := range s.order {
		out[name] = s.byName[name].Value
	}
	return out
}
