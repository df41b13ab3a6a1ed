package fakes

import (
	"context"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/param"
)

// ParamDevice is a fake Parameterized-only device: it declares no motion
// or detection capability, just a ParameterSet. Used by registry tests
// that check capability narrowing (a Parameterized-only device must not
// satisfy GetMovable/GetReadable/...) and by Set(dev,param,value) command
// tests.
type ParamDevice struct {
	set *param.Set
}

// NewParamDevice returns a ParamDevice wrapping set.
func NewParamDevice(set *param.Set) *ParamDevice {
	return &ParamDevice{set: set}
}

func (d *ParamDevice) DriverType() string { return "fake.paramdevice" }

func (d *ParamDevice) Parameters(ctx context.Context) (*param.Set, error) {
	return d.set, nil
}

var _ capability.ParameterizedDevice = (*ParamDevice)(nil)
