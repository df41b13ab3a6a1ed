package module

import (
	"context"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/daqerr"
	"github.com/photonlab/daqd/pkg/param"
)

// driver is the generic bridge-backed implementation of every
// capability.*Device interface: whether a given instance actually answers
// a method is a fact about the manifest (Capabilities), not about Go's
// type system, since a WASM module can't be type-asserted. The registry
// entry for a module-backed device is built with RegisterDeclared using
// the manifest's declared capability set, so narrowing still works the
// same way as for native drivers — a capability absent from the manifest
// never appears in Info.Capabilities, even though driver itself answers
// every method in this file.
type driver struct {
	driverType string
	bridge     *Bridge
}

func newDriver(driverType string, bridge *Bridge) *driver {
	return &driver{driverType: driverType, bridge: bridge}
}

func (d *driver) DriverType() string { return d.driverType }

func (d *driver) MoveAbs(ctx context.Context, position float64) error {
	return d.bridge.Call(ctx, "move_abs", map[string]float64{"position": position}, nil)
}

func (d *driver) MoveRel(ctx context.Context, delta float64) error {
	return d.bridge.Call(ctx, "move_rel", map[string]float64{"delta": delta}, nil)
}

func (d *driver) Position(ctx context.Context) (float64, error) {
	var out struct {
		Position float64 `json:"position"`
	}
	if err := d.bridge.Call(ctx, "position", nil, &out); err != nil {
		return 0, err
	}
	return out.Position, nil
}

func (d *driver) WaitSettled(ctx context.Context) error {
	return d.bridge.Call(ctx, "wait_settled", nil, nil)
}

func (d *driver) Stop(ctx context.Context) error {
	return d.bridge.Call(ctx, "stop", nil, nil)
}

func (d *driver) Read(ctx context.Context) (capability.Reading, error) {
	var out capability.Reading
	if err := d.bridge.Call(ctx, "read", nil, &out); err != nil {
		return capability.Reading{}, err
	}
	return out, nil
}

func (d *driver) Arm(ctx context.Context) error {
	return d.bridge.Call(ctx, "arm", nil, nil)
}

func (d *driver) Trigger(ctx context.Context) error {
	return d.bridge.Call(ctx, "trigger", nil, nil)
}

func (d *driver) IsArmed(ctx context.Context) (bool, error) {
	var out struct {
		Armed bool `json:"armed"`
	}
	if err := d.bridge.Call(ctx, "is_armed", nil, &out); err != nil {
		return false, err
	}
	return out.Armed, nil
}

func (d *driver) StartStream(ctx context.Context, finiteCount *uint64) error {
	return d.bridge.Call(ctx, "start_stream", map[string]*uint64{"finite_count": finiteCount}, nil)
}

func (d *driver) StopStream(ctx context.Context) error {
	return d.bridge.Call(ctx, "stop_stream", nil, nil)
}

func (d *driver) IsStreaming(ctx context.Context) (bool, error) {
	var out struct {
		Streaming bool `json:"streaming"`
	}
	if err := d.bridge.Call(ctx, "is_streaming", nil, &out); err != nil {
		return false, err
	}
	return out.Streaming, nil
}

func (d *driver) FrameCount(ctx context.Context) (uint64, error) {
	var out struct {
		Count uint64 `json:"count"`
	}
	if err := d.bridge.Call(ctx, "frame_count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Frames is unimplemented for WASM-backed frame producers: a guest
// module cannot push onto a host Go channel across the linear-memory
// boundary without a dedicated streaming export this bridge doesn't
// define yet. Declaring frame_producer in a module manifest today only
// serves StartStream/StopStream/IsStreaming/FrameCount bookkeeping.
func (d *driver) Frames() (<-chan capability.Frame, error) {
	return nil, daqerr.NewUnimplemented("module-backed frame streaming is not supported", nil).WithDevice(d.driverType)
}

func (d *driver) GetExposureS(ctx context.Context) (float64, error) {
	var out struct {
		Seconds float64 `json:"seconds"`
	}
	if err := d.bridge.Call(ctx, "get_exposure_s", nil, &out); err != nil {
		return 0, err
	}
	return out.Seconds, nil
}

func (d *driver) SetExposureS(ctx context.Context, seconds float64) error {
	return d.bridge.Call(ctx, "set_exposure_s", map[string]float64{"seconds": seconds}, nil)
}

func (d *driver) OpenShutter(ctx context.Context) (bool, error) {
	var out struct {
		Realised bool `json:"realised"`
	}
	if err := d.bridge.Call(ctx, "open_shutter", nil, &out); err != nil {
		return false, err
	}
	return out.Realised, nil
}

func (d *driver) CloseShutter(ctx context.Context) (bool, error) {
	var out struct {
		Realised bool `json:"realised"`
	}
	if err := d.bridge.Call(ctx, "close_shutter", nil, &out); err != nil {
		return false, err
	}
	return out.Realised, nil
}

func (d *driver) ShutterOpen(ctx context.Context) (bool, error) {
	var out struct {
		Open bool `json:"open"`
	}
	if err := d.bridge.Call(ctx, "shutter_open", nil, &out); err != nil {
		return false, err
	}
	return out.Open, nil
}

func (d *driver) SetWavelengthNM(ctx context.Context, nm float64) (float64, error) {
	var out struct {
		Realised float64 `json:"realised"`
	}
	if err := d.bridge.Call(ctx, "set_wavelength_nm", map[string]float64{"nm": nm}, &out); err != nil {
		return 0, err
	}
	return out.Realised, nil
}

func (d *driver) GetWavelengthNM(ctx context.Context) (float64, error) {
	var out struct {
		NM float64 `json:"nm"`
	}
	if err := d.bridge.Call(ctx, "get_wavelength_nm", nil, &out); err != nil {
		return 0, err
	}
	return out.NM, nil
}

func (d *driver) SetEmission(ctx context.Context, enabled bool) (bool, error) {
	var out struct {
		Realised bool `json:"realised"`
	}
	if err := d.bridge.Call(ctx, "set_emission", map[string]bool{"enabled": enabled}, &out); err != nil {
		return false, err
	}
	return out.Realised, nil
}

func (d *driver) EmissionEnabled(ctx context.Context) (bool, error) {
	var out struct {
		Enabled bool `json:"enabled"`
	}
	if err := d.bridge.Call(ctx, "emission_enabled", nil, &out); err != nil {
		return false, err
	}
	return out.Enabled, nil
}

// parameterDescriptor mirrors param.Parameter's wire-visible fields for
// the parameters export; the module owns value storage, so this bridge
// rebuilds a fresh *param.Set with hooks delegating back into the module
// on every call rather than caching values in the host process.
type parameterDescriptor struct {
	Name        string   `json:"name"`
	Value       float64  `json:"value"`
	Description string   `json:"description"`
	Unit        string   `json:"unit"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	ReadOnly    bool     `json:"read_only"`
}

func (d *driver) Parameters(ctx context.Context) (*param.Set, error) {
	var out struct {
		Parameters []parameterDescriptor `json:"parameters"`
	}
	if err := d.bridge.Call(ctx, "parameters", nil, &out); err != nil {
		return nil, err
	}

	set := param.NewSet()
	for _, desc := range out.Parameters {
		var rng *param.Range
		if desc.Min != nil && desc.Max != nil {
			rng = &param.Range{Min: *desc.Min, Max: *desc.Max}
		}
		p := param.NewParameter(desc.Name, desc.Value, desc.Description, desc.Unit, rng, desc.ReadOnly)
		name := desc.Name
		p.SetReadHook(func(ctx context.Context) (float64, error) {
			var readOut struct {
				Value float64 `json:"value"`
			}
			if err := d.bridge.Call(ctx, "read_parameter", map[string]string{"name": name}, &readOut); err != nil {
				return 0, err
			}
			return readOut.Value, nil
		})
		p.SetWriteHook(func(ctx context.Context, value float64) error {
			return d.bridge.Call(ctx, "write_parameter", map[string]any{"name": name, "value": value}, nil)
		})
		set.Add(p)
	}
	return set, nil
}
