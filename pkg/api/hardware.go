package api

import (
	"context"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/registry"
)

// HardwareService is the Go-level contract for spec.md §6's Hardware RPC
// group: device discovery plus every capability-typed operation, exposed
// uniformly regardless of which capabilities a given device declares. A
// request against a device that lacks the needed capability returns
// daqerr.FailedPrecondition, not a method-not-found style error — the
// device exists, it just can't do that.
type HardwareService interface {
	// ListDevices returns every registered device's Info, optionally
	// filtered to those declaring filterCapability (empty filter means
	// all).
	ListDevices(ctx context.Context, filterCapability capability.Kind) ([]registry.Info, error)

	// GetDeviceState returns a single device's Info.
	GetDeviceState(ctx context.Context, id registry.DeviceID) (registry.Info, error)

	// MoveAbsolute, MoveRelative, StopMotion, WaitSettled, GetPosition act
	// on a MovableDevice.
	MoveAbsolute(ctx context.Context, id registry.DeviceID, position float64) error
	MoveRelative(ctx context.Context, id registry.DeviceID, delta float64) error
	StopMotion(ctx context.Context, id registry.DeviceID) error
	WaitSettled(ctx context.Context, id registry.DeviceID) error
	GetPosition(ctx context.Context, id registry.DeviceID) (float64, error)

	// ReadValue acts on a ReadableDevice.
	ReadValue(ctx context.Context, id registry.DeviceID) (capability.Reading, error)

	// Arm, Trigger, IsArmed act on a TriggerableDevice.
	Arm(ctx context.Context, id registry.DeviceID) error
	Trigger(ctx context.Context, id registry.DeviceID) error
	IsArmed(ctx context.Context, id registry.DeviceID) (bool, error)

	// StartStream, StopStream, IsStreaming, FrameCount, StreamFrames act
	// on a FrameProducerDevice. StreamFrames is the one method in this
	// interface whose payload can legitimately exceed MaxMessageBytes per
	// message in the wire layer; callers here just drain the Go channel.
	StartStream(ctx context.Context, id registry.DeviceID, finiteCount *uint64) error
	StopStream(ctx context.Context, id registry.DeviceID) error
	IsStreaming(ctx context.Context, id registry.DeviceID) (bool, error)
	FrameCount(ctx context.Context, id registry.DeviceID) (uint64, error)
	StreamFrames(ctx context.Context, id registry.DeviceID) (<-chan StreamEnvelope[capability.Frame], error)

	// GetExposure, SetExposure act on an ExposureControlDevice.
	GetExposure(ctx context.Context, id registry.DeviceID) (float64, error)
	SetExposure(ctx context.Context, id registry.DeviceID, seconds float64) error

	// OpenShutter, CloseShutter, ShutterOpen act on a ShutterControlDevice.
	OpenShutter(ctx context.Context, id registry.DeviceID) (bool, error)
	CloseShutter(ctx context.Context, id registry.DeviceID) (bool, error)
	ShutterOpen(ctx context.Context, id registry.DeviceID) (bool, error)

	// SetWavelength, GetWavelength act on a WavelengthTunableDevice.
	SetWavelength(ctx context.Context, id registry.DeviceID, nm float64) (float64, error)
	GetWavelength(ctx context.Context, id registry.DeviceID) (float64, error)

	// SetEmission, EmissionEnabled act on an EmissionControlDevice.
	SetEmission(ctx context.Context, id registry.DeviceID, enabled bool) (bool, error)
	EmissionEnabled(ctx context.Context, id registry.DeviceID) (bool, error)

	// ListParameters, GetParameter, SetParameter act on a
	// ParameterizedDevice.
	ListParameters(ctx context.Context, id registry.DeviceID) ([]string, error)
	GetParameter(ctx context.Context, id registry.DeviceID, name string) (float64, error)
	SetParameter(ctx context.Context, id registry.DeviceID, name string, value float64) error

	// StreamPosition delivers position updates for a MovableDevice at a
	// fixed poll interval (pollInterval), until ctx is cancelled. Used by clients that
	// want position telemetry without polling GetPosition themselves.
	StreamPosition(ctx context.Context, id registry.DeviceID) (<-chan StreamEnvelope[float64], error)

	// StreamValues delivers reading updates for a ReadableDevice, same
	// shape as StreamPosition.
	StreamValues(ctx context.Context, id registry.DeviceID) (<-chan StreamEnvelope[capability.Reading], error)
}

// hardwareService is the registry-backed HardwareService implementation.
type hardwareService struct {
	reg *registry.Registry
}

// NewHardwareService returns a HardwareService backed by reg.
func NewHardwareService(reg *registry.Registry) HardwareService {
	return &hardwareService{reg: reg}
}

func (h *hardwareService) ListDevices(ctx context.Context, filterCapability capability.Kind) ([]registry.Info, error) {
	if filterCapability == "" {
		return h.reg.List(), nil
	}
	ids := h.reg.ByCapability(filterCapability)
	out := make([]registry.Info, 0, len(ids))
	for _, id := range ids {
		if info, ok := h.reg.Info(id); ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func (h *hardwareService) GetDeviceState(ctx context.Context, id registry.DeviceID) (registry.Info, error) {
	info, ok := h.reg.Info(id)
	if !ok {
		return registry.Info{}, notFoundErr(id)
	}
	return info, nil
}

func (h *hardwareService) MoveAbsolute(ctx context.Context, id registry.DeviceID, position float64) error {
	dev, err := h.reg.GetMovable(id)
	if err != nil {
		return err
	}
	return dev.MoveAbs(ctx, position)
}

func (h *hardwareService) MoveRelative(ctx context.Context, id registry.DeviceID, delta float64) error {
	dev, err := h.reg.GetMovable(id)
	if err != nil {
		return err
	}
	return dev.MoveRel(ctx, delta)
}

func (h *hardwareService) StopMotion(ctx context.Context, id registry.DeviceID) error {
	dev, err := h.reg.GetMovable(id)
	if err != nil {
		return err
	}
	return dev.Stop(ctx)
}

func (h *hardwareService) WaitSettled(ctx context.Context, id registry.DeviceID) error {
	dev, err := h.reg.GetMovable(id)
	if err != nil {
		return err
	}
	return dev.WaitSettled(ctx)
}

func (h *hardwareService) GetPosition(ctx context.Context, id registry.DeviceID) (float64, error) {
	dev, err := h.reg.GetMovable(id)
	if err != nil {
		return 0, err
	}
	return dev.Position(ctx)
}

func (h *hardwareService) ReadValue(ctx context.Context, id registry.DeviceID) (capability.Reading, error) {
	dev, err := h.reg.GetReadable(id)
	if err != nil {
		return capability.Reading{}, err
	}
	return dev.Read(ctx)
}

func (h *hardwareService) Arm(ctx context.Context, id registry.DeviceID) error {
	dev, err := h.reg.GetTriggerable(id)
	if err != nil {
		return err
	}
	return dev.Arm(ctx)
}

func (h *hardwareService) Trigger(ctx context.Context, id registry.DeviceID) error {
	dev, err := h.reg.GetTriggerable(id)
	if err != nil {
		return err
	}
	return dev.Trigger(ctx)
}

func (h *hardwareService) IsArmed(ctx context.Context, id registry.DeviceID) (bool, error) {
	dev, err := h.reg.GetTriggerable(id)
	if err != nil {
		return false, err
	}
	return dev.IsArmed(ctx)
}

func (h *hardwareService) StartStream(ctx context.Context, id registry.DeviceID, finiteCount *uint64) error {
	dev, err := h.reg.GetFrameProducer(id)
	if err != nil {
		return err
	}
	return dev.StartStream(ctx, finiteCount)
}

func (h *hardwareService) StopStream(ctx context.Context, id registry.DeviceID) error {
	dev, err := h.reg.GetFrameProducer(id)
	if err != nil {
		return err
	}
	return dev.StopStream(ctx)
}

func (h *hardwareService) IsStreaming(ctx context.Context, id registry.DeviceID) (bool, error) {
	dev, err := h.reg.GetFrameProducer(id)
	if err != nil {
		return false, err
	}
	return dev.IsStreaming(ctx)
}

func (h *hardwareService) FrameCount(ctx context.Context, id registry.DeviceID) (uint64, error) {
	dev, err := h.reg.GetFrameProducer(id)
	if err != nil {
		return 0, err
	}
	return dev.FrameCount(ctx)
}

func (h *hardwareService) StreamFrames(ctx context.Context, id registry.DeviceID) (<-chan StreamEnvelope[capability.Frame], error) {
	dev, err := h.reg.GetFrameProducer(id)
	if err != nil {
		return nil, err
	}
	frames, err := dev.Frames()
	if err != nil {
		return nil, err
	}
	out := make(chan StreamEnvelope[capability.Frame], 4)
	go func() {
		defer close(out)
		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case f, ok := <-frames:
				if !ok {
					return
				}
				seq++
				select {
				case out <- StreamEnvelope[capability.Frame]{Seq: seq, TimeNS: timeNowNS(), Value: f}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (h *hardwareService) GetExposure(ctx context.Context, id registry.DeviceID) (float64, error) {
	dev, err := h.reg.GetExposureControl(id)
	if err != nil {
		return 0, err
	}
	return dev.GetExposureS(ctx)
}

func (h *hardwareService) SetExposure(ctx context.Context, id registry.DeviceID, seconds float64) error {
	dev, err := h.reg.GetExposureControl(id)
	if err != nil {
		return err
	}
	return dev.SetExposureS(ctx, seconds)
}

func (h *hardwareService) OpenShutter(ctx context.Context, id registry.DeviceID) (bool, error) {
	dev, err := h.reg.GetShutterControl(id)
	if err != nil {
		return false, err
	}
	return dev.OpenShutter(ctx)
}

func (h *hardwareService) CloseShutter(ctx context.Context, id registry.DeviceID) (bool, error) {
	dev, err := h.reg.GetShutterControl(id)
	if err != nil {
		return false, err
	}
	return dev.CloseShutter(ctx)
}

func (h *hardwareService) ShutterOpen(ctx context.Context, id registry.DeviceID) (bool, error) {
	dev, err := h.reg.GetShutterControl(id)
	if err != nil {
		return false, err
	}
	return dev.ShutterOpen(ctx)
}

func (h *hardwareService) SetWavelength(ctx context.Context, id registry.DeviceID, nm float64) (float64, error) {
	dev, err := h.reg.GetWavelengthTunable(id)
	if err != nil {
		return 0, err
	}
	return dev.SetWavelengthNM(ctx, nm)
}

func (h *hardwareService) GetWavelength(ctx context.Context, id registry.DeviceID) (float64, error) {
	dev, err := h.reg.GetWavelengthTunable(id)
	if err != nil {
		return 0, err
	}
	return dev.GetWavelengthNM(ctx)
}

func (h *hardwareService) SetEmission(ctx context.Context, id registry.DeviceID, enabled bool) (bool, error) {
	dev, err := h.reg.GetEmissionControl(id)
	if err != nil {
		return false, err
	}
	return dev.SetEmission(ctx, enabled)
}

func (h *hardwareService) EmissionEnabled(ctx context.Context, id registry.DeviceID) (bool, error) {
	dev, err := h.reg.GetEmissionControl(id)
	if err != nil {
		return false, err
	}
	return dev.EmissionEnabled(ctx)
}

func (h *hardwareService) ListParameters(ctx context.Context, id registry.DeviceID) ([]string, error) {
	dev, err := h.reg.GetParameterized(id)
	if err != nil {
		return nil, err
	}
	set, err := dev.Parameters(ctx)
	if err != nil {
		return nil, err
	}
	return set.Names(), nil
}

func (h *hardwareService) GetParameter(ctx context.Context, id registry.DeviceID, name string) (float64, error) {
	dev, err := h.reg.GetParameterized(id)
	if err != nil {
		return 0, err
	}
	set, err := dev.Parameters(ctx)
	if err != nil {
		return 0, err
	}
	p := set.Get(name)
	if p == nil {
		return 0, notFoundParamErr(id, name)
	}
	return p.Read(ctx)
}

func (h *hardwareService) SetParameter(ctx context.Context, id registry.DeviceID, name string, value float64) error {
	dev, err := h.reg.GetParameterized(id)
	if err != nil {
		return err
	}
	set, err := dev.Parameters(ctx)
	if err != nil {
		return err
	}
	return set.SetValue(ctx, name, value)
}

func (h *hardwareService) StreamPosition(ctx context.Context, id registry.DeviceID) (<-chan StreamEnvelope[float64], error) {
	dev, err := h.reg.GetMovable(id)
	if err != nil {
		return nil, err
	}
	out := make(chan StreamEnvelope[float64], 4)
	go pollStream(ctx, out, func() (float64, error) { return dev.Position(ctx) })
	return out, nil
}

func (h *hardwareService) StreamValues(ctx context.Context, id registry.DeviceID) (<-chan StreamEnvelope[capability.Reading], error) {
	dev, err := h.reg.GetReadable(id)
	if err != nil {
		return nil, err
	}
	out := make(chan StreamEnvelope[capability.Reading], 4)
	go pollStream(ctx, out, func() (capability.Reading, error) { return dev.Read(ctx) })
	return out, nil
}
