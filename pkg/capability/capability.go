package capability

import (
	"context"

	"github.com/photonlab/daqd/pkg/param"
)

// Kind enumerates the capability facets a device may declare.
type Kind string

const (
	Movable           Kind = "movable"
	Readable          Kind = "readable"
	Triggerable       Kind = "triggerable"
	FrameProducer     Kind = "frame_producer"
	ExposureControl   Kind = "exposure_control"
	ShutterControl    Kind = "shutter_control"
	WavelengthTunable Kind = "wavelength_tunable"
	EmissionControl   Kind = "emission_control"
	Parameterized     Kind = "parameterized"
)

// All lists every known capability kind, in declaration order.
var All = []Kind{
	Movable, Readable, Triggerable, FrameProducer,
	ExposureControl, ShutterControl, WavelengthTunable,
	EmissionControl, Parameterized,
}

// Reading is a scalar value with its physical unit, as returned by a
// Readable device.
type Reading struct {
	Value float64
	Unit  string
}

// MovableDevice exposes position control. Motion is fire-and-forget
// unless the caller chains WaitSettled; MoveAbs/MoveRel fail with
// daqerr.InvalidArgument for values outside declared limits.
type MovableDevice interface {
	MoveAbs(ctx context.Context, position float64) error
	MoveRel(ctx context.Context, delta float64) error
	Position(ctx context.Context) (float64, error)
	WaitSettled(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ReadableDevice exposes a single scalar reading.
type ReadableDevice interface {
	Read(ctx context.Context) (Reading, error)
}

// TriggerableDevice exposes an arm/trigger handshake. Trigger while not
// armed fails with daqerr.FailedPrecondition.
type TriggerableDevice interface {
	Arm(ctx context.Context) error
	Trigger(ctx context.Context) error
	IsArmed(ctx context.Context) (bool, error)
}

// Frame is one produced image/waveform payload plus its sequence number.
type Frame struct {
	Seq       uint64
	Data      []byte
	Width     int
	Height    int
	BitDepth  int
}

// FrameProducerDevice exposes a streaming-frame capability. The returned
// channel from Frames may be taken at most once per stream session
// (enforced by the driver, not this interface); it is closed when the
// stream stops.
type FrameProducerDevice interface {
	StartStream(ctx context.Context, finiteCount *uint64) error
	StopStream(ctx context.Context) error
	IsStreaming(ctx context.Context) (bool, error)
	FrameCount(ctx context.Context) (uint64, error)
	Frames() (<-chan Frame, error)
}

// ExposureControlDevice exposes exposure-time control, in seconds.
type ExposureControlDevice interface {
	GetExposureS(ctx context.Context) (float64, error)
	SetExposureS(ctx context.Context, seconds float64) error
}

// ShutterControlDevice exposes an open/close shutter. Realised reports
// whether the requested state took effect, since hardware may differ
// from what was requested.
type ShutterControlDevice interface {
	OpenShutter(ctx context.Context) (realised bool, err error)
	CloseShutter(ctx context.Context) (realised bool, err error)
	ShutterOpen(ctx context.Context) (bool, error)
}

// WavelengthTunableDevice exposes tunable-wavelength control, in nm.
type WavelengthTunableDevice interface {
	SetWavelengthNM(ctx context.Context, nm float64) (realised float64, err error)
	GetWavelengthNM(ctx context.Context) (float64, error)
}

// EmissionControlDevice exposes laser/source emission enable control.
type EmissionControlDevice interface {
	SetEmission(ctx context.Context, enabled bool) (realised bool, err error)
	EmissionEnabled(ctx context.Context) (bool, error)
}

// ParameterizedDevice exposes a ParameterSet (name -> Parameter).
type ParameterizedDevice interface {
	Parameters(ctx context.Context) (*param.Set, error)
}
