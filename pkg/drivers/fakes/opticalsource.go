package fakes

import (
	"context"
	"sync"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/daqerr"
)

// OpticalSource is a fake Shutter+WavelengthTunable+EmissionControl
// device: the tunable-laser/illumination-source shape spec.md §4.1
// describes, with no physical counterpart among the other fakes (Stage,
// Detector, FrameCamera cover Movable/Readable+Triggerable/FrameProducer
// respectively). The wavelength it reports after SetWavelengthNM is the
// requested one plus RealiseOffset (zero by default), which lets tests
// simulate hardware that settles slightly off-target.
type OpticalSource struct {
	mu         sync.Mutex
	shutterOpen bool
	wavelengthNM float64
	emitting    bool

	// RealiseOffset is added to the requested wavelength before it is
	// stored and reported back, simulating hardware that
	// doesn't land exactly on the requested setpoint.
	RealiseOffset float64

	WavelengthMin, WavelengthMax float64
	HasWavelengthRange           bool
}

// NewOpticalSource returns an OpticalSource with its shutter closed,
// emission disabled, and wavelength at 0nm.
func NewOpticalSource() *OpticalSource {
	return &OpticalSource{}
}

func (o *OpticalSource) DriverType() string { return "fake.opticalsource" }

func (o *OpticalSource) OpenShutter(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shutterOpen = true
	return o.shutterOpen, nil
}

func (o *OpticalSource) CloseShutter(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shutterOpen = false
	return o.shutterOpen, nil
}

func (o *OpticalSource) ShutterOpen(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shutterOpen, nil
}

func (o *OpticalSource) SetWavelengthNM(ctx context.Context, nm float64) (float64, error) {
	if o.HasWavelengthRange && (nm < o.WavelengthMin || nm > o.WavelengthMax) {
		return 0, daqerr.NewInvalidArgument("wavelength out of range", nil).
			WithDetail("min", o.WavelengthMin).WithDetail("max", o.WavelengthMax).WithDetail("value", nm)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.wavelengthNM = nm + o.RealiseOffset
	return o.wavelengthNM, nil
}

func (o *OpticalSource) GetWavelengthNM(ctx context.Context) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.wavelengthNM, nil
}

func (o *OpticalSource) SetEmission(ctx context.Context, enabled bool) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emitting = enabled
	return o.emitting, nil
}

func (o *OpticalSource) EmissionEnabled(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.emitting, nil
}

var (
	_ capability.ShutterControlDevice    = (*OpticalSource)(nil)
	_ capability.WavelengthTunableDevice = (*OpticalSource)(nil)
	_ capability.EmissionControlDevice   = (*OpticalSource)(nil)
)
