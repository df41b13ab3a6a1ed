package registry

import (
	"fmt"
	"sync"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/daqerr"
)

// Registry is the concurrent device catalogue. Zero value is not usable;
// construct with New.
type Registry struct {
	mu      sync.RWMutex
	devices map[DeviceID]*entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{devices: make(map[DeviceID]*entry)}
}

// Register adds a device under id, deriving its capability set from the
// driver's own interface implementations. Fails with AlreadyExists-shaped
// InvalidArgument if id is already taken.
func (r *Registry) Register(id DeviceID, name string, driver Driver, meta Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[id]; exists {
		return daqerr.NewInvalidArgument(fmt.Sprintf("device %s already registered", id), nil)
	}

	caps := deriveCapabilities(driver)
	info := Info{
		ID:           id,
		Name:         name,
		DriverType:   driver.DriverType(),
		Metadata:     meta,
		Capabilities: caps,
	}

	capSet := make(map[capability.Kind]bool, len(caps))
	for _, c := range caps {
		capSet[c] = true
	}

	r.devices[id] = &entry{info: info, driver: driver, capabilities: capSet}
	return nil
}

// RegisterDeclared adds a device whose capability set is supplied
// explicitly rather than derived by type-asserting driver. This is the
// registration path for dynamically loaded (WASM) device modules: their
// capabilities are manifest data, not Go interfaces the host process can
// type-assert against, so the caller (typically pkg/module) declares them
// instead. driver must still genuinely answer every capability.*Device
// method the declared set implies; a mismatch surfaces at call time as
// whatever error the driver itself returns, not at registration time.
func (r *Registry) RegisterDeclared(id DeviceID, name string, driver Driver, meta Metadata, caps []capability.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[id]; exists {
		return daqerr.NewInvalidArgument(fmt.Sprintf("device %s already registered", id), nil)
	}

	info := Info{
		ID:           id,
		Name:         name,
		DriverType:   driver.DriverType(),
		Metadata:     meta,
		Capabilities: caps,
	}
	capSet := make(map[capability.Kind]bool, len(caps))
	for _, c := range caps {
		capSet[c] = true
	}
	r.devices[id] = &entry{info: info, driver: driver, capabilities: capSet}
	return nil
}

// Unregister detaches a device. Handles already obtained via Get*
// remain individually usable (the driver object they reference is kept
// alive by the handle itself, as with any Go pointer); only future
// lookups observe the detachment.
func (r *Registry) Unregister(id DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
}

// Contains reports whether id currently resolves to a live registration.
func (r *Registry) Contains(id DeviceID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[id]
	return ok
}

// List returns a point-in-time snapshot of every registered device's
// Info. Order is unspecified but stable within the returned slice.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.devices))
	for _, e := range r.devices {
		out = append(out, e.info)
	}
	return out
}

// ByCapability returns the IDs of every device declaring the given
// capability, as a point-in-time snapshot.
func (r *Registry) ByCapability(k capability.Kind) []DeviceID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []DeviceID
	for id, e := range r.devices {
		if e.capabilities[k] {
			out = append(out, id)
		}
	}
	return out
}

// Info returns a snapshot of one device's Info, or ok=false if unknown.
func (r *Registry) Info(id DeviceID) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.devices[id]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// lookup resolves id to its entry under a read lock, classifying failures
// per spec §4.1: unknown device is NotFound, known device missing the
// requested capability is FailedPrecondition (never NotFound — a device
// that exists but isn't Movable reports that distinction).
func (r *Registry) lookup(id DeviceID, want capability.Kind) (*entry, error) {
	r.mu.RLock()
	e, ok := r.devices[id]
	r.mu.RUnlock()

	if !ok {
		return nil, daqerr.NewNotFound("device not found", nil).WithDevice(string(id))
	}
	if !e.capabilities[want] {
		return nil, daqerr.NewFailedPrecondition(
			fmt.Sprintf("device does not implement capability %s", want), nil,
		).WithDevice(string(id))
	}
	return e, nil
}

// GetMovable returns a handle narrowed to the Movable capability.
func (r *Registry) GetMovable(id DeviceID) (capability.MovableDevice, error) {
	e, err := r.lookup(id, capability.Movable)
	if err != nil {
		return nil, err
	}
	return e.driver.(capability.MovableDevice), nil
}

// GetReadable returns a handle narrowed to the Readable capability.
func (r *Registry) GetReadable(id DeviceID) (capability.ReadableDevice, error) {
	e, err := r.lookup(id, capability.Readable)
	if err != nil {
		return nil, err
	}
	return e.driver.(capability.ReadableDevice), nil
}

// GetTriggerable returns a handle narrowed to the Triggerable capability.
func (r *Registry) GetTriggerable(id DeviceID) (capability.TriggerableDevice, error) {
	e, err := r.lookup(id, capability.Triggerable)
	if err != nil {
		return nil, err
	}
	return e.driver.(capability.TriggerableDevice), nil
}

// GetFrameProducer returns a handle narrowed to the FrameProducer capability.
func (r *Registry) GetFrameProducer(id DeviceID) (capability.FrameProducerDevice, error) {
	e, err := r.lookup(id, capability.FrameProducer)
	if err != nil {
		return nil, err
	}
	return e.driver.(capability.FrameProducerDevice), nil
}

// GetExposureControl returns a handle narrowed to the ExposureControl capability.
func (r *Registry) GetExposureControl(id DeviceID) (capability.ExposureControlDevice, error) {
	e, err := r.lookup(id, capability.ExposureControl)
	if err != nil {
		return nil, err
	}
	return e.driver.(capability.ExposureControlDevice), nil
}

// GetShutterControl returns a handle narrowed to the ShutterControl capability.
func (r *Registry) GetShutterControl(id DeviceID) (capability.ShutterControlDevice, error) {
	e, err := r.lookup(id, capability.ShutterControl)
	if err != nil {
		return nil, err
	}
	return e.driver.(capability.ShutterControlDevice), nil
}

// GetWavelengthTunable returns a handle narrowed to the WavelengthTunable capability.
func (r *Registry) GetWavelengthTunable(id DeviceID) (capability.WavelengthTunableDevice, error) {
	e, err := r.lookup(id, capability.WavelengthTunable)
	if err != nil {
		return nil, err
	}
	return e.driver.(capability.WavelengthTunableDevice), nil
}

// GetEmissionControl returns a handle narrowed to the EmissionControl capability.
func (r *Registry) GetEmissionControl(id DeviceID) (capability.EmissionControlDevice, error) {
	e, err := r.lookup(id, capability.EmissionControl)
	if err != nil {
		return nil, err
	}
	return e.driver.(capability.EmissionControlDevice), nil
}

// GetParameterized returns a handle narrowed to the Parameterized capability.
func (r *Registry) GetParameterized(id DeviceID) (capability.ParameterizedDevice, error) {
	e, err := r.lookup(id, capability.Parameterized)
	if err != nil {
		return nil, err
	}
	return e.driver.(capability.ParameterizedDevice), nil
}

// deriveCapabilities type-asserts driver against every capability
// interface once, at registration, so steady-state lookups never pay for
// reflection.
func deriveCapabilities(driver Driver) []capability.Kind {
	var caps []capability.Kind
	if _, ok := driver.(capability.MovableDevice); ok {
		caps = append(caps, capability.Movable)
	}
	if _, ok := driver.(capability.ReadableDevice); ok {
		caps = append(caps, capability.Readable)
	}
	if _, ok := driver.(capability.TriggerableDevice); ok {
		caps = append(caps, capability.Triggerable)
	}
	if _, ok := driver.(capability.FrameProducerDevice); ok {
		caps = append(caps, capability.FrameProducer)
	}
	if _, ok := driver.(capability.ExposureControlDevice); ok {
		caps = append(caps, capability.ExposureControl)
	}
	if _, ok := driver.(capability.ShutterControlDevice); ok {
		caps = append(caps, capability.ShutterControl)
	}
	if _, ok := driver.(capability.WavelengthTunableDevice); ok {
		caps = append(caps, capability.WavelengthTunable)
	}
	if _, ok := driver.(capability.EmissionControlDevice); ok {
		caps = append(caps, capability.EmissionControl)
	}
	if _, ok := driver.(capability.ParameterizedDevice); ok {
		caps = append(caps, capability.Parameterized)
	}
	return caps
}
