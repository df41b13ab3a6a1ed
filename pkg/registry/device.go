package registry

import (
	"github.com/photonlab/daqd/pkg/capability"
)

// DeviceID uniquely identifies a device within the daemon's process
// lifetime. Never reused once assigned.
type DeviceID string

// Metadata describes a device's physical characteristics. It may be
// refined on connect (e.g. a camera reports its real frame shape once
// armed) but must never become less specific than what was declared at
// registration.
type Metadata struct {
	Unit        string
	RangeMin    *float64
	RangeMax    *float64
	FrameWidth  int
	FrameHeight int
	BitDepth    int
	ExposureMin float64
	ExposureMax float64
}

// Info is a read-only snapshot of a registered device, returned by
// List/Info — it never exposes the underlying driver object.
type Info struct {
	ID           DeviceID
	Name         string
	DriverType   string
	Metadata     Metadata
	Capabilities []capability.Kind
}

// HasCapability reports whether the device declared the given capability
// at registration.
func (i Info) HasCapability(k capability.Kind) bool {
	for _, c := range i.Capabilities {
		if c == k {
			return true
		}
	}
	return false
}

// Driver is the opaque object a device registration wraps. Concrete
// drivers implement whichever capability.*Device interfaces apply to
// their hardware; the registry type-asserts the driver against the
// capability interface a caller requested rather than requiring a single
// monolithic interface.
type Driver interface {
	// DriverType returns a short tag identifying the kind of hardware
	// this driver fronts (e.g. "thorlabs.kstage", "sim.camera").
	DriverType() string
}

// entry is the registry's internal record for one device: its immutable
// identity plus the live driver object. Capabilities are derived by
// type-asserting driver against each capability.*Device interface at
// registration time and cached, so by_capability lookups never touch the
// driver itself.
type entry struct {
	info         Info
	driver       Driver
	capabilities map[capability.Kind]bool
}
