package daqconfig

import "time"

// DeviceConfig declares one device the fleet config wants instantiated
// and registered. Connection carries driver-specific dial parameters
// (e.g. "host"/"port" for a networked fake driver over the remote
// transport); it is opaque to daqconfig itself.
type DeviceConfig struct {
	ID         string            `json:"id" validate:"required,alphanum_dash"`
	DriverType string            `json:"driver_type" validate:"required"`
	Name       string            `json:"name" validate:"required"`
	Unit       string            `json:"unit"`
	RangeMin   *float64          `json:"range_min"`
	RangeMax   *float64          `json:"range_max"`
	FrameWidth  int              `json:"frame_width" validate:"gte=0"`
	FrameHeight int              `json:"frame_height" validate:"gte=0"`
	BitDepth    int              `json:"bit_depth" validate:"gte=0"`
	ExposureMin float64          `json:"exposure_min" validate:"gte=0"`
	ExposureMax float64          `json:"exposure_max" validate:"gte=0"`
	Labels      map[string]string `json:"labels"`
	Connection  map[string]string `json:"connection"`
}

// DaemonConfig holds the daemon-level settings read once at startup.
type DaemonConfig struct {
	RingSizeBytes   int           `json:"ring_size_bytes" validate:"required,gt=0"`
	FlushInterval   time.Duration `json:"flush_interval" validate:"required,gt=0"`
	DefaultDeadline time.Duration `json:"default_deadline" validate:"required,gt=0"`
	ArchivePath     string        `json:"archive_path" validate:"required"`
	SidecarPath     string        `json:"sidecar_path"`
	SafetyPolicyDir string        `json:"safety_policy_dir"`
}

// FleetConfig is the decoded device-fleet portion of a configuration
// source, independent of daemon settings, so it can be hot-reloaded
// on its own.
type FleetConfig struct {
	Devices []DeviceConfig `json:"devices"`
}

// ValidationError reports one problem found while parsing or validating
// a configuration source, with file location when available.
type ValidationError struct {
	File     string
	Line     int
	Column   int
	Path     string
	Message  string
	Severity string
}

// ParsedConfig is the result of parsing one or more CUE sources: either
// a populated Daemon/Fleet pair, or a non-empty Errors slice — callers
// must check Errors before trusting Daemon/Fleet.
type ParsedConfig struct {
	SourceFiles []string
	ParsedAt    time.Time
	Daemon      DaemonConfig
	Fleet       FleetConfig
	Errors      []ValidationError
}

// OK reports whether parsing produced no errors.
func (pc *ParsedConfig) OK() bool {
	return len(pc.Errors) == 0
}
